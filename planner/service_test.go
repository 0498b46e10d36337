package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealprep"
)

func mealJSON(name string, ingredients ...string) string {
	quoted := make([]string, len(ingredients))
	for i, ing := range ingredients {
		quoted[i] = fmt.Sprintf("%q", ing)
	}
	return fmt.Sprintf(`{"meal_name": %q, "ingredients": [%s], "recipe": ["Prep", "Cook"]}`, name, strings.Join(quoted, ", "))
}

func newTestService(completer *mockCompleter, searcher *mockSearcher, store *mockStore) *Service {
	inv := NewInvoker(completer, InvokerOptions{Sleep: noSleep})
	svc := NewService(searcher, inv, store, ServiceOptions{})
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC) }
	return svc
}

func TestService_SuggestMeal(t *testing.T) {
	tests := []struct {
		name            string
		req             SuggestRequest
		responses       []completion
		wantName        string
		wantStatus      ParseStatus
		wantContextType ContextType
	}{
		{
			name:            "schema valid with ingredients",
			req:             SuggestRequest{Ingredients: []string{"beef"}, NumPeople: 2, DaysBack: 7},
			responses:       []completion{{text: mealJSON("Tacos", "beef")}},
			wantName:        "Tacos",
			wantStatus:      StatusValid,
			wantContextType: ContextIngredientBased,
		},
		{
			name:            "heuristic fallback after exhaustion",
			req:             SuggestRequest{NumPeople: 2},
			responses:       []completion{{text: "not json"}, {text: "meal_name: Ramen, ingredients: noodles, egg\nrecipe: 1. Boil 2. Serve"}},
			wantName:        "Ramen",
			wantStatus:      StatusPartial,
			wantContextType: ContextDiverseSelection,
		},
		{
			name:            "total failure is a placeholder",
			req:             SuggestRequest{NumPeople: 1},
			responses:       []completion{{err: assert.AnError}, {err: assert.AnError}},
			wantName:        "",
			wantStatus:      StatusFailed,
			wantContextType: ContextDiverseSelection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &mockCompleter{responses: tt.responses}
			svc := newTestService(completer, &mockSearcher{}, &mockStore{})

			sug, err := svc.SuggestMeal(context.Background(), tt.req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantName, sug.Meal.MealName)
			assert.Equal(t, tt.wantStatus, sug.Status)
			assert.Equal(t, tt.wantContextType, sug.ContextType)
			assert.NotNil(t, sug.Meal.Ingredients)
			assert.NotNil(t, sug.Meal.Recipe)
		})
	}
}

func TestService_SuggestMealPromptCarriesExclusionsAndContext(t *testing.T) {
	completer := newMockCompleter(mealJSON("Paella", "rice"))
	searcher := &mockSearcher{rows: []mealprep.RecipeRow{{Contents: "Title: Seafood Stew"}}}
	store := &mockStore{recent: []string{"Tacos"}}
	svc := newTestService(completer, searcher, store)

	_, err := svc.SuggestMeal(context.Background(), SuggestRequest{
		Ingredients:   []string{"rice", "shrimp"},
		NumPeople:     3,
		DaysBack:      14,
		RejectedMeals: []string{"Risotto"},
	})
	require.NoError(t, err)

	require.Len(t, completer.requests, 1)
	req := completer.requests[0]
	assert.Contains(t, req.Prompt, "Tacos, Risotto")
	assert.Contains(t, req.Prompt, "Title: Seafood Stew")
	assert.Contains(t, req.Prompt, "rice, shrimp")
	assert.Equal(t, SuggestionSchemaName, req.SchemaName)
	assert.Equal(t, float32(1.0), req.Temperature)
	assert.Equal(t, systemPrompt, req.System)
}

func TestService_SuggestMealErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     SuggestRequest
		store   *mockStore
		search  *mockSearcher
		wantErr error
	}{
		{
			name:    "too many people",
			req:     SuggestRequest{NumPeople: 21},
			store:   &mockStore{},
			search:  &mockSearcher{},
			wantErr: mealprep.ErrInvalidRequest,
		},
		{
			name:    "days back out of range",
			req:     SuggestRequest{NumPeople: 2, DaysBack: 61},
			store:   &mockStore{},
			search:  &mockSearcher{},
			wantErr: mealprep.ErrInvalidRequest,
		},
		{
			name:    "storage failure",
			req:     SuggestRequest{NumPeople: 2},
			store:   &mockStore{recentErr: assert.AnError},
			search:  &mockSearcher{},
			wantErr: assert.AnError,
		},
		{
			name:    "retrieval failure",
			req:     SuggestRequest{NumPeople: 2},
			store:   &mockStore{},
			search:  &mockSearcher{err: assert.AnError},
			wantErr: mealprep.ErrRetrieval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := newMockCompleter(mealJSON("Tacos"))
			svc := newTestService(completer, tt.search, tt.store)

			_, err := svc.SuggestMeal(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, completer.callCount)
		})
	}
}

func TestService_GenerateMealPlan(t *testing.T) {
	completer := newMockCompleter(
		mealJSON("Soup", "Leeks", "Butter"),
		mealJSON("Curry", "rice", "butter"),
		mealJSON("Pizza", "flour"),
	)
	store := &mockStore{recent: []string{"Tacos"}}
	svc := newTestService(completer, &mockSearcher{}, store)

	plan, err := svc.GenerateMealPlan(context.Background(), PlanRequest{NumDays: 3, NumPeople: 2, DaysBack: 7})
	require.NoError(t, err)

	require.Len(t, plan.Meals, 3)
	for i, m := range plan.Meals {
		assert.Equal(t, i+1, m.DayNumber)
	}
	assert.Equal(t, []string{"Soup", "Curry", "Pizza"}, plan.MealNames(0))
	assert.Equal(t, []string{"Leeks", "Butter (x2)", "rice", "flour"}, plan.ShoppingList)

	require.Len(t, completer.requests, 3)
	assert.Contains(t, completer.requests[1].Prompt, "Tacos, Soup")
	assert.Contains(t, completer.requests[2].Prompt, "Tacos, Soup, Curry")
}

func TestService_GenerateMealPlanPlaceholderForFailedDay(t *testing.T) {
	completer := &mockCompleter{responses: []completion{
		{text: mealJSON("Soup", "leeks")},
		{text: "garbage"},
		{text: "more garbage"},
		{text: mealJSON("Stew", "beef")},
	}}
	svc := newTestService(completer, &mockSearcher{}, &mockStore{})

	plan, err := svc.GenerateMealPlan(context.Background(), PlanRequest{NumDays: 3, NumPeople: 2})
	require.NoError(t, err)

	require.Len(t, plan.Meals, 3)
	assert.Equal(t, "Soup", plan.Meals[0].MealName)
	assert.Equal(t, "", plan.Meals[1].MealName)
	assert.Equal(t, 2, plan.Meals[1].DayNumber)
	assert.Equal(t, "Stew", plan.Meals[2].MealName)
	assert.Equal(t, []string{"leeks", "beef"}, plan.ShoppingList)
	assert.NotContains(t, completer.requests[3].Prompt, "Soup, ,")
}

func TestService_GenerateMealPlanAbortsOnRetrievalFailure(t *testing.T) {
	svc := newTestService(newMockCompleter(), &mockSearcher{err: assert.AnError}, &mockStore{})

	_, err := svc.GenerateMealPlan(context.Background(), PlanRequest{NumDays: 2, NumPeople: 2})
	assert.ErrorIs(t, err, mealprep.ErrRetrieval)
}

// keyedPlanWithDays repeats each day inside its entry and leaves a recipe out, so it fails the schema.
const keyedPlanWithDays = `{"1": {"day": 1, "meal_name": "Stew", "ingredients": ["beef"], "recipe": ["Braise"]},
	"2": {"day": 2, "meal_name": "Soup", "ingredients": ["leeks"]}}`

func TestService_GenerateMealPlanSingleCall(t *testing.T) {
	tests := []struct {
		name      string
		responses []completion
		numDays   int
		wantNames []string
	}{
		{
			name:      "schema valid",
			responses: []completion{{text: `{"1": ` + mealJSON("Soup", "leeks") + `, "2": ` + mealJSON("Curry", "rice") + `}`}},
			numDays:   2,
			wantNames: []string{"Soup", "Curry"},
		},
		{
			name: "days are re-stamped by position",
			responses: []completion{
				{text: "no"},
				{text: `[{"day": 5, "meal_name": "B", "ingredients": [], "recipe": []}, {"day": 3, "meal_name": "A", "ingredients": [], "recipe": []}]`},
			},
			numDays:   2,
			wantNames: []string{"A", "B"},
		},
		{
			name:      "missing days become placeholders",
			responses: []completion{{text: "no"}, {text: "Day 1: meal_name: Chili\ningredients: beans\nrecipe: 1. Cook"}},
			numDays:   3,
			wantNames: []string{"Chili", "", ""},
		},
		{
			name: "extra days are dropped",
			responses: []completion{
				{text: "no"},
				{text: `{"1": ` + mealJSON("A") + `, "2": ` + mealJSON("B") + `, "3": ` + mealJSON("C") + `}`},
			},
			numDays:   2,
			wantNames: []string{"A", "B"},
		},
		{
			name:      "keyed days carrying day fields stay aligned",
			responses: []completion{{text: keyedPlanWithDays}, {text: keyedPlanWithDays}},
			numDays:   2,
			wantNames: []string{"Stew", "Soup"},
		},
		{
			name: "day in recipe prose does not shift meals",
			responses: []completion{
				{text: "no"},
				{text: "Day 1: meal_name: Stew, ingredients: beef\nrecipe: 1. Rest 1 day 2. Simmer\nDay 2: meal_name: Soup, ingredients: leeks\nrecipe: 1. Boil"},
			},
			numDays:   2,
			wantNames: []string{"Stew", "Soup"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &mockCompleter{responses: tt.responses}
			svc := newTestService(completer, &mockSearcher{}, &mockStore{})

			plan, err := svc.GenerateMealPlanSingleCall(context.Background(), PlanRequest{NumDays: tt.numDays, NumPeople: 2})
			require.NoError(t, err)

			require.Len(t, plan.Meals, tt.numDays)
			names := make([]string, len(plan.Meals))
			for i, m := range plan.Meals {
				names[i] = m.MealName
				assert.Equal(t, i+1, m.DayNumber)
			}
			assert.Equal(t, tt.wantNames, names)

			require.NotEmpty(t, completer.requests)
			assert.Equal(t, PlanSchemaName, completer.requests[0].SchemaName)
			assert.Equal(t, float32(0.7), completer.requests[0].Temperature)
		})
	}
}

func threeDayPlan() mealprep.MealPlan {
	return mealprep.MealPlan{
		Meals: []mealprep.MealPlanEntry{
			entry(1, "Soup", []string{"leeks"}, []string{"Boil"}),
			entry(2, "Curry", []string{"rice"}, []string{"Simmer"}),
			entry(3, "Pizza", []string{"flour"}, []string{"Bake"}),
		},
		ShoppingList: []string{"leeks", "rice", "flour"},
	}
}

func TestService_RegenerateMealForDay(t *testing.T) {
	completer := newMockCompleter(mealJSON("Pho", "noodles"))
	svc := newTestService(completer, &mockSearcher{}, &mockStore{})
	plan := threeDayPlan()

	sug, updated, err := svc.RegenerateMealForDay(context.Background(), 2, plan, 2, "")
	require.NoError(t, err)

	assert.Equal(t, "Pho", sug.Meal.MealName)
	require.Len(t, updated.Meals, 3)
	assert.Equal(t, plan.Meals[0], updated.Meals[0])
	assert.Equal(t, plan.Meals[2], updated.Meals[2])
	assert.Equal(t, 2, updated.Meals[1].DayNumber)
	assert.Equal(t, "Pho", updated.Meals[1].MealName)
	assert.Equal(t, []string{"leeks", "noodles", "flour"}, updated.ShoppingList)

	assert.Equal(t, "Curry", plan.Meals[1].MealName, "input plan is not mutated")

	prompt := completer.requests[0].Prompt
	assert.Contains(t, prompt, "Soup, Pizza, Curry")
}

func TestService_RegenerateMealForDayAvoidsRecentMeals(t *testing.T) {
	completer := newMockCompleter(mealJSON("Pho", "noodles"))
	store := &mockStore{recent: []string{"Tacos", ""}}
	svc := newTestService(completer, &mockSearcher{}, store)

	_, _, err := svc.RegenerateMealForDay(context.Background(), 2, threeDayPlan(), 2, "")
	require.NoError(t, err)

	assert.Equal(t, []int{RegenerateDaysBack}, store.daysBack)
	assert.Contains(t, completer.requests[0].Prompt, "Tacos, Soup, Pizza, Curry")
}

func TestService_RegenerateMealForDayHistoryError(t *testing.T) {
	completer := newMockCompleter(mealJSON("Pho", "noodles"))
	svc := newTestService(completer, &mockSearcher{}, &mockStore{recentErr: errors.New("disk gone")})
	plan := threeDayPlan()

	_, updated, err := svc.RegenerateMealForDay(context.Background(), 2, plan, 2, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recent meals")
	assert.Equal(t, plan, updated)
	assert.Equal(t, 0, completer.callCount)
}

func TestService_RegenerateMealForDayErrorsAndFailure(t *testing.T) {
	svc := newTestService(newMockCompleter(), &mockSearcher{}, &mockStore{})

	_, _, err := svc.RegenerateMealForDay(context.Background(), 9, threeDayPlan(), 2, "")
	assert.ErrorIs(t, err, mealprep.ErrInvalidRequest)

	_, _, err = svc.RegenerateMealForDay(context.Background(), 1, threeDayPlan(), 0, "")
	assert.ErrorIs(t, err, mealprep.ErrInvalidRequest)

	sug, updated, err := svc.RegenerateMealForDay(context.Background(), 1, threeDayPlan(), 2, "")
	require.NoError(t, err)
	assert.True(t, sug.Failed())
	assert.Equal(t, threeDayPlan(), updated)
}

func TestService_SaveAndReplacePlannedMeal(t *testing.T) {
	completer := newMockCompleter(mealJSON("Pho", "noodles"))
	store := &mockStore{}
	svc := newTestService(completer, &mockSearcher{}, store)
	ctx := context.Background()

	id, err := svc.SaveMealPlan(ctx, threeDayPlan(), mealprep.PlanMeta{NumPeople: 2})
	require.NoError(t, err)

	latest, err := svc.LatestPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, latest.Plan.ID)
	assert.Equal(t, 3, latest.Plan.NumDays)
	assert.False(t, latest.Plan.CreatedAt.IsZero())
	oldID := latest.Meals[2].ID

	sug, newID, err := svc.ReplacePlannedMeal(ctx, 3, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "Pho", sug.Meal.MealName)
	assert.NotEqual(t, oldID, newID)

	latest, err = svc.LatestPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Soup", "Curry", "Pho"}, latest.MealPlan().MealNames(0))
	assert.Equal(t, []string{"leeks", "rice", "noodles"}, latest.ShoppingList)

	_, _, err = svc.ReplacePlannedMeal(ctx, 7, 2, "")
	assert.ErrorIs(t, err, mealprep.ErrNotFound)
}

func TestService_LatestPlanNotFound(t *testing.T) {
	svc := newTestService(newMockCompleter(), &mockSearcher{}, &mockStore{})
	_, err := svc.LatestPlan(context.Background())
	assert.ErrorIs(t, err, mealprep.ErrNotFound)
}

func TestService_MealLog(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(newMockCompleter(), &mockSearcher{}, store)
	ctx := context.Background()

	_, err := svc.CookMeal(ctx, mealprep.MealSuggestion{})
	assert.ErrorIs(t, err, mealprep.ErrInvalidRequest)

	id, err := svc.CookMeal(ctx, mealprep.MealSuggestion{MealName: "Tacos", Ingredients: []string{"beef"}, Recipe: []string{"Cook"}})
	require.NoError(t, err)
	require.Len(t, store.records, 1)
	assert.True(t, store.records[0].Accepted)
	assert.Equal(t, 2024, store.records[0].Date.Year())

	require.NoError(t, svc.AddFeedback(ctx, id, "too spicy"))
	require.NoError(t, svc.SetAccepted(ctx, id, false))
	assert.Equal(t, "too spicy", store.records[0].Feedback)
	assert.False(t, store.records[0].Accepted)

	assert.ErrorIs(t, svc.AddFeedback(ctx, 99, "x"), mealprep.ErrNotFound)
}

func TestService_MealHistory(t *testing.T) {
	store := &mockStore{records: []mealprep.MealRecord{
		{ID: 1, MealName: "Tacos"},
		{ID: 2, MealName: "Soup"},
		{ID: 3, MealName: "Tacos"},
	}}
	svc := newTestService(newMockCompleter(), &mockSearcher{}, store)

	tests := []struct {
		name    string
		meal    string
		limit   int
		wantIDs []int64
		wantErr error
	}{
		{name: "everything newest first", wantIDs: []int64{3, 2, 1}},
		{name: "limited", limit: 1, wantIDs: []int64{3}},
		{name: "by name", meal: "Tacos", wantIDs: []int64{1, 3}},
		{name: "by name is trimmed and limited", meal: " Tacos ", limit: 1, wantIDs: []int64{1}},
		{name: "unknown name", meal: "Pizza"},
		{name: "negative limit", limit: -1, wantErr: mealprep.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meals, err := svc.MealHistory(context.Background(), tt.meal, tt.limit)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			var ids []int64
			for _, m := range meals {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
	assert.Equal(t, []int{0, 1}, store.limits)
}

func TestService_SearchRecipes(t *testing.T) {
	searcher := &mockSearcher{rows: []mealprep.RecipeRow{{ID: "1"}}}
	svc := newTestService(newMockCompleter(), searcher, &mockStore{})

	rows, err := svc.SearchRecipes(context.Background(), "spicy noodles", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	require.Len(t, searcher.searches, 1)
	assert.Equal(t, DefaultSearchLimit, searcher.searches[0].limit)
	assert.Equal(t, []string{"spicy noodles"}, searcher.searches[0].terms)
}
