package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealprep"
	"mealprep/planner"
)

type mockPlanner struct {
	callCount   int
	suggestReq  planner.SuggestRequest
	planReq     planner.PlanRequest
	singleCall  bool
	regenDay    int
	regenPlan   mealprep.MealPlan
	replaceDay  int
	searchQuery string
	searchLimit int
	savedPlan   mealprep.MealPlan
	savedMeta   mealprep.PlanMeta
	feedback    map[int64]string
	accepted    map[int64]bool
	latest      *mealprep.StoredPlan
	history     []mealprep.MealRecord
	historyName string
	historyMax  int
	err         error
}

var tacos = mealprep.MealSuggestion{
	MealName:    "Tacos",
	Ingredients: []string{"tortillas", "beans"},
	Recipe:      []string{"Warm tortillas", "Fill"},
}

func testPlan() mealprep.MealPlan {
	return mealprep.MealPlan{
		Meals: []mealprep.MealPlanEntry{
			{MealSuggestion: tacos, DayNumber: 1},
			{MealSuggestion: mealprep.MealSuggestion{MealName: "Soup", Ingredients: []string{"stock"}, Recipe: []string{"Simmer"}}, DayNumber: 2},
		},
		ShoppingList: []string{"tortillas", "beans", "stock"},
	}
}

func (m *mockPlanner) SuggestMeal(ctx context.Context, req planner.SuggestRequest) (planner.Suggestion, error) {
	m.callCount++
	m.suggestReq = req
	return planner.Suggestion{Meal: tacos, Status: planner.StatusValid, ContextType: planner.ContextDiverseSelection, Attempts: 1}, m.err
}

func (m *mockPlanner) GenerateMealPlan(ctx context.Context, req planner.PlanRequest) (mealprep.MealPlan, error) {
	m.callCount++
	m.planReq = req
	return testPlan(), m.err
}

func (m *mockPlanner) GenerateMealPlanSingleCall(ctx context.Context, req planner.PlanRequest) (mealprep.MealPlan, error) {
	m.singleCall = true
	return m.GenerateMealPlan(ctx, req)
}

func (m *mockPlanner) RegenerateMealForDay(ctx context.Context, day int, plan mealprep.MealPlan, numPeople int, dietary string) (planner.Suggestion, mealprep.MealPlan, error) {
	m.callCount++
	m.regenDay = day
	m.regenPlan = plan
	return planner.Suggestion{Meal: tacos, Status: planner.StatusPartial}, plan, m.err
}

func (m *mockPlanner) ReplacePlannedMeal(ctx context.Context, day, numPeople int, dietary string) (planner.Suggestion, int64, error) {
	m.callCount++
	m.replaceDay = day
	return planner.Suggestion{Meal: tacos, Status: planner.StatusValid}, 42, m.err
}

func (m *mockPlanner) SearchRecipes(ctx context.Context, query string, limit int) ([]mealprep.RecipeRow, error) {
	m.callCount++
	m.searchQuery = query
	m.searchLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return []mealprep.RecipeRow{{ID: "r1", Title: "Tomato Soup", Score: 0.9}}, nil
}

func (m *mockPlanner) SampleRecipes(ctx context.Context, limit int, dietary string) ([]mealprep.RecipeRow, error) {
	m.callCount++
	return []mealprep.RecipeRow{{ID: "r2", Title: "Salad"}}, m.err
}

func (m *mockPlanner) SaveMealPlan(ctx context.Context, plan mealprep.MealPlan, meta mealprep.PlanMeta) (int64, error) {
	m.callCount++
	m.savedPlan = plan
	m.savedMeta = meta
	return 7, m.err
}

func (m *mockPlanner) LatestPlan(ctx context.Context) (*mealprep.StoredPlan, error) {
	m.callCount++
	if m.latest == nil {
		return nil, mealprep.ErrNotFound
	}
	return m.latest, nil
}

func (m *mockPlanner) MealHistory(ctx context.Context, name string, limit int) ([]mealprep.MealRecord, error) {
	m.callCount++
	m.historyName = name
	m.historyMax = limit
	return m.history, m.err
}

func (m *mockPlanner) AddFeedback(ctx context.Context, mealID int64, feedback string) error {
	m.callCount++
	if m.feedback == nil {
		m.feedback = map[int64]string{}
	}
	m.feedback[mealID] = feedback
	return m.err
}

func (m *mockPlanner) SetAccepted(ctx context.Context, mealID int64, accepted bool) error {
	m.callCount++
	if m.accepted == nil {
		m.accepted = map[int64]bool{}
	}
	m.accepted[mealID] = accepted
	return m.err
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(&mockPlanner{})

	var names []string
	for _, tool := range reg.GetTools() {
		names = append(names, tool.Name())
		assert.NotEmpty(t, tool.Title())
		assert.NotEmpty(t, tool.Description())
		assert.Equal(t, "object", tool.InputSchema().Type)
		assert.Equal(t, "object", tool.OutputSchema().Type)
	}
	assert.Equal(t, []string{
		"generate_meal_plan", "get_latest_plan", "get_meal_history", "record_feedback",
		"regenerate_meal", "save_meal_plan", "search_recipes", "suggest_meal",
	}, names)

	_, err := reg.GetTool("pantry_get")
	assert.ErrorIs(t, err, mealprep.ErrNotFound)

	_, err = reg.Execute(context.Background(), Call{Name: "pantry_get"})
	assert.ErrorIs(t, err, mealprep.ErrNotFound)
}

func TestSuggestMeal_Run(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		want  planner.SuggestRequest
	}{
		{
			name:  "defaults",
			input: nil,
			want:  planner.SuggestRequest{NumPeople: DefaultNumPeople, DaysBack: DefaultDaysBack},
		},
		{
			name: "explicit zero days back",
			input: map[string]any{
				"ingredients":         []any{"beans", "rice"},
				"num_people":          4,
				"days_back":           0,
				"dietary_preferences": "vegan",
				"rejected_meals":      []any{"Chili"},
			},
			want: planner.SuggestRequest{
				Ingredients:        []string{"beans", "rice"},
				NumPeople:          4,
				DaysBack:           0,
				DietaryPreferences: "vegan",
				RejectedMeals:      []string{"Chili"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockPlanner{}
			out, err := NewSuggestMeal(p).Run(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.suggestReq)
			assert.Equal(t, "valid", out["status"])
			assert.Equal(t, "diverse-selection", out["context_type"])
			meal := out["meal"].(map[string]any)
			assert.Equal(t, "Tacos", meal["meal_name"])
		})
	}

	_, err := NewSuggestMeal(&mockPlanner{}).Run(context.Background(), map[string]any{"num_people": "four"})
	assert.ErrorIs(t, err, mealprep.ErrInvalidRequest)

	_, err = NewSuggestMeal(&mockPlanner{err: mealprep.ErrRetrieval}).Run(context.Background(), nil)
	assert.ErrorIs(t, err, mealprep.ErrRetrieval)
}

func TestGenerateMealPlan_Run(t *testing.T) {
	p := &mockPlanner{}
	out, err := NewGenerateMealPlan(p).Run(context.Background(), map[string]any{"num_days": 3})
	require.NoError(t, err)
	assert.False(t, p.singleCall)
	assert.Equal(t, planner.PlanRequest{NumDays: 3, NumPeople: 2, DaysBack: 14}, p.planReq)

	plan := out["meal_plan"].(map[string]any)
	meals := plan["meals"].([]any)
	require.Len(t, meals, 2)
	assert.Equal(t, "Tacos", meals[0].(map[string]any)["meal_name"])
	assert.EqualValues(t, 1, meals[0].(map[string]any)["day_number"])

	p = &mockPlanner{}
	_, err = NewGenerateMealPlan(p).Run(context.Background(), map[string]any{"single_call": true})
	require.NoError(t, err)
	assert.True(t, p.singleCall)
	assert.Equal(t, DefaultNumDays, p.planReq.NumDays)
}

func TestRegenerateMeal_Run(t *testing.T) {
	ctx := context.Background()

	p := &mockPlanner{}
	planInput, err := toMap(testPlan())
	require.NoError(t, err)
	out, err := NewRegenerateMeal(p).Run(ctx, map[string]any{"day": 2, "meal_plan": planInput})
	require.NoError(t, err)
	assert.Equal(t, 2, p.regenDay)
	assert.Equal(t, testPlan(), p.regenPlan)
	assert.Equal(t, "partial", out["status"])
	assert.Contains(t, out, "meal_plan")

	p = &mockPlanner{}
	out, err = NewRegenerateMeal(p).Run(ctx, map[string]any{"day": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, p.replaceDay)
	assert.EqualValues(t, 42, out["meal_id"])
}

func TestSearchRecipes_Run(t *testing.T) {
	p := &mockPlanner{}
	out, err := NewSearchRecipes(p).Run(context.Background(), map[string]any{"query": "tomato"})
	require.NoError(t, err)
	assert.Equal(t, "tomato", p.searchQuery)
	assert.Zero(t, p.searchLimit)
	recipes := out["recipes"].([]any)
	require.Len(t, recipes, 1)
	assert.Equal(t, "Tomato Soup", recipes[0].(map[string]any)["title"])

	_, err = NewSearchRecipes(p).Run(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, mealprep.ErrInvalidRequest)
}

func TestSaveMealPlan_Run(t *testing.T) {
	p := &mockPlanner{}
	planInput, err := toMap(testPlan())
	require.NoError(t, err)

	out, err := NewSaveMealPlan(p).Run(context.Background(), map[string]any{"meal_plan": planInput, "name": "Week 12"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), out["meal_plan_id"])
	assert.Equal(t, testPlan(), p.savedPlan)
	assert.Equal(t, mealprep.PlanMeta{Name: "Week 12", NumPeople: 2}, p.savedMeta)

	_, err = NewSaveMealPlan(p).Run(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, mealprep.ErrInvalidRequest)
}

func TestGetLatestPlan_Run(t *testing.T) {
	_, err := NewGetLatestPlan(&mockPlanner{}).Run(context.Background(), nil)
	assert.ErrorIs(t, err, mealprep.ErrNotFound)

	p := &mockPlanner{latest: &mealprep.StoredPlan{
		Plan:         mealprep.PlanMeta{ID: 3, NumDays: 1, NumPeople: 2},
		Meals:        []mealprep.MealRecord{{ID: 9, MealPlanID: 3, DayNumber: 1, MealName: "Tacos"}},
		ShoppingList: []string{"tortillas"},
	}}
	out, err := NewGetLatestPlan(p).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, out["plan"].(map[string]any)["id"])
	assert.Len(t, out["meals"], 1)
	assert.Equal(t, []any{"tortillas"}, out["shopping_list"])
}

func TestGetMealHistory_Run(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]any
		history   []mealprep.MealRecord
		wantName  string
		wantLimit int
		wantMeals int
	}{
		{name: "no history", input: nil},
		{
			name:      "filtered by name",
			input:     map[string]any{"meal_name": "Tacos", "limit": 5},
			history:   []mealprep.MealRecord{{ID: 4, MealName: "Tacos", Feedback: "great"}, {ID: 1, MealName: "Tacos"}},
			wantName:  "Tacos",
			wantLimit: 5,
			wantMeals: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockPlanner{history: tt.history}
			out, err := NewGetMealHistory(p).Run(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, 1, p.callCount)
			assert.Equal(t, tt.wantName, p.historyName)
			assert.Equal(t, tt.wantLimit, p.historyMax)
			require.IsType(t, []any{}, out["meals"])
			assert.Len(t, out["meals"], tt.wantMeals)
		})
	}

	p := &mockPlanner{history: []mealprep.MealRecord{{ID: 4, MealName: "Tacos", Feedback: "great"}}}
	out, err := NewGetMealHistory(p).Run(context.Background(), nil)
	require.NoError(t, err)
	meal := out["meals"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 4, meal["id"])
	assert.Equal(t, "great", meal["feedback"])

	_, err = NewGetMealHistory(p).Run(context.Background(), map[string]any{"limit": "many"})
	assert.ErrorIs(t, err, mealprep.ErrInvalidRequest)

	_, err = NewGetMealHistory(&mockPlanner{err: errors.New("db locked")}).Run(context.Background(), nil)
	assert.ErrorContains(t, err, "db locked")
}

func TestRecordFeedback_Run(t *testing.T) {
	tests := []struct {
		name         string
		input        map[string]any
		wantErr      error
		wantFeedback map[int64]string
		wantAccepted map[int64]bool
	}{
		{
			name:         "feedback only",
			input:        map[string]any{"meal_id": 5, "feedback": "loved it"},
			wantFeedback: map[int64]string{5: "loved it"},
		},
		{
			name:         "acceptance only",
			input:        map[string]any{"meal_id": 5, "accepted": false},
			wantAccepted: map[int64]bool{5: false},
		},
		{
			name:    "missing id",
			input:   map[string]any{"feedback": "x"},
			wantErr: mealprep.ErrInvalidRequest,
		},
		{
			name:    "nothing to record",
			input:   map[string]any{"meal_id": 5},
			wantErr: mealprep.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockPlanner{}
			out, err := NewRecordFeedback(p).Run(context.Background(), tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, p.callCount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(5), out["meal_id"])
			assert.Equal(t, tt.wantFeedback, p.feedback)
			assert.Equal(t, tt.wantAccepted, p.accepted)
		})
	}

	p := &mockPlanner{err: errors.New("db locked")}
	_, err := NewRecordFeedback(p).Run(context.Background(), map[string]any{"meal_id": 1, "feedback": "x"})
	assert.ErrorContains(t, err, "db locked")
}
