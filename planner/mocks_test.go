package planner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"mealprep"
)

type completion struct {
	text string
	err  error
}

// mockCompleter returns canned completions in order and records every request.
type mockCompleter struct {
	responses []completion
	callCount int
	requests  []mealprep.CompletionRequest
}

func (m *mockCompleter) Complete(ctx context.Context, req mealprep.CompletionRequest) (string, error) {
	m.requests = append(m.requests, req)
	if m.callCount >= len(m.responses) {
		return "", errors.New("no more responses available")
	}
	resp := m.responses[m.callCount]
	m.callCount++
	return resp.text, resp.err
}

func newMockCompleter(texts ...string) *mockCompleter {
	m := &mockCompleter{}
	for _, t := range texts {
		m.responses = append(m.responses, completion{text: t})
	}
	return m
}

type searchCall struct {
	terms  []string
	limit  int
	filter map[string]string
}

type diverseCall struct {
	limit   int
	dietary string
}

type mockSearcher struct {
	rows         []mealprep.RecipeRow
	err          error
	searches     []searchCall
	diverseCalls []diverseCall
}

func (m *mockSearcher) Search(ctx context.Context, terms []string, limit int, filter map[string]string) ([]mealprep.RecipeRow, error) {
	m.searches = append(m.searches, searchCall{terms: terms, limit: limit, filter: filter})
	return m.rows, m.err
}

func (m *mockSearcher) DiverseRecipes(ctx context.Context, limit int, dietary string) ([]mealprep.RecipeRow, error) {
	m.diverseCalls = append(m.diverseCalls, diverseCall{limit: limit, dietary: dietary})
	return m.rows, m.err
}

// mockStore keeps everything in memory.
type mockStore struct {
	recent    []string
	recentErr error
	daysBack  []int
	limits    []int
	records   []mealprep.MealRecord
	plans     []*mealprep.StoredPlan
	nextID    int64
}

func (m *mockStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockStore) RecentMealNames(ctx context.Context, daysBack int) ([]string, error) {
	m.daysBack = append(m.daysBack, daysBack)
	return m.recent, m.recentErr
}

func (m *mockStore) RecordMeal(ctx context.Context, rec mealprep.MealRecord) (int64, error) {
	rec.ID = m.id()
	m.records = append(m.records, rec)
	return rec.ID, nil
}

func (m *mockStore) record(id int64) (*mealprep.MealRecord, error) {
	for i := range m.records {
		if m.records[i].ID == id {
			return &m.records[i], nil
		}
	}
	return nil, fmt.Errorf("meal %d: %w", id, mealprep.ErrNotFound)
}

func (m *mockStore) UpdateMealFeedback(ctx context.Context, id int64, feedback string) error {
	rec, err := m.record(id)
	if err != nil {
		return err
	}
	rec.Feedback = feedback
	return nil
}

func (m *mockStore) UpdateMealAcceptance(ctx context.Context, id int64, accepted bool) error {
	rec, err := m.record(id)
	if err != nil {
		return err
	}
	rec.Accepted = accepted
	return nil
}

func (m *mockStore) SavePlan(ctx context.Context, plan mealprep.MealPlan, meta mealprep.PlanMeta) (int64, error) {
	meta.ID = m.id()
	sp := &mealprep.StoredPlan{Plan: meta, ShoppingList: plan.ShoppingList}
	for _, e := range plan.Meals {
		sp.Meals = append(sp.Meals, mealprep.MealRecord{
			ID:          m.id(),
			MealPlanID:  meta.ID,
			DayNumber:   e.DayNumber,
			MealName:    e.MealName,
			Ingredients: e.Ingredients,
			Recipe:      e.Recipe,
			Date:        meta.CreatedAt,
		})
	}
	m.plans = append(m.plans, sp)
	return meta.ID, nil
}

func (m *mockStore) LatestPlan(ctx context.Context) (*mealprep.StoredPlan, error) {
	if len(m.plans) == 0 {
		return nil, fmt.Errorf("latest plan: %w", mealprep.ErrNotFound)
	}
	return m.plans[len(m.plans)-1], nil
}

func (m *mockStore) ReplaceMealInPlan(ctx context.Context, oldMealID int64, meal mealprep.MealSuggestion) (int64, error) {
	for _, p := range m.plans {
		for i, rec := range p.Meals {
			if rec.ID != oldMealID {
				continue
			}
			p.Meals[i] = mealprep.MealRecord{
				ID:          m.id(),
				MealPlanID:  rec.MealPlanID,
				DayNumber:   rec.DayNumber,
				MealName:    meal.MealName,
				Ingredients: meal.Ingredients,
				Recipe:      meal.Recipe,
				Date:        time.Now(),
			}
			return p.Meals[i].ID, nil
		}
	}
	return 0, fmt.Errorf("meal %d: %w", oldMealID, mealprep.ErrNotFound)
}

func (m *mockStore) UpdateShoppingList(ctx context.Context, planID int64, list []string) error {
	for _, p := range m.plans {
		if p.Plan.ID == planID {
			p.ShoppingList = list
			return nil
		}
	}
	return fmt.Errorf("plan %d: %w", planID, mealprep.ErrNotFound)
}

func (m *mockStore) MealsByName(ctx context.Context, name string) ([]mealprep.MealRecord, error) {
	var out []mealprep.MealRecord
	for _, rec := range m.records {
		if rec.MealName == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockStore) AllMeals(ctx context.Context, limit int) ([]mealprep.MealRecord, error) {
	m.limits = append(m.limits, limit)
	out := slices.Clone(m.records)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recordingLogger keeps every attempt it is given.
type recordingLogger struct {
	attempts []mealprep.AttemptLog
}

func (r *recordingLogger) LogAttempt(attempt mealprep.AttemptLog) error {
	r.attempts = append(r.attempts, attempt)
	return nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }
