package mealprep

import (
	"context"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// CompletionRequest is a single structured completion call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Schema      *jsonschema.Schema
	SchemaName  string
	Temperature float32
}

// Completer returns the raw model text for a request. Transport failures are returned as errors;
// whether the text honours the schema is the caller's concern.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MealSuggestion is a single suggested meal.
type MealSuggestion struct {
	MealName    string   `json:"meal_name" jsonschema:"name of the meal"`
	Ingredients []string `json:"ingredients" jsonschema:"ingredients with quantities scaled to the number of people"`
	Recipe      []string `json:"recipe" jsonschema:"ordered preparation steps"`
}

// MealPlanEntry is a suggestion pinned to a day of a plan.
type MealPlanEntry struct {
	MealSuggestion
	DayNumber int `json:"day_number"`
}

// MealPlan is a day-ordered list of meals plus the aggregated shopping list.
type MealPlan struct {
	Meals        []MealPlanEntry `json:"meals"`
	ShoppingList []string        `json:"shopping_list"`
}

// MealNames returns the names of all meals in the plan, skipping the day given (0 skips nothing)
// and empty placeholders.
func (mp MealPlan) MealNames(skipDay int) []string {
	names := make([]string, 0, len(mp.Meals))
	for _, m := range mp.Meals {
		if m.DayNumber == skipDay || m.MealName == "" {
			continue
		}
		names = append(names, m.MealName)
	}
	return names
}

// Ingredients returns every ingredient of every meal in day order.
func (mp MealPlan) Ingredients() []string {
	var all []string
	for _, m := range mp.Meals {
		all = append(all, m.Ingredients...)
	}
	return all
}

// RecipeRow is a recipe returned by the retrieval layer.
type RecipeRow struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Contents string  `json:"contents"`
	DietPref string  `json:"diet_pref,omitempty"`
	Dessert  bool    `json:"dessert,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// MealRecord is a row of the meal log.
type MealRecord struct {
	ID          int64     `json:"id"`
	MealPlanID  int64     `json:"meal_plan_id,omitempty"`
	DayNumber   int       `json:"day_number,omitempty"`
	MealName    string    `json:"meal_name"`
	Ingredients []string  `json:"ingredients"`
	Recipe      []string  `json:"recipe"`
	Date        time.Time `json:"date"`
	Accepted    bool      `json:"accepted"`
	Feedback    string    `json:"feedback,omitempty"`
}

// Suggestion converts the record back into a suggestion.
func (r MealRecord) Suggestion() MealSuggestion {
	return MealSuggestion{MealName: r.MealName, Ingredients: r.Ingredients, Recipe: r.Recipe}
}

// PlanMeta describes a stored plan.
type PlanMeta struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name,omitempty"`
	NumDays            int       `json:"num_days"`
	NumPeople          int       `json:"num_people"`
	DietaryPreferences string    `json:"dietary_preferences,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// StoredPlan is a plan as read back from the store.
type StoredPlan struct {
	Plan  PlanMeta     `json:"plan"`
	Meals []MealRecord `json:"meals"`
	// ShoppingList is the list saved with the plan.
	ShoppingList []string `json:"shopping_list"`
}

// MealPlan rebuilds the in-memory plan from the stored rows.
func (sp StoredPlan) MealPlan() MealPlan {
	mp := MealPlan{Meals: make([]MealPlanEntry, 0, len(sp.Meals)), ShoppingList: sp.ShoppingList}
	for _, m := range sp.Meals {
		mp.Meals = append(mp.Meals, MealPlanEntry{MealSuggestion: m.Suggestion(), DayNumber: m.DayNumber})
	}
	return mp
}
