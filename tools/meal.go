package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"mealprep"
	"mealprep/planner"
)

// Defaults applied when a tool call leaves a field out.
const (
	DefaultNumPeople = 2
	DefaultNumDays   = 7
	DefaultDaysBack  = 14
)

// Planner is the part of planner.Service the tools drive. Both the plain and the instrumented
// service satisfy it.
type Planner interface {
	SuggestMeal(ctx context.Context, req planner.SuggestRequest) (planner.Suggestion, error)
	GenerateMealPlan(ctx context.Context, req planner.PlanRequest) (mealprep.MealPlan, error)
	GenerateMealPlanSingleCall(ctx context.Context, req planner.PlanRequest) (mealprep.MealPlan, error)
	RegenerateMealForDay(ctx context.Context, day int, plan mealprep.MealPlan, numPeople int, dietary string) (planner.Suggestion, mealprep.MealPlan, error)
	ReplacePlannedMeal(ctx context.Context, day, numPeople int, dietary string) (planner.Suggestion, int64, error)
	SearchRecipes(ctx context.Context, query string, limit int) ([]mealprep.RecipeRow, error)
	SampleRecipes(ctx context.Context, limit int, dietary string) ([]mealprep.RecipeRow, error)
	SaveMealPlan(ctx context.Context, plan mealprep.MealPlan, meta mealprep.PlanMeta) (int64, error)
	LatestPlan(ctx context.Context) (*mealprep.StoredPlan, error)
	MealHistory(ctx context.Context, name string, limit int) ([]mealprep.MealRecord, error)
	AddFeedback(ctx context.Context, mealID int64, feedback string) error
	SetAccepted(ctx context.Context, mealID int64, accepted bool) error
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func daysBackOrDefault(v *int) int {
	if v == nil {
		return DefaultDaysBack
	}
	return *v
}

func numPeopleProp() *jsonschema.Schema {
	return rangeSchema("Number of people to serve (default 2)", planner.MinPeople, planner.MaxPeople)
}

func daysBackProp() *jsonschema.Schema {
	return rangeSchema("How many days of meal history to avoid repeating (default 14)", planner.MinDaysBack, planner.MaxDaysBack)
}

func dietaryProp() *jsonschema.Schema {
	return stringSchema("Dietary preferences, e.g. vegetarian")
}

type SuggestMeal struct{ planner Planner }

func NewSuggestMeal(p Planner) *SuggestMeal { return &SuggestMeal{planner: p} }

func (t *SuggestMeal) Name() string  { return "suggest_meal" }
func (t *SuggestMeal) Title() string { return "Suggest Meal" }
func (t *SuggestMeal) Description() string {
	return "Suggests one dinner, using the given ingredients when provided and avoiding recent meals."
}

func (t *SuggestMeal) InputSchema() *jsonschema.Schema {
	return objectSchema(nil, map[string]*jsonschema.Schema{
		"ingredients":         stringsSchema("Available ingredients"),
		"num_people":          numPeopleProp(),
		"days_back":           daysBackProp(),
		"dietary_preferences": dietaryProp(),
		"rejected_meals":      stringsSchema("Meals already turned down in this session"),
	})
}

func (t *SuggestMeal) OutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"meal", "status"}, map[string]*jsonschema.Schema{
		"meal":         mealSchema(),
		"status":       {Type: "string", Enum: []any{"valid", "partial", "failed"}},
		"context_type": stringSchema("How the grounding recipes were chosen"),
		"attempts":     integerSchema("Completion attempts made"),
	})
}

func (t *SuggestMeal) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		Ingredients        []string `json:"ingredients"`
		NumPeople          int      `json:"num_people"`
		DaysBack           *int     `json:"days_back"`
		DietaryPreferences string   `json:"dietary_preferences"`
		RejectedMeals      []string `json:"rejected_meals"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}

	sug, err := t.planner.SuggestMeal(ctx, planner.SuggestRequest{
		Ingredients:        in.Ingredients,
		DaysBack:           daysBackOrDefault(in.DaysBack),
		NumPeople:          orDefault(in.NumPeople, DefaultNumPeople),
		DietaryPreferences: in.DietaryPreferences,
		RejectedMeals:      in.RejectedMeals,
	})
	if err != nil {
		return nil, err
	}
	return toMap(sug)
}

type GenerateMealPlan struct{ planner Planner }

func NewGenerateMealPlan(p Planner) *GenerateMealPlan { return &GenerateMealPlan{planner: p} }

func (t *GenerateMealPlan) Name() string  { return "generate_meal_plan" }
func (t *GenerateMealPlan) Title() string { return "Generate Meal Plan" }
func (t *GenerateMealPlan) Description() string {
	return "Plans one dinner per day for several days and returns the meals with a combined shopping list."
}

func (t *GenerateMealPlan) InputSchema() *jsonschema.Schema {
	return objectSchema(nil, map[string]*jsonschema.Schema{
		"num_days":            rangeSchema("Number of days to plan (default 7)", planner.MinDays, planner.MaxDays),
		"num_people":          numPeopleProp(),
		"days_back":           daysBackProp(),
		"dietary_preferences": dietaryProp(),
		"ingredients":         stringsSchema("Ingredients to build the plan around"),
		"single_call":         {Type: "boolean", Description: "Generate all days in one model call"},
	})
}

func (t *GenerateMealPlan) OutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"meal_plan"}, map[string]*jsonschema.Schema{
		"meal_plan": mealPlanSchema(),
	})
}

func (t *GenerateMealPlan) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		NumDays            int      `json:"num_days"`
		NumPeople          int      `json:"num_people"`
		DaysBack           *int     `json:"days_back"`
		DietaryPreferences string   `json:"dietary_preferences"`
		Ingredients        []string `json:"ingredients"`
		SingleCall         bool     `json:"single_call"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}

	req := planner.PlanRequest{
		NumDays:            orDefault(in.NumDays, DefaultNumDays),
		NumPeople:          orDefault(in.NumPeople, DefaultNumPeople),
		DaysBack:           daysBackOrDefault(in.DaysBack),
		DietaryPreferences: in.DietaryPreferences,
		Ingredients:        in.Ingredients,
	}
	generate := t.planner.GenerateMealPlan
	if in.SingleCall {
		generate = t.planner.GenerateMealPlanSingleCall
	}
	plan, err := generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return toMap(map[string]any{"meal_plan": plan})
}

type RegenerateMeal struct{ planner Planner }

func NewRegenerateMeal(p Planner) *RegenerateMeal { return &RegenerateMeal{planner: p} }

func (t *RegenerateMeal) Name() string  { return "regenerate_meal" }
func (t *RegenerateMeal) Title() string { return "Regenerate Meal" }
func (t *RegenerateMeal) Description() string {
	return "Replaces the meal of one day. With a meal_plan the updated plan is returned; without one the latest saved plan is updated in place."
}

func (t *RegenerateMeal) InputSchema() *jsonschema.Schema {
	return objectSchema([]string{"day"}, map[string]*jsonschema.Schema{
		"day":                 integerSchema("Day of the plan to replace, starting at 1"),
		"meal_plan":           mealPlanSchema(),
		"num_people":          numPeopleProp(),
		"dietary_preferences": dietaryProp(),
	})
}

func (t *RegenerateMeal) OutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"meal"}, map[string]*jsonschema.Schema{
		"meal":      mealSchema(),
		"status":    stringSchema("valid, partial or failed"),
		"meal_plan": mealPlanSchema(),
		"meal_id":   integerSchema("Id of the stored replacement meal"),
	})
}

func (t *RegenerateMeal) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		Day                int                `json:"day"`
		MealPlan           *mealprep.MealPlan `json:"meal_plan"`
		NumPeople          int                `json:"num_people"`
		DietaryPreferences string             `json:"dietary_preferences"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	numPeople := orDefault(in.NumPeople, DefaultNumPeople)

	if in.MealPlan == nil {
		sug, id, err := t.planner.ReplacePlannedMeal(ctx, in.Day, numPeople, in.DietaryPreferences)
		if err != nil {
			return nil, err
		}
		return toMap(map[string]any{"meal": sug.Meal, "status": sug.Status, "meal_id": id})
	}

	sug, plan, err := t.planner.RegenerateMealForDay(ctx, in.Day, *in.MealPlan, numPeople, in.DietaryPreferences)
	if err != nil {
		return nil, err
	}
	return toMap(map[string]any{"meal": sug.Meal, "status": sug.Status, "meal_plan": plan})
}

type SearchRecipes struct{ planner Planner }

func NewSearchRecipes(p Planner) *SearchRecipes { return &SearchRecipes{planner: p} }

func (t *SearchRecipes) Name() string        { return "search_recipes" }
func (t *SearchRecipes) Title() string       { return "Search Recipes" }
func (t *SearchRecipes) Description() string { return "Searches for recipes by ingredients or name." }

func (t *SearchRecipes) InputSchema() *jsonschema.Schema {
	return objectSchema([]string{"query"}, map[string]*jsonschema.Schema{
		"query": stringSchema("Search query"),
		"limit": rangeSchema("Maximum number of recipes (default 5)", 1, 50),
	})
}

func (t *SearchRecipes) OutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"recipes"}, map[string]*jsonschema.Schema{
		"recipes": {Type: "array", Items: openObject()},
	})
}

func (t *SearchRecipes) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	if in.Query == "" {
		return nil, fmt.Errorf("%w: query is required", mealprep.ErrInvalidRequest)
	}

	rows, err := t.planner.SearchRecipes(ctx, in.Query, in.Limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []mealprep.RecipeRow{}
	}
	return toMap(map[string]any{"recipes": rows})
}

type SaveMealPlan struct{ planner Planner }

func NewSaveMealPlan(p Planner) *SaveMealPlan { return &SaveMealPlan{planner: p} }

func (t *SaveMealPlan) Name() string        { return "save_meal_plan" }
func (t *SaveMealPlan) Title() string       { return "Save Meal Plan" }
func (t *SaveMealPlan) Description() string { return "Stores a meal plan so it can be reviewed and cooked later." }

func (t *SaveMealPlan) InputSchema() *jsonschema.Schema {
	return objectSchema([]string{"meal_plan"}, map[string]*jsonschema.Schema{
		"meal_plan":           mealPlanSchema(),
		"name":                stringSchema("Optional name for the plan"),
		"num_people":          numPeopleProp(),
		"dietary_preferences": dietaryProp(),
	})
}

func (t *SaveMealPlan) OutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"meal_plan_id"}, map[string]*jsonschema.Schema{
		"meal_plan_id": integerSchema("Id of the stored plan"),
	})
}

func (t *SaveMealPlan) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		MealPlan           *mealprep.MealPlan `json:"meal_plan"`
		Name               string             `json:"name"`
		NumPeople          int                `json:"num_people"`
		DietaryPreferences string             `json:"dietary_preferences"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	if in.MealPlan == nil {
		return nil, fmt.Errorf("%w: meal_plan is required", mealprep.ErrInvalidRequest)
	}

	id, err := t.planner.SaveMealPlan(ctx, *in.MealPlan, mealprep.PlanMeta{
		Name:               in.Name,
		NumPeople:          orDefault(in.NumPeople, DefaultNumPeople),
		DietaryPreferences: in.DietaryPreferences,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"meal_plan_id": id}, nil
}

type GetLatestPlan struct{ planner Planner }

func NewGetLatestPlan(p Planner) *GetLatestPlan { return &GetLatestPlan{planner: p} }

func (t *GetLatestPlan) Name() string        { return "get_latest_plan" }
func (t *GetLatestPlan) Title() string       { return "Get Latest Plan" }
func (t *GetLatestPlan) Description() string { return "Returns the most recently saved meal plan." }

func (t *GetLatestPlan) InputSchema() *jsonschema.Schema {
	return objectSchema(nil, map[string]*jsonschema.Schema{})
}

func (t *GetLatestPlan) OutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"plan", "meals"}, map[string]*jsonschema.Schema{
		"plan":          openObject(),
		"meals":         {Type: "array", Items: openObject()},
		"shopping_list": stringsSchema("Aggregated ingredients"),
	})
}

func (t *GetLatestPlan) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	stored, err := t.planner.LatestPlan(ctx)
	if err != nil {
		return nil, err
	}
	return toMap(stored)
}

type GetMealHistory struct{ planner Planner }

func NewGetMealHistory(p Planner) *GetMealHistory { return &GetMealHistory{planner: p} }

func (t *GetMealHistory) Name() string  { return "get_meal_history" }
func (t *GetMealHistory) Title() string { return "Get Meal History" }
func (t *GetMealHistory) Description() string {
	return "Lists cooked and planned meals, newest first, with their ids, feedback and acceptance. Filter by exact meal name to see how a dish went before."
}

func (t *GetMealHistory) InputSchema() *jsonschema.Schema {
	return objectSchema(nil, map[string]*jsonschema.Schema{
		"meal_name": stringSchema("Only meals with exactly this name"),
		"limit":     rangeSchema("Maximum number of meals (default 100)", 1, 500),
	})
}

func (t *GetMealHistory) OutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"meals"}, map[string]*jsonschema.Schema{
		"meals": {Type: "array", Items: openObject()},
	})
}

func (t *GetMealHistory) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		MealName string `json:"meal_name"`
		Limit    int    `json:"limit"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}

	meals, err := t.planner.MealHistory(ctx, in.MealName, in.Limit)
	if err != nil {
		return nil, err
	}
	if meals == nil {
		meals = []mealprep.MealRecord{}
	}
	return toMap(map[string]any{"meals": meals})
}

type RecordFeedback struct{ planner Planner }

func NewRecordFeedback(p Planner) *RecordFeedback { return &RecordFeedback{planner: p} }

func (t *RecordFeedback) Name() string  { return "record_feedback" }
func (t *RecordFeedback) Title() string { return "Record Feedback" }
func (t *RecordFeedback) Description() string {
	return "Stores feedback for a logged meal and optionally marks it accepted or rejected."
}

func (t *RecordFeedback) InputSchema() *jsonschema.Schema {
	return objectSchema([]string{"meal_id"}, map[string]*jsonschema.Schema{
		"meal_id":  integerSchema("Id of the meal"),
		"feedback": stringSchema("Free-text feedback"),
		"accepted": {Type: "boolean", Description: "Whether the meal was accepted"},
	})
}

func (t *RecordFeedback) OutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"meal_id"}, map[string]*jsonschema.Schema{
		"meal_id": integerSchema("Id of the meal"),
	})
}

func (t *RecordFeedback) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		MealID   int64  `json:"meal_id"`
		Feedback string `json:"feedback"`
		Accepted *bool  `json:"accepted"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	if in.MealID <= 0 {
		return nil, fmt.Errorf("%w: meal_id is required", mealprep.ErrInvalidRequest)
	}
	if in.Feedback == "" && in.Accepted == nil {
		return nil, fmt.Errorf("%w: feedback or accepted is required", mealprep.ErrInvalidRequest)
	}

	if in.Feedback != "" {
		if err := t.planner.AddFeedback(ctx, in.MealID, in.Feedback); err != nil {
			return nil, err
		}
	}
	if in.Accepted != nil {
		if err := t.planner.SetAccepted(ctx, in.MealID, *in.Accepted); err != nil {
			return nil, err
		}
	}
	return map[string]any{"meal_id": in.MealID}, nil
}
