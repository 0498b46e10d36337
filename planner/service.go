package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mealprep"
)

// Request limits.
const (
	MinPeople   = 1
	MaxPeople   = 20
	MinDays     = 1
	MaxDays     = 14
	MinDaysBack = 0
	MaxDaysBack = 60

	DefaultSearchLimit = 5

	// RegenerateDaysBack is how much meal history a single-day regeneration avoids.
	RegenerateDaysBack = 14
)

const (
	defaultTemperature     = 1.0
	defaultPlanTemperature = 0.7
)

// MealStore is the persistence the planner needs.
type MealStore interface {
	RecentMealNames(ctx context.Context, daysBack int) ([]string, error)
	RecordMeal(ctx context.Context, rec mealprep.MealRecord) (int64, error)
	UpdateMealFeedback(ctx context.Context, id int64, feedback string) error
	UpdateMealAcceptance(ctx context.Context, id int64, accepted bool) error
	SavePlan(ctx context.Context, plan mealprep.MealPlan, meta mealprep.PlanMeta) (int64, error)
	LatestPlan(ctx context.Context) (*mealprep.StoredPlan, error)
	ReplaceMealInPlan(ctx context.Context, oldMealID int64, meal mealprep.MealSuggestion) (int64, error)
	UpdateShoppingList(ctx context.Context, planID int64, list []string) error
	MealsByName(ctx context.Context, name string) ([]mealprep.MealRecord, error)
	AllMeals(ctx context.Context, limit int) ([]mealprep.MealRecord, error)
}

// SuggestRequest asks for one meal.
type SuggestRequest struct {
	Ingredients        []string `json:"ingredients,omitempty"`
	DaysBack           int      `json:"days_back"`
	NumPeople          int      `json:"num_people"`
	DietaryPreferences string   `json:"dietary_preferences,omitempty"`
	RejectedMeals      []string `json:"rejected_meals,omitempty"`
}

// PlanRequest asks for a multi-day plan.
type PlanRequest struct {
	NumDays            int      `json:"num_days"`
	NumPeople          int      `json:"num_people"`
	DaysBack           int      `json:"days_back"`
	DietaryPreferences string   `json:"dietary_preferences,omitempty"`
	Ingredients        []string `json:"ingredients,omitempty"`
}

// Suggestion is a generated meal together with how it was obtained.
type Suggestion struct {
	Meal        mealprep.MealSuggestion `json:"meal"`
	Status      ParseStatus             `json:"status"`
	ContextType ContextType             `json:"context_type"`
	Attempts    int                     `json:"attempts"`
}

// Failed reports whether no usable meal came back.
func (s Suggestion) Failed() bool {
	return s.Status == StatusFailed || s.Meal.MealName == ""
}

type ServiceOptions struct {
	Temperature     float32
	PlanTemperature float32
}

// Service assembles suggestions and plans from retrieval, prompting, invocation and parsing.
type Service struct {
	searcher        RecipeSearcher
	selector        *ContextSelector
	invoker         *Invoker
	store           MealStore
	temperature     float32
	planTemperature float32
	now             func() time.Time
}

func NewService(searcher RecipeSearcher, invoker *Invoker, store MealStore, opts ServiceOptions) *Service {
	s := &Service{
		searcher:        searcher,
		selector:        NewContextSelector(searcher),
		invoker:         invoker,
		store:           store,
		temperature:     opts.Temperature,
		planTemperature: opts.PlanTemperature,
		now:             time.Now,
	}
	if s.temperature <= 0 {
		s.temperature = defaultTemperature
	}
	if s.planTemperature <= 0 {
		s.planTemperature = defaultPlanTemperature
	}
	return s
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d", mealprep.ErrInvalidRequest, name, lo, hi, v)
	}
	return nil
}

func (r SuggestRequest) validate() error {
	return errors.Join(
		checkRange("num_people", r.NumPeople, MinPeople, MaxPeople),
		checkRange("days_back", r.DaysBack, MinDaysBack, MaxDaysBack),
	)
}

func (r PlanRequest) validate() error {
	return errors.Join(
		checkRange("num_days", r.NumDays, MinDays, MaxDays),
		checkRange("num_people", r.NumPeople, MinPeople, MaxPeople),
		checkRange("days_back", r.DaysBack, MinDaysBack, MaxDaysBack),
	)
}

// SuggestMeal suggests one meal avoiding recent history and the rejected names.
func (s *Service) SuggestMeal(ctx context.Context, req SuggestRequest) (Suggestion, error) {
	ctx, span := otel.Tracer(mealprep.TracerNamePlanner).Start(ctx, "Service.SuggestMeal")
	defer span.End()

	if err := req.validate(); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return Suggestion{}, err
	}

	history, err := s.store.RecentMealNames(ctx, req.DaysBack)
	if err != nil {
		span.RecordError(err)
		return Suggestion{}, fmt.Errorf("recent meals: %w", err)
	}

	sug, err := s.suggest(ctx, suggestInput{
		ingredients: req.Ingredients,
		dietary:     req.DietaryPreferences,
		numPeople:   req.NumPeople,
		exclusions:  BuildExclusions(history, req.RejectedMeals),
		operation:   "suggest_meal",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "suggestion failed")
		return Suggestion{}, err
	}

	span.SetAttributes(
		attribute.String("meal_name", sug.Meal.MealName),
		attribute.String("status", sug.Status.String()),
		attribute.String("context_type", string(sug.ContextType)),
	)
	return sug, nil
}

type suggestInput struct {
	ingredients []string
	dietary     string
	numPeople   int
	exclusions  Exclusions
	operation   string
}

func (s *Service) suggest(ctx context.Context, in suggestInput) (Suggestion, error) {
	rc, err := s.selector.Select(ctx, in.ingredients, in.dietary, ModeSingle)
	if err != nil {
		return Suggestion{}, err
	}

	prompt := BuildPrompt(promptKindFor(in.ingredients), PromptInput{
		Ingredients:        in.ingredients,
		DietaryPreferences: in.dietary,
		Exclusions:         in.exclusions,
		NumPeople:          in.numPeople,
	})

	out := s.invoker.Invoke(ctx, mealprep.CompletionRequest{
		System:      systemPrompt,
		Prompt:      WithContext(rc.Rows, prompt),
		Schema:      SuggestionSchema(),
		SchemaName:  SuggestionSchemaName,
		Temperature: s.temperature,
	}, in.operation)

	sug := Suggestion{ContextType: rc.Type, Attempts: out.Attempts}
	if meal, ok := mealFromObject(out.Value); out.State == StateSuccess && ok {
		sug.Meal, sug.Status = meal, StatusValid
		return sug, nil
	}

	slog.Warn("PLANNER: Falling back to heuristic parsing", "operation", in.operation, "attempts", out.Attempts)
	parsed := ParseSingle(out.Raw)
	sug.Meal, sug.Status = parsed.Meal, parsed.Status
	if parsed.Status == StatusFailed {
		sug.Meal = emptyMeal()
	}
	return sug, nil
}

// GenerateMealPlan generates one meal per day, in order. Each day excludes the meals already planned.
// A day whose suggestion fails becomes a placeholder with an empty name; retrieval and storage
// failures abort the plan.
func (s *Service) GenerateMealPlan(ctx context.Context, req PlanRequest) (mealprep.MealPlan, error) {
	ctx, span := otel.Tracer(mealprep.TracerNamePlanner).Start(ctx, "Service.GenerateMealPlan")
	defer span.End()
	span.SetAttributes(attribute.Int("num_days", req.NumDays), attribute.String("mode", "per_day"))

	if err := req.validate(); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return mealprep.MealPlan{}, err
	}

	history, err := s.store.RecentMealNames(ctx, req.DaysBack)
	if err != nil {
		span.RecordError(err)
		return mealprep.MealPlan{}, fmt.Errorf("recent meals: %w", err)
	}

	plan := mealprep.MealPlan{Meals: make([]mealprep.MealPlanEntry, 0, req.NumDays)}
	for day := 1; day <= req.NumDays; day++ {
		sug, err := s.suggest(ctx, suggestInput{
			ingredients: req.Ingredients,
			dietary:     req.DietaryPreferences,
			numPeople:   req.NumPeople,
			exclusions:  BuildExclusions(history, plan.MealNames(0)),
			operation:   fmt.Sprintf("generate_meal_plan/day_%d", day),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "plan aborted")
			return mealprep.MealPlan{}, fmt.Errorf("day %d: %w", day, err)
		}
		if sug.Failed() {
			slog.Warn("PLANNER: Placeholder for failed day", "day", day)
		}
		plan.Meals = append(plan.Meals, mealprep.MealPlanEntry{MealSuggestion: sug.Meal, DayNumber: day})
	}

	plan.ShoppingList = AggregateShoppingList(plan.Ingredients())
	slog.Info("PLANNER: Generated meal plan", "days", len(plan.Meals), "shopping_items", len(plan.ShoppingList))
	return plan, nil
}

// GenerateMealPlanSingleCall asks for the whole plan in one invocation. The response's days are
// ordered by their own numbers, then re-stamped 1..NumDays by position; missing days are placeholders.
func (s *Service) GenerateMealPlanSingleCall(ctx context.Context, req PlanRequest) (mealprep.MealPlan, error) {
	ctx, span := otel.Tracer(mealprep.TracerNamePlanner).Start(ctx, "Service.GenerateMealPlan")
	defer span.End()
	span.SetAttributes(attribute.Int("num_days", req.NumDays), attribute.String("mode", "single_call"))

	if err := req.validate(); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return mealprep.MealPlan{}, err
	}

	history, err := s.store.RecentMealNames(ctx, req.DaysBack)
	if err != nil {
		span.RecordError(err)
		return mealprep.MealPlan{}, fmt.Errorf("recent meals: %w", err)
	}

	rc, err := s.selector.Select(ctx, req.Ingredients, req.DietaryPreferences, ModePlan)
	if err != nil {
		span.RecordError(err)
		return mealprep.MealPlan{}, err
	}

	prompt := BuildPrompt(PromptPlan, PromptInput{
		DietaryPreferences: req.DietaryPreferences,
		Exclusions:         BuildExclusions(history, nil),
		NumPeople:          req.NumPeople,
		NumDays:            req.NumDays,
	})

	out := s.invoker.Invoke(ctx, mealprep.CompletionRequest{
		System:      systemPrompt,
		Prompt:      WithContext(rc.Rows, prompt),
		Schema:      PlanSchema(req.NumDays),
		SchemaName:  PlanSchemaName,
		Temperature: s.planTemperature,
	}, "generate_meal_plan")
	if out.State != StateSuccess {
		slog.Warn("PLANNER: Falling back to heuristic plan parsing", "attempts", out.Attempts)
	}

	entries, status := ParsePlan(out.Raw)
	span.SetAttributes(attribute.String("status", status.String()))

	plan := mealprep.MealPlan{Meals: restamp(entries, req.NumDays)}
	plan.ShoppingList = AggregateShoppingList(plan.Ingredients())
	slog.Info("PLANNER: Generated meal plan", "days", len(plan.Meals), "parsed", len(entries), "status", status)
	return plan, nil
}

// restamp numbers entries 1..n by position, truncating extras and padding with placeholders.
func restamp(entries []mealprep.MealPlanEntry, n int) []mealprep.MealPlanEntry {
	out := make([]mealprep.MealPlanEntry, n)
	for i := range out {
		meal := emptyMeal()
		if i < len(entries) {
			meal = entries[i].MealSuggestion
		}
		out[i] = mealprep.MealPlanEntry{MealSuggestion: meal, DayNumber: i + 1}
	}
	return out
}

// RegenerateMealForDay replaces the meal of one day. Every other entry is returned unchanged.
// If the new suggestion fails the plan is returned as it was.
func (s *Service) RegenerateMealForDay(ctx context.Context, day int, plan mealprep.MealPlan, numPeople int, dietary string) (Suggestion, mealprep.MealPlan, error) {
	ctx, span := otel.Tracer(mealprep.TracerNamePlanner).Start(ctx, "Service.RegenerateMealForDay")
	defer span.End()
	span.SetAttributes(attribute.Int("day", day))

	if err := checkRange("num_people", numPeople, MinPeople, MaxPeople); err != nil {
		return Suggestion{}, plan, err
	}

	idx := -1
	for i, m := range plan.Meals {
		if m.DayNumber == day {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Suggestion{}, plan, fmt.Errorf("%w: day %d is not in the plan", mealprep.ErrInvalidRequest, day)
	}

	history, err := s.store.RecentMealNames(ctx, RegenerateDaysBack)
	if err != nil {
		span.RecordError(err)
		return Suggestion{}, plan, fmt.Errorf("recent meals: %w", err)
	}

	var rejected []string
	if current := plan.Meals[idx].MealName; current != "" {
		rejected = append(rejected, current)
	}

	sug, err := s.suggest(ctx, suggestInput{
		dietary:    dietary,
		numPeople:  numPeople,
		exclusions: BuildExclusions(slices.Concat(history, plan.MealNames(day)), rejected),
		operation:  fmt.Sprintf("regenerate_meal/day_%d", day),
	})
	if err != nil {
		span.RecordError(err)
		return Suggestion{}, plan, err
	}

	updated := mealprep.MealPlan{Meals: make([]mealprep.MealPlanEntry, len(plan.Meals))}
	copy(updated.Meals, plan.Meals)
	if sug.Failed() {
		slog.Warn("PLANNER: Regeneration failed, keeping previous meal", "day", day)
		updated.ShoppingList = plan.ShoppingList
		return sug, updated, nil
	}

	updated.Meals[idx] = mealprep.MealPlanEntry{MealSuggestion: sug.Meal, DayNumber: day}
	updated.ShoppingList = AggregateShoppingList(updated.Ingredients())
	return sug, updated, nil
}

// SaveMealPlan stores the plan and returns its id.
func (s *Service) SaveMealPlan(ctx context.Context, plan mealprep.MealPlan, meta mealprep.PlanMeta) (int64, error) {
	if meta.NumDays == 0 {
		meta.NumDays = len(plan.Meals)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	id, err := s.store.SavePlan(ctx, plan, meta)
	if err != nil {
		return 0, fmt.Errorf("save meal plan: %w", err)
	}
	return id, nil
}

// LatestPlan returns the most recently saved plan, or an error wrapping mealprep.ErrNotFound.
func (s *Service) LatestPlan(ctx context.Context) (*mealprep.StoredPlan, error) {
	return s.store.LatestPlan(ctx)
}

// MealHistory lists logged and planned meals, newest first. A non-empty name restricts the list to
// meals with exactly that name; limit then caps the result as well.
func (s *Service) MealHistory(ctx context.Context, name string, limit int) ([]mealprep.MealRecord, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", mealprep.ErrInvalidRequest)
	}
	if name = strings.TrimSpace(name); name == "" {
		return s.store.AllMeals(ctx, limit)
	}
	meals, err := s.store.MealsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(meals) > limit {
		meals = meals[:limit]
	}
	return meals, nil
}

// CookMeal records the meal in the log as accepted today.
func (s *Service) CookMeal(ctx context.Context, meal mealprep.MealSuggestion) (int64, error) {
	if meal.MealName == "" {
		return 0, fmt.Errorf("%w: meal name is empty", mealprep.ErrInvalidRequest)
	}
	return s.store.RecordMeal(ctx, mealprep.MealRecord{
		MealName:    meal.MealName,
		Ingredients: meal.Ingredients,
		Recipe:      meal.Recipe,
		Date:        s.now(),
		Accepted:    true,
	})
}

func (s *Service) AddFeedback(ctx context.Context, mealID int64, feedback string) error {
	return s.store.UpdateMealFeedback(ctx, mealID, feedback)
}

func (s *Service) SetAccepted(ctx context.Context, mealID int64, accepted bool) error {
	return s.store.UpdateMealAcceptance(ctx, mealID, accepted)
}

// ReplacePlannedMeal regenerates one day of the latest stored plan and persists the new meal in place
// of the old one. It returns the suggestion and the new meal id.
func (s *Service) ReplacePlannedMeal(ctx context.Context, day, numPeople int, dietary string) (Suggestion, int64, error) {
	stored, err := s.store.LatestPlan(ctx)
	if err != nil {
		return Suggestion{}, 0, err
	}

	var old *mealprep.MealRecord
	for i := range stored.Meals {
		if stored.Meals[i].DayNumber == day {
			old = &stored.Meals[i]
			break
		}
	}
	if old == nil {
		return Suggestion{}, 0, fmt.Errorf("%w: day %d in plan %d", mealprep.ErrNotFound, day, stored.Plan.ID)
	}

	sug, updated, err := s.RegenerateMealForDay(ctx, day, stored.MealPlan(), numPeople, dietary)
	if err != nil {
		return Suggestion{}, 0, err
	}
	if sug.Failed() {
		return sug, 0, fmt.Errorf("%w: no meal could be generated for day %d", mealprep.ErrSchemaValidation, day)
	}

	newID, err := s.store.ReplaceMealInPlan(ctx, old.ID, sug.Meal)
	if err != nil {
		return sug, 0, fmt.Errorf("replace meal: %w", err)
	}
	if err := s.store.UpdateShoppingList(ctx, stored.Plan.ID, updated.ShoppingList); err != nil {
		return sug, newID, fmt.Errorf("update shopping list: %w", err)
	}
	return sug, newID, nil
}

// SearchRecipes runs a free-text similarity search.
func (s *Service) SearchRecipes(ctx context.Context, query string, limit int) ([]mealprep.RecipeRow, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	rows, err := s.searcher.Search(ctx, []string{query}, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", mealprep.ErrRetrieval, err)
	}
	return rows, nil
}

// SampleRecipes returns a random selection of recipes.
func (s *Service) SampleRecipes(ctx context.Context, limit int, dietary string) ([]mealprep.RecipeRow, error) {
	rows, err := s.searcher.DiverseRecipes(ctx, limit, dietary)
	if err != nil {
		return nil, fmt.Errorf("%w: diverse recipes: %w", mealprep.ErrRetrieval, err)
	}
	return rows, nil
}
