package planner

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"mealprep"
)

// InstrumentedService records suggestion and plan metrics around a Service.
type InstrumentedService struct {
	*Service

	suggestions metric.Int64Counter
	fallbacks   metric.Int64Counter
	planDays    metric.Int64Counter
	duration    metric.Float64Histogram
}

func NewInstrumentedService(svc *Service, meter metric.Meter) *InstrumentedService {
	suggestions, _ := meter.Int64Counter("mealprep.suggestions",
		metric.WithDescription("Total number of meal suggestions produced"))
	fallbacks, _ := meter.Int64Counter("mealprep.fallbacks",
		metric.WithDescription("Total number of suggestions recovered by heuristic parsing"))
	planDays, _ := meter.Int64Counter("mealprep.plan_days",
		metric.WithDescription("Total number of plan days generated"))
	duration, _ := meter.Float64Histogram("mealprep.suggestion.duration",
		metric.WithDescription("Time taken to produce a suggestion or plan in seconds"),
		metric.WithUnit("s"))

	return &InstrumentedService{
		Service:     svc,
		suggestions: suggestions,
		fallbacks:   fallbacks,
		planDays:    planDays,
		duration:    duration,
	}
}

func (is *InstrumentedService) SuggestMeal(ctx context.Context, req SuggestRequest) (Suggestion, error) {
	start := time.Now()
	sug, err := is.Service.SuggestMeal(ctx, req)
	is.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("operation", "suggest_meal")))
	if err != nil {
		return sug, err
	}
	is.recordSuggestion(ctx, sug)
	return sug, nil
}

func (is *InstrumentedService) GenerateMealPlan(ctx context.Context, req PlanRequest) (mealprep.MealPlan, error) {
	start := time.Now()
	plan, err := is.Service.GenerateMealPlan(ctx, req)
	is.recordPlan(ctx, "per_day", start, plan, err)
	return plan, err
}

func (is *InstrumentedService) GenerateMealPlanSingleCall(ctx context.Context, req PlanRequest) (mealprep.MealPlan, error) {
	start := time.Now()
	plan, err := is.Service.GenerateMealPlanSingleCall(ctx, req)
	is.recordPlan(ctx, "single_call", start, plan, err)
	return plan, err
}

func (is *InstrumentedService) RegenerateMealForDay(ctx context.Context, day int, plan mealprep.MealPlan, numPeople int, dietary string) (Suggestion, mealprep.MealPlan, error) {
	start := time.Now()
	sug, updated, err := is.Service.RegenerateMealForDay(ctx, day, plan, numPeople, dietary)
	is.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("operation", "regenerate_meal")))
	if err == nil {
		is.recordSuggestion(ctx, sug)
	}
	return sug, updated, err
}

func (is *InstrumentedService) recordSuggestion(ctx context.Context, sug Suggestion) {
	attrs := metric.WithAttributes(
		attribute.String("status", sug.Status.String()),
		attribute.String("context_type", string(sug.ContextType)),
	)
	is.suggestions.Add(ctx, 1, attrs)
	if sug.Status != StatusValid {
		is.fallbacks.Add(ctx, 1, attrs)
	}
}

func (is *InstrumentedService) recordPlan(ctx context.Context, mode string, start time.Time, plan mealprep.MealPlan, err error) {
	is.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", "generate_meal_plan"),
		attribute.String("mode", mode),
	))
	if err != nil {
		return
	}
	placeholders := 0
	for _, m := range plan.Meals {
		if m.MealName == "" {
			placeholders++
		}
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	is.planDays.Add(ctx, int64(len(plan.Meals)), attrs)
	if placeholders > 0 {
		is.fallbacks.Add(ctx, int64(placeholders), attrs)
	}
}
