package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mealprep"
	"mealprep/app"
	"mealprep/tools"
)

// Event is the Lambda payload. Input is passed to the tool unchanged.
type Event struct {
	Action string         `json:"action"`
	Input  map[string]any `json:"input"`
}

type Results struct {
	Output map[string]any `json:"output"`
}

var actions = map[string]string{
	"suggest":    "suggest_meal",
	"plan":       "generate_meal_plan",
	"regenerate": "regenerate_meal",
	"latest":     "get_latest_plan",
	"history":    "get_meal_history",
}

// The service survives across warm invocations; the store lives on the function's /tmp.
var (
	once    sync.Once
	shared  *app.App
	initErr error
)

func setup(ctx context.Context) (*app.App, error) {
	once.Do(func() {
		cfg, err := mealprep.LoadConfig()
		if err != nil {
			initErr = err
			return
		}
		if !cfg.Storage.UseS3() {
			initErr = fmt.Errorf("%w: missing S3 config: ARTIFACTS_S3_BUCKET and ARTIFACTS_RECIPES_S3_KEY must be set", mealprep.ErrConfiguration)
			return
		}
		if !filepath.IsAbs(cfg.Service.DBPath) {
			cfg.Service.DBPath = filepath.Join(os.TempDir(), filepath.Base(cfg.Service.DBPath))
		}

		a, err := app.New(ctx, cfg, app.Options{Logger: mealprep.NewStdoutCoordinationLogger()})
		if err != nil {
			initErr = err
			return
		}
		if err := a.EnsureRecipes(ctx); err != nil {
			initErr = err
			_ = a.Close()
			return
		}
		shared = a
	})
	return shared, initErr
}

func handle(ctx context.Context, registry *tools.Registry, event Event) (Results, error) {
	name, ok := actions[event.Action]
	if !ok {
		return Results{}, fmt.Errorf("%w: unknown action %q", mealprep.ErrInvalidRequest, event.Action)
	}
	input := event.Input
	if input == nil {
		input = map[string]any{}
	}

	out, err := registry.Execute(ctx, tools.Call{Name: name, Input: input})
	if err != nil {
		slog.Error("FAILURE: Error handling action", "action", event.Action, "error", err)
		return Results{}, err
	}
	return Results{Output: out}, nil
}

func main() {
	fn := func(ctx context.Context, event Event) (Results, error) {
		tracerProvider, _, otelShutdown, err := mealprep.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := tracerProvider.ForceFlush(ctx); err != nil {
				slog.Error("SETUP: Failed to flush traces", "error", err)
			}
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		ctx, span := tracerProvider.Tracer(mealprep.TracerNameLambda).Start(ctx, "Lambda.Handle",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("action", event.Action)),
		)
		defer span.End()

		a, err := setup(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to build service", "error", err)
			span.SetStatus(codes.Error, err.Error())
			return Results{}, err
		}
		res, err := handle(ctx, a.Registry, event)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return res, err
	}

	lambda.Start(fn)
}
