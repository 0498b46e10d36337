package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mealprep"
	"mealprep/app"
	"mealprep/slack"
	"mealprep/tools"
)

var version = "0.1.0"

var (
	debug     bool
	withOtel  bool
	numPeople int
	daysBack  int
	dietary   string
)

var rootCmd = &cobra.Command{
	Use:   "mealprep",
	Short: "Suggest meals and weekly plans grounded in a recipe corpus",
	Long: `mealprep suggests meals and multi-day plans from a local recipe corpus.

Recent meals are excluded, recipes are retrieved by similarity and the model
answers against a JSON schema. Configuration comes from the environment or a
.env file (MODEL_ID, LLM_PROVIDER, DB_PATH, ...).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Dump results with their Go types")
	rootCmd.PersistentFlags().BoolVar(&withOtel, "otel", false, "Export traces and metrics over OTLP")
	rootCmd.PersistentFlags().IntVarP(&numPeople, "people", "p", tools.DefaultNumPeople, "Number of people to cook for")
	rootCmd.PersistentFlags().IntVar(&daysBack, "days-back", tools.DefaultDaysBack, "Days of meal history to avoid")
	rootCmd.PersistentFlags().StringVar(&dietary, "diet", "", "Dietary preferences, e.g. vegetarian")

	rootCmd.AddCommand(suggestCmd, planCmd, regenerateCmd, latestCmd, cookCmd, historyCmd, feedbackCmd, ingestCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("FAILURE: Command failed", "error", err)
		os.Exit(1)
	}
}

// withApp loads config, sets up telemetry and the coordination log, and runs fn against a ready App.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()

	cfg, err := mealprep.LoadConfig()
	if err != nil {
		slog.Error("SETUP: Failed to load config", "error", err)
		return err
	}

	opts := app.Options{}
	if withOtel {
		_, meterProvider, otelShutdown, err := mealprep.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return err
		}
		defer func() {
			if err := otelShutdown(context.WithoutCancel(ctx)); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()
		opts.Meter = meterProvider.Meter(mealprep.MeterName)
	}

	logger, cleanup, err := newCoordinationLogger(cfg.Service.CoordinationLogDir, cfg.Model.ModelID)
	if err != nil {
		slog.Error("SETUP: Failed to create coordination logger", "error", err)
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("SETUP: Failed to flush coordination log", "error", err)
		}
	}()
	opts.Logger = logger

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		slog.Error("SETUP: Failed to build service", "error", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("SETUP: Failed to close service", "error", err)
		}
	}()

	return fn(ctx, a)
}

func newCoordinationLogger(dir, modelID string) (mealprep.CoordinationLogger, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFilePath := mealprep.NewCoordinationLogFilePath(dir, modelID)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := mealprep.NewFileCoordinationLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}

// printResult writes v as indented JSON, or dumps it when --debug is set.
func printResult(cmd *cobra.Command, v any) error {
	if debug {
		mealprep.Dump(v)
		return nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// postPlan sends the plan to Slack when a webhook is configured.
func postPlan(ctx context.Context, cfg mealprep.SlackConfig, plan mealprep.MealPlan) {
	if cfg.WebhookURL == "" {
		slog.Warn("SETUP: SLACK_WEBHOOK_URL not set, skipping Slack post")
		return
	}
	if err := slack.NewClient(cfg.WebhookURL, http.DefaultClient).PostMealPlan(ctx, cfg.Channel, plan); err != nil {
		slog.Error("Failed to post meal plan to Slack", "error", err)
	}
}
