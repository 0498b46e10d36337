// Package app wires configuration into a ready planner service for the command entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"mealprep"
	"mealprep/ingest"
	"mealprep/llm"
	"mealprep/llm/bedrock"
	"mealprep/llm/gemini"
	"mealprep/llm/mock"
	"mealprep/llm/ollama"
	"mealprep/planner"
	"mealprep/storage"
	"mealprep/storage/sqlite"
	"mealprep/tools"
)

// Providers selectable with LLM_PROVIDER.
const (
	ProviderBedrock = "bedrock"
	ProviderOllama  = "ollama"
	ProviderGemini  = "gemini"
	ProviderMock    = "mock"
)

type Options struct {
	// Logger receives every completion attempt. Nil discards them.
	Logger mealprep.CoordinationLogger
	// Meter records service metrics. Nil uses the global meter provider.
	Meter metric.Meter
}

type App struct {
	Config   mealprep.Config
	Store    *sqlite.Store
	Embedder mealprep.Embedder
	Service  *planner.InstrumentedService
	Registry *tools.Registry

	closers []func() error
}

// New builds the provider clients, opens the store and assembles the service.
func New(ctx context.Context, cfg mealprep.Config, opts Options) (*App, error) {
	completer, embedder, closeProvider, err := NewProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Embedder: embedder, closers: []func() error{closeProvider}}

	store, err := sqlite.Open(cfg.Service.DBPath, embedder)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open store: %w", err), a.Close())
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(mealprep.MeterName)
	}

	invoker := planner.NewInvoker(llm.NewLimited(completer, cfg.Service.RatePerMinute), planner.InvokerOptions{
		Attempts: cfg.Service.MaxAttempts,
		Pause:    cfg.Service.RetryPause,
		Logger:   opts.Logger,
	})
	svc := planner.NewService(store, invoker, store, planner.ServiceOptions{
		Temperature:     cfg.Model.Temperature,
		PlanTemperature: cfg.Model.PlanTemperature,
	})
	a.Service = planner.NewInstrumentedService(svc, meter)
	a.Registry = tools.NewRegistry(a.Service)

	slog.Info("SETUP: Service ready", "provider", cfg.Service.Provider, "model", cfg.Model.ModelID, "db", cfg.Service.DBPath)
	return a, nil
}

// NewProviders returns the completer and embedder for cfg.Service.Provider and a function
// releasing their resources.
func NewProviders(ctx context.Context, cfg mealprep.Config) (mealprep.Completer, mealprep.Embedder, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Service.Provider {
	case ProviderBedrock:
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: failed to load AWS config: %w", mealprep.ErrConfiguration, err)
		}
		brc := bedrockruntime.NewFromConfig(awsCfg)
		completer := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     cfg.Model.ModelID,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
		})
		return completer, bedrock.NewEmbedder(brc, cfg.Service.EmbedModelID), noop, nil

	case ProviderOllama:
		client, err := ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: cfg.Service.BaseOllamaEndpoint,
			ModelID:      cfg.Model.ModelID,
			EmbedModelID: cfg.Service.EmbedModelID,
			MaxTokens:    int(cfg.Model.MaxTokens),
			TopP:         cfg.Model.TopP,
			HTTPClient:   http.DefaultClient,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return client, client, noop, nil

	case ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.Service.GeminiAPIKey, gemini.LLMOptions{
			ModelID:      cfg.Model.ModelID,
			EmbedModelID: cfg.Service.EmbedModelID,
			MaxTokens:    cfg.Model.MaxTokens,
			Temperature:  cfg.Model.Temperature,
			TopP:         cfg.Model.TopP,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return client, client, client.Close, nil

	case ProviderMock:
		return mock.NewLLMClient(), mock.NewEmbedder(0), noop, nil

	default:
		return nil, nil, nil, fmt.Errorf("%w: unknown LLM_PROVIDER %q", mealprep.ErrConfiguration, cfg.Service.Provider)
	}
}

// RecipeSource returns the corpus location from config, S3 when a bucket and key are set and the
// local file otherwise, along with its format.
func RecipeSource(ctx context.Context, cfg mealprep.StorageConfig) (storage.RecipeSource, string, error) {
	if !cfg.UseS3() {
		return storage.NewFileRecipeSource(cfg.RecipesPath), storage.Format(cfg.RecipesPath), nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to load AWS config: %w", mealprep.ErrConfiguration, err)
	}
	return storage.NewS3RecipeSource(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.RecipesKey), storage.Format(cfg.RecipesKey), nil
}

// Ingest loads the configured corpus into the store. A positive sample ingests that many random recipes.
func (a *App) Ingest(ctx context.Context, workers, sample int) (ingest.Result, error) {
	src, format, err := RecipeSource(ctx, a.Config.Storage)
	if err != nil {
		return ingest.Result{}, err
	}
	return ingest.NewIngester(src, a.Embedder, a.Store, ingest.Options{
		Format:  format,
		Workers: workers,
		Sample:  sample,
	}).Run(ctx)
}

// EnsureRecipes ingests the corpus when the store holds no recipes yet.
func (a *App) EnsureRecipes(ctx context.Context) error {
	n, err := a.Store.CountRecipes(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("SETUP: Recipes already loaded", "count", n)
		return nil
	}
	res, err := a.Ingest(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to ingest recipes: %w", err)
	}
	slog.Info("SETUP: Recipes ingested", "loaded", res.Loaded, "ingested", res.Ingested)
	return nil
}

// Close releases the store and provider clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
