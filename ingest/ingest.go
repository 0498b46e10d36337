package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mealprep"
	"mealprep/storage"
)

const defaultWorkers = 4

// RecipeSink stores an ingested recipe. It must be safe for concurrent use.
type RecipeSink interface {
	UpsertRecipe(ctx context.Context, r mealprep.RecipeRow, embedding []float32) error
}

type Options struct {
	// Format is "json" or "yaml".
	Format string
	// Workers bounds concurrent embedding calls.
	Workers int
	// Sample, when positive, ingests a random subset of that size.
	Sample int
	// Rand drives sampling. Nil uses the global source.
	Rand *rand.Rand
}

// Result counts what a run did.
type Result struct {
	Loaded   int
	Skipped  int
	Ingested int
}

type Ingester struct {
	source   storage.RecipeSource
	embedder mealprep.Embedder
	sink     RecipeSink
	opts     Options
}

func NewIngester(source storage.RecipeSource, embedder mealprep.Embedder, sink RecipeSink, opts Options) *Ingester {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Format == "" {
		opts.Format = "json"
	}
	return &Ingester{source: source, embedder: embedder, sink: sink, opts: opts}
}

// Run loads the corpus, then embeds and upserts every recipe with a bounded worker pool.
// The first embedding or store failure cancels the remaining work.
func (in *Ingester) Run(ctx context.Context) (Result, error) {
	data, err := in.source.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load corpus: %w", err)
	}
	recipes, err := Decode(data, in.opts.Format)
	if err != nil {
		return Result{}, err
	}

	res := Result{Loaded: len(recipes)}
	recipes, res.Skipped = dedupe(recipes)
	recipes = in.sample(recipes)
	slog.Info("INGEST: Loaded corpus", "recipes", res.Loaded, "skipped", res.Skipped, "selected", len(recipes))

	var ingested atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Workers)
	for _, r := range recipes {
		g.Go(func() error {
			if err := in.ingestOne(gctx, r); err != nil {
				return err
			}
			ingested.Add(1)
			return nil
		})
	}
	err = g.Wait()
	res.Ingested = int(ingested.Load())
	if err != nil {
		return res, err
	}

	slog.Info("INGEST: Completed", "ingested", res.Ingested)
	return res, nil
}

func (in *Ingester) ingestOne(ctx context.Context, r Recipe) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("recipe id: %w", err)
	}
	diet, dessert := Classify(r)
	row := mealprep.RecipeRow{
		ID:       id.String(),
		Title:    strings.TrimSpace(r.Title),
		Contents: r.Contents(),
		DietPref: diet,
		Dessert:  dessert,
	}

	vec, err := in.embedder.Embed(ctx, row.Contents)
	if err != nil {
		return fmt.Errorf("embed %q: %w", row.Title, err)
	}
	if err := in.sink.UpsertRecipe(ctx, row, vec); err != nil {
		return err
	}
	return nil
}

// dedupe drops untitled recipes and repeated titles, keeping the first.
func dedupe(recipes []Recipe) ([]Recipe, int) {
	seen := make(map[string]bool, len(recipes))
	out := recipes[:0:0]
	for _, r := range recipes {
		key := strings.ToLower(strings.TrimSpace(r.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out, len(recipes) - len(out)
}

func (in *Ingester) sample(recipes []Recipe) []Recipe {
	n := in.opts.Sample
	if n <= 0 || n >= len(recipes) {
		return recipes
	}
	shuffle := rand.Shuffle
	if in.opts.Rand != nil {
		shuffle = in.opts.Rand.Shuffle
	}
	shuffle(len(recipes), func(i, j int) { recipes[i], recipes[j] = recipes[j], recipes[i] })
	return recipes[:n]
}
