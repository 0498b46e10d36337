package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mealprep"
)

// ContextType labels how the grounding recipes were chosen.
type ContextType string

const (
	ContextIngredientBased  ContextType = "ingredient-based"
	ContextDiverseSelection ContextType = "diverse-selection"
)

// Mode is the kind of request the context is gathered for.
type Mode int

const (
	ModeSingle Mode = iota
	ModePlan
)

const (
	singleSearchLimit = 5
	planSearchLimit   = 10
	diverseLimit      = 10
)

// knownDiets are the diet classes recipes are tagged with at ingestion.
var knownDiets = map[string]bool{
	"with_meat":   true,
	"pescetarian": true,
	"vegetarian":  true,
	"vegan":       true,
}

// RecipeSearcher is the retrieval layer.
type RecipeSearcher interface {
	// Search returns the recipes most similar to the terms, best first.
	Search(ctx context.Context, terms []string, limit int, filter map[string]string) ([]mealprep.RecipeRow, error)
	// DiverseRecipes returns a random sample, optionally restricted to contents matching dietary.
	DiverseRecipes(ctx context.Context, limit int, dietary string) ([]mealprep.RecipeRow, error)
}

// RetrievalContext is the recipe text used to ground a prompt.
type RetrievalContext struct {
	Rows []mealprep.RecipeRow
	Type ContextType
}

type ContextSelector struct {
	searcher RecipeSearcher
}

func NewContextSelector(searcher RecipeSearcher) *ContextSelector {
	return &ContextSelector{searcher: searcher}
}

// Select picks similarity search when ingredients are given and a diverse sample otherwise.
// Retrieval errors are wrapped with mealprep.ErrRetrieval and returned.
func (cs *ContextSelector) Select(ctx context.Context, ingredients []string, dietary string, mode Mode) (RetrievalContext, error) {
	if len(ingredients) > 0 {
		limit := singleSearchLimit
		if mode == ModePlan {
			limit = planSearchLimit
		}

		rows, err := cs.searcher.Search(ctx, ingredients, limit, dietFilter(dietary))
		if err != nil {
			return RetrievalContext{}, fmt.Errorf("%w: search: %w", mealprep.ErrRetrieval, err)
		}
		slog.Info("PLANNER: Selected context", "type", ContextIngredientBased, "rows", len(rows))
		return RetrievalContext{Rows: rows, Type: ContextIngredientBased}, nil
	}

	rows, err := cs.searcher.DiverseRecipes(ctx, diverseLimit, strings.TrimSpace(dietary))
	if err != nil {
		return RetrievalContext{}, fmt.Errorf("%w: diverse recipes: %w", mealprep.ErrRetrieval, err)
	}
	slog.Info("PLANNER: Selected context", "type", ContextDiverseSelection, "rows", len(rows))
	return RetrievalContext{Rows: rows, Type: ContextDiverseSelection}, nil
}

// dietFilter maps a free-text preference onto a metadata filter when it names a known diet class.
func dietFilter(dietary string) map[string]string {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(dietary)), " ", "_")
	if knownDiets[key] {
		return map[string]string{"diet_pref": key}
	}
	return nil
}
