package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"mealprep"
)

// catalog is the fixed menu the mock draws from.
var catalog = []mealprep.MealSuggestion{
	{
		MealName:    "Bean Chili",
		Ingredients: []string{"kidney beans", "onion", "canned tomatoes", "chili powder"},
		Recipe:      []string{"Sweat the onion", "Add beans, tomatoes and spices", "Simmer for 30 minutes"},
	},
	{
		MealName:    "Vegetable Stir Fry",
		Ingredients: []string{"broccoli", "bell pepper", "soy sauce", "garlic"},
		Recipe:      []string{"Slice the vegetables", "Stir fry over high heat", "Season with soy sauce"},
	},
	{
		MealName:    "Lemon Herb Salmon",
		Ingredients: []string{"salmon fillet", "lemon", "dill", "garlic"},
		Recipe:      []string{"Season the salmon", "Bake at 200C for 12 minutes", "Finish with lemon"},
	},
	{
		MealName:    "Mushroom Risotto",
		Ingredients: []string{"arborio rice", "mushrooms", "parmesan", "onion"},
		Recipe:      []string{"Toast the rice", "Add stock gradually", "Stir in mushrooms and parmesan"},
	},
	{
		MealName:    "Chickpea Curry",
		Ingredients: []string{"chickpeas", "coconut milk", "curry paste", "spinach"},
		Recipe:      []string{"Fry the curry paste", "Add chickpeas and coconut milk", "Wilt in the spinach"},
	},
	{
		MealName:    "Chicken Fajitas",
		Ingredients: []string{"chicken breast", "bell pepper", "onion", "tortillas"},
		Recipe:      []string{"Slice chicken and vegetables", "Sear in a hot pan", "Serve in warm tortillas"},
	},
	{
		MealName:    "Shakshuka",
		Ingredients: []string{"eggs", "canned tomatoes", "onion", "cumin"},
		Recipe:      []string{"Cook onion and spices", "Simmer the tomatoes", "Poach the eggs in the sauce"},
	},
	{
		MealName:    "Pesto Pasta",
		Ingredients: []string{"penne", "basil pesto", "cherry tomatoes", "parmesan"},
		Recipe:      []string{"Boil the pasta", "Halve the tomatoes", "Toss everything with pesto"},
	},
}

// LLMClient is a deterministic mealprep.Completer. It answers with catalog meals whose names do not
// appear in the prompt, so exclusions are honoured without a model.
type LLMClient struct{}

func NewLLMClient() *LLMClient {
	return &LLMClient{}
}

func (m *LLMClient) Complete(ctx context.Context, req mealprep.CompletionRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "schema", req.SchemaName, "prompt_len", len(req.Prompt))

	if err := ctx.Err(); err != nil {
		return "", err
	}

	days := 0
	if req.Schema != nil {
		for key := range req.Schema.Properties {
			if _, err := strconv.Atoi(key); err == nil {
				days++
			}
		}
	}

	if days > 0 {
		plan := make(map[string]mealprep.MealSuggestion, days)
		for i, meal := range pick(req.Prompt, days) {
			plan[strconv.Itoa(i+1)] = meal
		}
		b, err := json.Marshal(plan)
		if err != nil {
			return "", fmt.Errorf("failed to marshal plan: %w", err)
		}
		slog.Info("LLM_CLIENT: Returning meal plan", "days", days)
		return string(b), nil
	}

	meal := pick(req.Prompt, 1)[0]
	if req.Schema == nil {
		return fmt.Sprintf("meal_name: %s, ingredients: %s\nrecipe: %s",
			meal.MealName, strings.Join(meal.Ingredients, ", "), enumerate(meal.Recipe)), nil
	}

	b, err := json.Marshal(meal)
	if err != nil {
		return "", fmt.Errorf("failed to marshal suggestion: %w", err)
	}
	slog.Info("LLM_CLIENT: Returning suggestion", "meal_name", meal.MealName)
	return string(b), nil
}

// pick returns n catalog meals, preferring ones the prompt does not mention.
func pick(prompt string, n int) []mealprep.MealSuggestion {
	var fresh, seen []mealprep.MealSuggestion
	for _, meal := range catalog {
		if strings.Contains(prompt, meal.MealName) {
			seen = append(seen, meal)
			continue
		}
		fresh = append(fresh, meal)
	}

	ordered := append(fresh, seen...)
	out := make([]mealprep.MealSuggestion, n)
	for i := range out {
		out[i] = ordered[i%len(ordered)]
	}
	return out
}

func enumerate(steps []string) string {
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, s)
	}
	return b.String()
}

// Embedder is a deterministic mealprep.Embedder that hashes words into a fixed number of buckets.
// Texts sharing words end up close under cosine similarity.
type Embedder struct {
	dims int
}

func NewEmbedder(dims int) *Embedder {
	if dims <= 0 {
		dims = 64
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(e.dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
