package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"mealprep"
)

func TestBuildPrompt(t *testing.T) {
	in := PromptInput{
		Ingredients:        []string{"chickpeas", "spinach"},
		DietaryPreferences: "vegetarian",
		Exclusions:         BuildExclusions([]string{"Falafel"}, []string{"Dal"}),
		NumPeople:          4,
		NumDays:            3,
	}

	tests := []struct {
		name     string
		kind     PromptKind
		contains []string
		excludes []string
	}{
		{
			name:     "single with ingredients",
			kind:     PromptSingleWithIngredients,
			contains: []string{"ONE meal", "Available ingredients: chickpeas, spinach", "meal_name:"},
			excludes: []string{"strictly valid JSON"},
		},
		{
			name:     "single without ingredients",
			kind:     PromptSingleWithoutIngredients,
			contains: []string{"ONE meal", "meal_name:"},
			excludes: []string{"Available ingredients", "chickpeas"},
		},
		{
			name:     "plan",
			kind:     PromptPlan,
			contains: []string{"next 3 days", "strictly valid JSON", `"1": {"meal_name"`, "exactly 3 keys"},
			excludes: []string{"Available ingredients"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPrompt(tt.kind, in)

			assert.Contains(t, got, "under one hour")
			assert.Contains(t, got, "serve 4 people")
			assert.Contains(t, got, "vegetarian")
			assert.Contains(t, got, "salt, pepper, oil, vinegar, rice, noodles")
			assert.Contains(t, got, "very similar")
			assert.Contains(t, got, "Falafel, Dal")
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func TestBuildPrompt_NoExclusions(t *testing.T) {
	got := BuildPrompt(PromptSingleWithoutIngredients, PromptInput{NumPeople: 2})
	assert.Contains(t, got, ": None")
	assert.NotContains(t, got, "dietary preferences")
}

func TestWithContext(t *testing.T) {
	assert.Equal(t, "prompt", WithContext(nil, "prompt"))

	rows := []mealprep.RecipeRow{
		{Contents: "Title: Soup\n"},
		{Contents: "Title: Stew"},
	}
	got := WithContext(rows, "prompt")
	assert.True(t, strings.HasPrefix(got, "Here are some recipe ideas from our database:\n\n"))
	assert.Less(t, strings.Index(got, "Title: Soup"), strings.Index(got, "Title: Stew"))
	assert.True(t, strings.HasSuffix(got, "prompt"))
}
