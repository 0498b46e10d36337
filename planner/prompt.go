package planner

import (
	"fmt"
	"strings"

	"mealprep"
)

// PromptKind selects the prompt variant.
type PromptKind int

const (
	PromptSingleWithIngredients PromptKind = iota
	PromptSingleWithoutIngredients
	PromptPlan
)

// PromptInput carries everything a prompt can mention.
type PromptInput struct {
	Ingredients        []string
	DietaryPreferences string
	Exclusions         Exclusions
	NumPeople          int
	NumDays            int
}

const systemPrompt = `You are a helpful private chef assistant who suggests meals.
Answer only with data in the requested structure.`

const contextHeader = "Here are some recipe ideas from our database:"

const staples = "salt, pepper, oil, vinegar, rice, noodles"

const singleFormatLine = `Return the response strictly in the following format: "meal_name: [Meal Name], ingredients: [Ingredient1, Ingredient2, ...], recipe: [1. Step, 2. Step, ...]"`

// BuildPrompt renders the user prompt for kind.
func BuildPrompt(kind PromptKind, in PromptInput) string {
	var b strings.Builder

	b.WriteString("Imagine you are a private chef who comes up with a meal suggestion every day.\n")
	b.WriteString("Every recipe must be easy to prepare and ready in under one hour.\n")

	switch kind {
	case PromptSingleWithIngredients:
		b.WriteString("Suggest ONE meal using the available ingredients. You don't need to use all of them, but use as many as possible.\n")
	case PromptSingleWithoutIngredients:
		b.WriteString("Suggest ONE meal that is different from the recent meals.\n")
	case PromptPlan:
		fmt.Fprintf(&b, "Plan ONE dinner for each of the next %d days. Every day must be a different meal.\n", in.NumDays)
	}

	fmt.Fprintf(&b, "Scale all ingredient quantities to serve %d people.\n", in.NumPeople)
	if diet := strings.TrimSpace(in.DietaryPreferences); diet != "" {
		fmt.Fprintf(&b, "Respect these dietary preferences: %s.\n", diet)
	}
	fmt.Fprintf(&b, "Assume that basic staples (%s) are always available and do not need to be bought.\n", staples)

	if kind == PromptSingleWithIngredients {
		fmt.Fprintf(&b, "\nAvailable ingredients: %s\n", strings.Join(in.Ingredients, ", "))
	}

	fmt.Fprintf(&b, "\nRecent meals, do NOT suggest these or meals that are very similar to them in cuisine, main ingredient or cooking method: %s\n\n", in.Exclusions.String())

	if kind == PromptPlan {
		b.WriteString(planFormat(in.NumDays))
		return b.String()
	}

	b.WriteString("Respond with the meal name, the ingredients and the recipe as ordered steps.\n")
	b.WriteString(singleFormatLine)
	b.WriteString("\n")
	return b.String()
}

// planFormat describes the day-keyed JSON object the plan prompt asks for.
func planFormat(numDays int) string {
	var b strings.Builder
	b.WriteString("Return ONLY a strictly valid JSON object, no markdown and no commentary.\n")
	fmt.Fprintf(&b, "The object must have exactly %d keys, the day numbers as strings starting at \"1\", each mapping to a meal:\n", numDays)
	b.WriteString(`{
  "1": {"meal_name": "Meal Name", "ingredients": ["Ingredient 1", "Ingredient 2"], "recipe": ["Step 1", "Step 2"]},
  "2": {"meal_name": "Meal Name", "ingredients": ["Ingredient 1", "Ingredient 2"], "recipe": ["Step 1", "Step 2"]}
}
`)
	return b.String()
}

// WithContext prepends the grounding recipes to a prompt. Without rows the prompt is returned as is.
func WithContext(rows []mealprep.RecipeRow, prompt string) string {
	if len(rows) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(strings.TrimSpace(r.Contents))
		b.WriteString("\n\n")
	}
	b.WriteString(prompt)
	return b.String()
}

// promptKindFor picks the single-meal variant.
func promptKindFor(ingredients []string) PromptKind {
	if len(ingredients) > 0 {
		return PromptSingleWithIngredients
	}
	return PromptSingleWithoutIngredients
}
