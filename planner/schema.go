package planner

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"

	"mealprep"
)

const (
	SuggestionSchemaName = "meal_suggestion"
	PlanSchemaName       = "meal_plan"
)

// SuggestionSchema returns the output schema for a single meal suggestion.
// All three fields are required and no other properties are allowed.
func SuggestionSchema() *jsonschema.Schema {
	s, err := jsonschema.For[mealprep.MealSuggestion](nil)
	if err != nil {
		// MealSuggestion is a plain struct of strings; inference cannot fail.
		panic(fmt.Sprintf("infer suggestion schema: %v", err))
	}
	return s
}

// PlanSchema returns the output schema for a plan of numDays days: an object keyed "1".."numDays",
// each value a meal suggestion.
func PlanSchema(numDays int) *jsonschema.Schema {
	suggestion := SuggestionSchema()
	s := &jsonschema.Schema{
		Type:                 "object",
		Description:          "meal plan keyed by day number",
		Properties:           make(map[string]*jsonschema.Schema, numDays),
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
	for day := 1; day <= numDays; day++ {
		key := strconv.Itoa(day)
		s.Properties[key] = suggestion.CloneSchemas()
		s.Required = append(s.Required, key)
	}
	return s
}

// Validate decodes raw as JSON and checks it against schema. It returns the decoded object.
// A nil schema only checks that raw is a JSON object.
func Validate(schema *jsonschema.Schema, raw string) (map[string]any, error) {
	var instance map[string]any
	if err := json.Unmarshal([]byte(stripFence(raw)), &instance); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %w", mealprep.ErrSchemaValidation, err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: empty document", mealprep.ErrSchemaValidation)
	}
	if schema == nil {
		return instance, nil
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %w", mealprep.ErrSchemaValidation, err)
	}
	return instance, nil
}
