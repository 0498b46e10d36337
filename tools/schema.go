package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"mealprep"
)

func stringSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func integerSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

func rangeSchema(desc string, lo, hi int) *jsonschema.Schema {
	minimum, maximum := float64(lo), float64(hi)
	return &jsonschema.Schema{Type: "integer", Description: desc, Minimum: &minimum, Maximum: &maximum}
}

func stringsSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Description: desc, Items: &jsonschema.Schema{Type: "string"}}
}

func mealSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"meal_name":   stringSchema("Name of the meal"),
			"ingredients": stringsSchema("Ingredients with quantities"),
			"recipe":      stringsSchema("Ordered preparation steps"),
			"day_number":  integerSchema("Day of the plan, starting at 1"),
		},
		Required: []string{"meal_name", "ingredients", "recipe"},
	}
}

func mealPlanSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"meals":         {Type: "array", Items: mealSchema()},
			"shopping_list": stringsSchema("Aggregated ingredients"),
		},
		Required: []string{"meals"},
	}
}

func objectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

// openObject accepts any JSON object.
func openObject() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

// decodeInput copies a loosely typed tool input into v.
func decodeInput(input map[string]any, v any) error {
	if input == nil {
		input = map[string]any{}
	}
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("%w: %w", mealprep.ErrInvalidRequest, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %w", mealprep.ErrInvalidRequest, err)
	}
	return nil
}

// toMap turns a typed result into the generic output shape.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	return out, nil
}
