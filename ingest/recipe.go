// Package ingest loads a recipe corpus, classifies and embeds each recipe, and writes it to the store.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Recipe is one entry of the source corpus.
type Recipe struct {
	Title       string     `json:"title" yaml:"title"`
	Ingredients stringList `json:"ingredients" yaml:"ingredients"`
	Directions  stringList `json:"directions" yaml:"directions"`
}

// stringList decodes either a list of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = splitLines(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*l = splitLines(value.Value)
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return err
	}
	*l = many
	return nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Decode parses a corpus in the given format, "json" or "yaml".
func Decode(data []byte, format string) ([]Recipe, error) {
	var recipes []Recipe
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &recipes); err != nil {
			return nil, fmt.Errorf("failed to decode yaml corpus: %w", err)
		}
	case "json", "":
		if err := json.Unmarshal(data, &recipes); err != nil {
			return nil, fmt.Errorf("failed to decode json corpus: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown corpus format %q", format)
	}
	return recipes, nil
}

// Contents is the text stored and embedded for a recipe.
func (r Recipe) Contents() string {
	return fmt.Sprintf("Title: %s\nIngredients: %s\nRecipe: %s",
		r.Title, strings.Join(r.Ingredients, ", "), strings.Join(r.Directions, " "))
}
