package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"mealprep"
)

// Registry maps tool names to implementations
type Registry map[string]Tool

// NewRegistry creates a registry holding every meal tool backed by the given planner.
func NewRegistry(p Planner) *Registry {
	tools := []Tool{
		NewSuggestMeal(p),
		NewGenerateMealPlan(p),
		NewRegenerateMeal(p),
		NewSearchRecipes(p),
		NewSaveMealPlan(p),
		NewGetLatestPlan(p),
		NewGetMealHistory(p),
		NewRecordFeedback(p),
	}

	registry := make(Registry, len(tools))
	for _, t := range tools {
		registry[t.Name()] = t
	}
	return &registry
}

// GetTools returns all tools in the registry as a slice, sorted by name
func (r *Registry) GetTools() []Tool {
	tools := make([]Tool, 0, len(*r))
	for _, tool := range *r {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// GetTool retrieves a tool by name from the registry
func (r Registry) GetTool(name string) (Tool, error) {
	tool, exists := r[name]
	if !exists {
		return nil, fmt.Errorf("%w: tool %q not found in registry", mealprep.ErrNotFound, name)
	}
	return tool, nil
}

// Execute runs the named tool with the call's input.
func (r Registry) Execute(ctx context.Context, call Call) (map[string]any, error) {
	tool, err := r.GetTool(call.Name)
	if err != nil {
		return nil, err
	}
	slog.Info("TOOLS: Executing", "tool", call.Name)
	out, err := tool.Run(ctx, call.Input)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	return out, nil
}
