// Package mcpserver serves the meal tools and resources over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mealprep"
	"mealprep/tools"
)

const (
	RecipesURI   = "mealprep://recipes"
	MealPlansURI = "mealprep://meal-plans"

	resourceSampleSize = 10
)

type Server struct {
	mcp      *mcp.Server
	registry *tools.Registry
	planner  tools.Planner
}

// New registers every registry tool and the recipe and meal plan resources.
func New(registry *tools.Registry, p tools.Planner, version string) *Server {
	s := &Server{
		mcp:      mcp.NewServer(&mcp.Implementation{Name: "mealprep", Version: version}, nil),
		registry: registry,
		planner:  p,
	}

	for _, t := range registry.GetTools() {
		s.mcp.AddTool(&mcp.Tool{
			Name:         t.Name(),
			Title:        t.Title(),
			Description:  t.Description(),
			InputSchema:  t.InputSchema(),
			OutputSchema: t.OutputSchema(),
		}, s.toolHandler(t))
	}

	s.mcp.AddResource(&mcp.Resource{
		URI:         RecipesURI,
		Name:        "Recipe Database",
		MIMEType:    "application/json",
		Description: "A random sample of the recipe corpus",
	}, s.readResource)
	s.mcp.AddResource(&mcp.Resource{
		URI:         MealPlansURI,
		Name:        "Saved Meal Plans",
		MIMEType:    "application/json",
		Description: "The most recently saved meal plan",
	}, s.readResource)

	return s
}

// MCP exposes the underlying server, e.g. to connect an in-memory transport.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves over stdin/stdout until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("MCP: Serving on stdio", "tools", len(*s.registry))
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) toolHandler(t tools.Tool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := otel.Tracer(mealprep.TracerNameMCP).Start(ctx, "MCP.CallTool")
		defer span.End()
		span.SetAttributes(attribute.String("tool.name", t.Name()))

		var input map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
				return errorResult(fmt.Errorf("%w: arguments: %w", mealprep.ErrInvalidRequest, err)), nil
			}
		}

		out, err := t.Run(ctx, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("MCP: Tool failed", "tool", t.Name(), "error", err)
			return errorResult(err), nil
		}

		text, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode %s output: %w", t.Name(), err)
		}
		slog.Info("MCP: Tool completed", "tool", t.Name())
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
			StructuredContent: out,
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func (s *Server) readResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI

	var v any
	switch uri {
	case RecipesURI:
		rows, err := s.planner.SampleRecipes(ctx, resourceSampleSize, "")
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []mealprep.RecipeRow{}
		}
		v = rows
	case MealPlansURI:
		plan, err := s.planner.LatestPlan(ctx)
		if err != nil && !errors.Is(err, mealprep.ErrNotFound) {
			return nil, err
		}
		v = plan
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "application/json", Text: string(b)}},
	}, nil
}
