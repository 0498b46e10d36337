package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/api/option"

	"mealprep"
)

const (
	defaultModelID      = "gemini-1.5-flash"
	defaultEmbedModelID = "text-embedding-004"
	defaultMaxTokens    = 2048
	defaultTemperature  = 1.0
	defaultTopP         = 0.9
)

type LLMOptions struct {
	ModelID      string
	EmbedModelID string
	MaxTokens    int32
	Temperature  float32
	TopP         float32
}

// Client is a mealprep.Completer and mealprep.Embedder for the Gemini API.
// Schemas are sent as the response schema with a JSON MIME type.
type Client struct {
	client *genai.Client
	opts   LLMOptions
}

func NewClient(ctx context.Context, apiKey string, opts LLMOptions) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY environment variable not set", mealprep.ErrConfiguration)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: client, opts: withDefaults(opts)}, nil
}

func withDefaults(opts LLMOptions) LLMOptions {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.EmbedModelID == "" {
		opts.EmbedModelID = defaultEmbedModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return opts
}

func (c *Client) Complete(ctx context.Context, req mealprep.CompletionRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "schema", req.SchemaName, "prompt_len", len(req.Prompt))

	model := c.client.GenerativeModel(c.opts.ModelID)
	configure(model, c.opts, req)

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return textFromResponse(resp)
}

// configure applies the sampling options, system instruction and response schema to model.
func configure(model *genai.GenerativeModel, opts LLMOptions, req mealprep.CompletionRequest) {
	temperature := opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	model.SetTemperature(temperature)
	model.SetTopP(opts.TopP)
	model.SetMaxOutputTokens(opts.MaxTokens)

	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(req.Schema)
	}
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no content generated")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("generated content is not text")
	}
	return b.String(), nil
}

// toGenaiSchema converts the subset of JSON Schema Gemini understands.
// Keywords without a Gemini equivalent, such as additionalProperties, are dropped.
func toGenaiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{Description: s.Description}

	typ := s.Type
	if typ == "" {
		for _, t := range s.Types {
			if t == "null" {
				out.Nullable = true
				continue
			}
			typ = t
		}
	}
	switch typ {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}

	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
		out.Required = slices.Clone(s.Required)
	}
	for _, e := range s.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(e))
	}
	return out
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := c.client.EmbeddingModel(c.opts.EmbedModelID).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding from %s", c.opts.EmbedModelID)
	}
	return res.Embedding.Values, nil
}

// Close closes the underlying Gemini client.
func (c *Client) Close() error {
	return c.client.Close()
}
