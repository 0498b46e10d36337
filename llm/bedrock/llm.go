package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/jsonschema-go/jsonschema"

	"mealprep"
)

const (
	// defaultModelID is the default model ID for Bedrock Claude.
	// It's an inference profile ID or ARN, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// A seven day plan with recipes runs well past 1k tokens; callers raise this through MAX_TOKENS.
	defaultMaxTokens = 1024

	// Meal ideas should vary between calls.
	defaultTemperature = 1.0

	defaultTopP = 0.9

	// defaultToolName is used when a request carries a schema without a name.
	defaultToolName = "structured_output"
)

var (
	ErrMaxTokens       = errors.New("model hit MaxTokens limit")
	ErrContentFiltered = errors.New("model response blocked by Bedrock safety filters")
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMClient is a mealprep.Completer backed by the Bedrock Converse API. A request schema is sent as the
// input schema of a single tool the model is forced to call; the tool input is returned as JSON text.
type LLMClient struct {
	brc  bedrockRuntimeClient
	opts LLMOptions
}

func NewLLMClient(brc bedrockRuntimeClient, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
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
	return &LLMClient{
		brc:  brc,
		opts: opts,
	}
}

func (c *LLMClient) Complete(ctx context.Context, req mealprep.CompletionRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "schema", req.SchemaName, "prompt_len", len(req.Prompt))

	temperature := c.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.opts.ModelID),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
	}
	if req.System != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}

	toolName := req.SchemaName
	if toolName == "" {
		toolName = defaultToolName
	}
	if req.Schema != nil {
		spec, err := buildToolSpec(toolName, req.Schema)
		if err != nil {
			return "", err
		}
		in.ToolConfig = &types.ToolConfiguration{
			Tools:      []types.Tool{&types.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(toolName)}},
		}
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock Claude invoke failed", "error", err, "model", c.opts.ModelID)
		return "", fmt.Errorf("bedrock converse: %w", err)
	}

	attrs := []any{"stop_reason", out.StopReason}
	if out.Metrics != nil {
		attrs = append(attrs, "latency_ms", aws.ToInt64(out.Metrics.LatencyMs))
	}
	if out.Usage != nil {
		attrs = append(attrs, "input_tokens", aws.ToInt32(out.Usage.InputTokens), "output_tokens", aws.ToInt32(out.Usage.OutputTokens))
	}
	slog.Info("LLM_CLIENT: Bedrock Claude invoke succeeded", attrs...)

	switch out.StopReason {
	case "tool_use":
		input, ok := toolInputFromOutput(out, toolName)
		if !ok {
			return "", fmt.Errorf("model stopped for tool use without calling %s", toolName)
		}
		return marshalInput(input)

	case "end_turn", "stop_sequence":
		if input, ok := toolInputFromOutput(out, toolName); ok {
			return marshalInput(input)
		}
		return textFromOutput(out), nil

	case "max_tokens":
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider increasing MaxTokens")
		return "", ErrMaxTokens

	case "guardrail_intervened", "content_filtered":
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return "", ErrContentFiltered

	default:
		if input, ok := toolInputFromOutput(out, toolName); ok {
			return marshalInput(input)
		}
		return textFromOutput(out), nil
	}
}

func marshalInput(input map[string]any) (string, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool input: %w", err)
	}
	return string(b), nil
}

// buildToolSpec constructs the forced tool whose input schema is the requested output schema.
func buildToolSpec(name string, schema *jsonschema.Schema) (types.ToolSpecification, error) {
	// The document encoder does not honour the schema's MarshalJSON, so go through a plain map.
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to marshal tool schema for %s: %w", name, err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to unmarshal tool schema for %s: %w", name, err)
	}

	return types.ToolSpecification{
		Name:        aws.String(name),
		Description: aws.String("Return the answer as structured data matching the input schema."),
		InputSchema: &types.ToolInputSchemaMemberJson{
			Value: document.NewLazyDocument(schemaMap),
		},
	}, nil
}

// textFromOutput returns the last text block that looks like a JSON object, or all text blocks joined.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	var texts []string
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return strings.Join(texts, "\n")
}

// toolInputFromOutput returns the input of the first call to the named tool.
func toolInputFromOutput(out *bedrockruntime.ConverseOutput, name string) (map[string]any, bool) {
	if out == nil {
		return nil, false
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return nil, false
	}

	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || tu == nil || aws.ToString(tu.Value.Name) != name || tu.Value.Input == nil {
			continue
		}

		var input map[string]any
		if err := tu.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
			slog.Warn("LLM_CLIENT: Unreadable tool input", "tool", name, "error", err)
			continue
		}
		return normalizeInput(input).(map[string]any), true
	}
	return nil, false
}

// normalizeInput decodes arrays and objects the model sometimes sends as JSON strings.
func normalizeInput(val any) any {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
			var decoded any
			if json.Unmarshal([]byte(s), &decoded) == nil {
				return normalizeInput(decoded)
			}
		}
		return v

	case []any:
		for i := range v {
			v[i] = normalizeInput(v[i])
		}
		return v

	case map[string]any:
		for key, val := range v {
			v[key] = normalizeInput(val)
		}
		return v

	default:
		return v
	}
}
