package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"mealprep"
)

const defaultEmbedModelID = "nomic-embed-text"

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
	NumPredict    int     `json:"num_predict,omitempty"`
}

// Client is a mealprep.Completer and mealprep.Embedder for a local Ollama server.
// Schemas are sent in the "format" field so the server constrains decoding to them.
type Client struct {
	chatEndpoint  string
	embedEndpoint string
	model         string
	embedModel    string
	httpClient    mealprep.HTTPClient
	options       options
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	EmbedModelID string
	MaxTokens    int
	TopP         float32
	HTTPClient   mealprep.HTTPClient
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.ModelID) == "" {
		return nil, fmt.Errorf("%w: ollama model id is empty", mealprep.ErrConfiguration)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.EmbedModelID == "" {
		opts.EmbedModelID = defaultEmbedModelID
	}
	topP := float64(opts.TopP)
	if topP == 0 {
		topP = 0.9
	}

	base := strings.TrimRight(opts.BaseEndpoint, "/")
	return &Client{
		model:         opts.ModelID,
		embedModel:    opts.EmbedModelID,
		httpClient:    opts.HTTPClient,
		chatEndpoint:  base + "/api/chat",
		embedEndpoint: base + "/api/embed",
		options: options{
			Temperature:   1.0,
			TopP:          topP,
			RepeatPenalty: 1.05,
			NumCtx:        16384, // enough for ten grounding recipes plus a week-long plan
			NumPredict:    opts.MaxTokens,
		},
	}, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireResponse struct {
	Message wireMessage `json:"message"`
	// other metadata omitted but available
}

type wireRequest struct {
	Model    string          `json:"model"`
	Messages []wireMessage   `json:"messages"`
	Format   json.RawMessage `json:"format,omitempty"`
	Stream   bool            `json:"stream"`
	Options  options         `json:"options,omitempty"`
}

// Complete sends the prompt to /api/chat and returns the model's content verbatim.
// Whether the content honours the schema is decided by the caller.
func (c *Client) Complete(ctx context.Context, req mealprep.CompletionRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "schema", req.SchemaName, "prompt_len", len(req.Prompt))

	wr := wireRequest{
		Model:    c.model,
		Messages: buildMessages(req),
		Stream:   false,
		Options:  c.options,
	}
	if req.Temperature > 0 {
		wr.Options.Temperature = float64(req.Temperature)
	}
	if req.Schema != nil {
		format, err := json.Marshal(req.Schema)
		if err != nil {
			return "", fmt.Errorf("failed to marshal format schema: %w", err)
		}
		wr.Format = format
	}

	var res wireResponse
	if err := c.post(ctx, c.chatEndpoint, wr, &res); err != nil {
		return "", err
	}
	return res.Message.Content, nil
}

// buildMessages prepends the system prompt, if any, to the user prompt.
func buildMessages(req mealprep.CompletionRequest) []wireMessage {
	messages := make([]wireMessage, 0, 2)
	if sp := strings.TrimSpace(req.System); sp != "" {
		messages = append(messages, wireMessage{Role: "system", Content: sp})
	}
	return append(messages, wireMessage{Role: "user", Content: req.Prompt})
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding of text from /api/embed.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedModel == "" {
		return nil, fmt.Errorf("%w: ollama embed model id is empty", mealprep.ErrConfiguration)
	}

	var res embedResponse
	if err := c.post(ctx, c.embedEndpoint, embedRequest{Model: c.embedModel, Input: text}, &res); err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding from %s", c.embedModel)
	}
	return res.Embeddings[0], nil
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	reqBytes, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("LLM_CLIENT: %s: %s", resp.Status, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		slog.Warn("LLM_CLIENT: decode failed", "err", err, "body", string(body))
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
