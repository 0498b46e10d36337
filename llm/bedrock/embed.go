package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const defaultEmbedModelID = "amazon.titan-embed-text-v2:0"

type bedrockInvoker interface {
	InvokeModel(context.Context, *bedrockruntime.InvokeModelInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Embedder is a mealprep.Embedder backed by a Titan text embedding model.
type Embedder struct {
	bi      bedrockInvoker
	modelID string
}

func NewEmbedder(bi bedrockInvoker, modelID string) *Embedder {
	if modelID == "" {
		modelID = defaultEmbedModelID
	}
	return &Embedder{bi: bi, modelID: modelID}
}

type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Normalize  bool   `json:"normalize"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type titanEmbedResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	out, err := e.bi.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke model: %w", err)
	}

	var res titanEmbedResponse
	if err := json.Unmarshal(out.Body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from %s", e.modelID)
	}
	return res.Embedding, nil
}
