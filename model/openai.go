package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

// OpenAIEmbedder batches texts through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	batchSize  int
}

// NewOpenAIClient builds a client from an explicit key and optional base URL.
func NewOpenAIClient(apiKey, baseURL string) (openai.Client, error) {
	if apiKey == "" {
		return openai.Client{}, errors.New("OPENAI_API_KEY is not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(opts...), nil
}

func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) (*OpenAIEmbedder, error) {
	client, err := NewOpenAIClient(apiKey, baseURL)
	if err != nil {
		return nil, err
	}
	if model == "" || model == "all-minilm" {
		model = defaultOpenAIEmbeddingModel
	}
	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
		batchSize:  500,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts[i:end],
			},
			Model: openai.EmbeddingModel(e.model),
		}
		if e.dimensions > 0 {
			params.Dimensions = openai.Int(int64(e.dimensions))
		}

		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, errMismatchedCount)
		}
		for _, data := range resp.Data {
			out = append(out, toFloat32(data.Embedding))
		}
	}
	return out, nil
}

func openAIStatus(err error) (int, bool) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}
