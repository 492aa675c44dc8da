package embedding

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
)

// OpenAIAdapter implements ports.EmbeddingService against any OpenAI-compatible
// /embeddings endpoint (OpenAI, Ollama's /v1, llama.cpp server, ...).
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter creates an adapter. apiKey may be empty for local servers.
func NewOpenAIAdapter(baseURL, apiKey, model string, timeout time.Duration) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the embedding model name.
func (a *OpenAIAdapter) Model() string { return a.model }

// Embed generates an embedding for a single text.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) (entities.EmbeddingVector, error) {
	vectors, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch sends all texts in one request and restores input order from
// the response indexes.
func (a *OpenAIAdapter) EmbedBatch(ctx context.Context, texts []string) ([]entities.EmbeddingVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	log.Debug("embedding batch request", "model", a.model, "texts", len(texts))
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(a.model),
		Input: texts,
	})
	if err != nil {
		log.Error("openai embedding call failed", "error", err)
		return nil, fmt.Errorf("%w: %w", errs.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", errs.ErrEmbeddingUnavailable, len(texts), len(resp.Data))
	}

	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})

	out := make([]entities.EmbeddingVector, len(resp.Data))
	for i, item := range resp.Data {
		if item.Index != i {
			return nil, fmt.Errorf("%w: missing embedding for input %d", errs.ErrEmbeddingUnavailable, i)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for input %d", errs.ErrEmbeddingUnavailable, i)
		}
		vec := make(entities.EmbeddingVector, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}

	if err := checkUniformDimension(out); err != nil {
		return nil, err
	}
	return out, nil
}
