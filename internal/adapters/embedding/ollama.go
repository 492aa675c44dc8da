// Package embedding provides embedding model adapters.
// Each adapter implements ports.EmbeddingService; the domain layer never sees
// provider request or response shapes.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"time"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaAdapter implements ports.EmbeddingService using the Ollama API.
type OllamaAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaAdapter creates a new Ollama embedding adapter.
func NewOllamaAdapter(baseURL, model string) *OllamaAdapter {
	return NewOllamaAdapterWithTimeout(baseURL, model, 60*time.Second)
}

// NewOllamaAdapterWithTimeout creates an adapter whose HTTP client gives up after timeout.
func NewOllamaAdapterWithTimeout(baseURL, model string, timeout time.Duration) *OllamaAdapter {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaAdapter{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// ollamaEmbedRequest is the Ollama API request format.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is the Ollama API response format.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Model returns the embedding model name.
func (a *OllamaAdapter) Model() string { return a.model }

// Embed generates an embedding for a single text.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) (entities.EmbeddingVector, error) {
	log.Debug("embedding request", "url", a.baseURL, "model", a.model)

	jsonData, err := json.Marshal(ollamaEmbedRequest{
		Model:  a.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		log.Error("ollama embedding call failed", "error", err)
		return nil, fmt.Errorf("%w: calling Ollama: %w", errs.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: Ollama returned status %d: %s", errs.ErrEmbeddingUnavailable, resp.StatusCode, bytes.TrimSpace(body))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", errs.ErrEmbeddingUnavailable, err)
	}
	if embedResp.Error != "" {
		return nil, fmt.Errorf("%w: %s", errs.ErrEmbeddingUnavailable, embedResp.Error)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", errs.ErrEmbeddingUnavailable)
	}

	log.Debug("embedding received", "dimensions", len(embedResp.Embedding))
	return embedResp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts sequentially.
// Callers parallelize across batches.
func (a *OllamaAdapter) EmbedBatch(ctx context.Context, texts []string) ([]entities.EmbeddingVector, error) {
	embeddings := make([]entities.EmbeddingVector, len(texts))
	for i, text := range texts {
		emb, err := a.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	if err := checkUniformDimension(embeddings); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// checkUniformDimension fails when vectors of one response disagree in length.
func checkUniformDimension(vectors []entities.EmbeddingVector) error {
	for i := 1; i < len(vectors); i++ {
		if len(vectors[i]) != len(vectors[0]) {
			return fmt.Errorf("%w: vector %d has %d dimensions, vector 0 has %d",
				errs.ErrEmbeddingDimensionMismatch, i, len(vectors[i]), len(vectors[0]))
		}
	}
	return nil
}
