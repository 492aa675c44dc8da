// Package llm provides chat model adapters.
// Adapters implement ports.LLMService and translate transport failures into
// the chat error kinds of the errs package.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"time"

	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "gemma3"
)

// OllamaLLMAdapter implements ports.LLMService using Ollama API.
type OllamaLLMAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaLLMAdapter creates a new Ollama LLM adapter.
func NewOllamaLLMAdapter(baseURL, model string) *OllamaLLMAdapter {
	return NewOllamaLLMAdapterWithTimeout(baseURL, model, 300*time.Second)
}

// NewOllamaLLMAdapterWithTimeout creates an adapter with a custom client timeout.
func NewOllamaLLMAdapterWithTimeout(baseURL, model string, timeout time.Duration) *OllamaLLMAdapter {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaLLMAdapter{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// ollamaGenerateRequest is the Ollama generate API request.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaGenerateResponse is the Ollama generate API response.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Model returns the chat model name.
func (a *OllamaLLMAdapter) Model() string { return a.model }

// Generate produces a complete response for prompt.
func (a *OllamaLLMAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := a.post(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", chatError(fmt.Errorf("decoding response: %w", err))
	}
	if genResp.Error != "" {
		return "", fmt.Errorf("%w: %s", errs.ErrChatModelUnavailable, genResp.Error)
	}

	return genResp.Response, nil
}

// GenerateStream produces a streaming response via Ollama's NDJSON API.
// The channel is closed after the final token; a failure arrives as a
// token with Done and Error set.
func (a *OllamaLLMAdapter) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	resp, err := a.post(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				log.Debug("skipping malformed stream line", "error", err)
				continue
			}
			if chunk.Error != "" {
				send(ctx, ch, ports.StreamToken{Done: true, Error: fmt.Errorf("%w: %s", errs.ErrChatModelUnavailable, chunk.Error)})
				return
			}

			if !send(ctx, ch, ports.StreamToken{Content: chunk.Response, Done: chunk.Done}) {
				return
			}
			if chunk.Done {
				return
			}
		}

		err := scanner.Err()
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		send(ctx, ch, ports.StreamToken{Done: true, Error: chatError(err)})
	}()

	return ch, nil
}

func (a *OllamaLLMAdapter) post(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	log.Debug("generate request", "url", a.baseURL, "model", a.model, "stream", stream)

	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:  a.model,
		Prompt: prompt,
		Stream: stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		log.Error("ollama generate call failed", "error", err)
		return nil, chatError(fmt.Errorf("calling Ollama: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: Ollama returned status %d: %s", errs.ErrChatModelUnavailable, resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp, nil
}

// chatError classifies a transport failure as a timeout or an outage.
func chatError(err error) error {
	if errs.IsTimeout(err) {
		return fmt.Errorf("%w: %w", errs.ErrChatModelTimeout, err)
	}
	return fmt.Errorf("%w: %w", errs.ErrChatModelUnavailable, err)
}

// send delivers tok unless ctx is done first.
func send(ctx context.Context, ch chan<- ports.StreamToken, tok ports.StreamToken) bool {
	select {
	case ch <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}
