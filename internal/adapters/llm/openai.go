package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// OpenAIAdapter implements ports.LLMService against an OpenAI-compatible
// chat completions endpoint.
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
		timeout = 300 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the chat model name.
func (a *OpenAIAdapter) Model() string { return a.model }

func (a *OpenAIAdapter) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: stream,
	}
}

// Generate produces a complete response for prompt.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	log.Debug("chat completion request", "model", a.model)

	resp, err := a.client.CreateChatCompletion(ctx, a.request(prompt, false))
	if err != nil {
		log.Error("openai chat call failed", "error", err)
		return "", chatError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", errs.ErrChatModelUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream streams completion deltas as tokens.
func (a *OpenAIAdapter) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.request(prompt, true))
	if err != nil {
		log.Error("openai chat stream failed", "error", err)
		return nil, chatError(err)
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(ctx, ch, ports.StreamToken{Done: true})
				return
			}
			if err != nil {
				send(ctx, ch, ports.StreamToken{Done: true, Error: chatError(err)})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if !send(ctx, ch, ports.StreamToken{Content: resp.Choices[0].Delta.Content}) {
				return
			}
		}
	}()

	return ch, nil
}
