package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// ChatEngine answers questions from retrieved rows.
type ChatEngine struct {
	llm     ports.LLMService
	timeout time.Duration
}

// NewChatEngine creates a ChatEngine. A zero timeout disables the per-call deadline.
func NewChatEngine(llm ports.LLMService, timeout time.Duration) *ChatEngine {
	return &ChatEngine{llm: llm, timeout: timeout}
}

// Answer asks the chat model to answer question using only rows.
func (c *ChatEngine) Answer(ctx context.Context, question string, rows entities.RetrievalResult) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	answer, err := c.llm.Generate(callCtx, BuildPrompt(question, rows))
	if err != nil {
		return "", classifyChatError(err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: model returned an empty answer", errs.ErrChatModelUnavailable)
	}
	return answer, nil
}

// AnswerStream is the streaming variant of Answer. The returned channel is
// closed after the final token; an empty stream ends with an error token.
func (c *ChatEngine) AnswerStream(ctx context.Context, question string, rows entities.RetrievalResult) (<-chan ports.StreamToken, error) {
	callCtx, cancel := c.callContext(ctx)

	upstream, err := c.llm.GenerateStream(callCtx, BuildPrompt(question, rows))
	if err != nil {
		cancel()
		return nil, classifyChatError(err)
	}

	out := make(chan ports.StreamToken, cap(upstream))
	go func() {
		defer close(out)
		defer cancel()

		produced := false
		for tok := range upstream {
			if tok.Error != nil {
				tok.Error = classifyChatError(tok.Error)
				tok.Done = true
			} else if tok.Done && !produced && strings.TrimSpace(tok.Content) == "" {
				tok.Error = fmt.Errorf("%w: model returned an empty answer", errs.ErrChatModelUnavailable)
			}
			if strings.TrimSpace(tok.Content) != "" {
				produced = true
			}
			select {
			case out <- tok:
			case <-ctx.Done():
				return
			}
			if tok.Done {
				return
			}
		}
		// Upstream closed without a final token.
		select {
		case out <- ports.StreamToken{Done: true, Error: classifyChatError(streamEndError(callCtx))}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (c *ChatEngine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func streamEndError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("stream ended before the final token")
}

// classifyChatError makes sure every chat failure carries a chat error kind.
func classifyChatError(err error) error {
	switch {
	case errors.Is(err, errs.ErrChatModelTimeout), errors.Is(err, errs.ErrChatModelUnavailable):
		return err
	case errs.IsTimeout(err):
		return fmt.Errorf("%w: %w", errs.ErrChatModelTimeout, err)
	default:
		return fmt.Errorf("%w: %w", errs.ErrChatModelUnavailable, err)
	}
}

// BuildPrompt renders the retrieved rows and the question into a grounded prompt.
func BuildPrompt(question string, rows entities.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("You are a log analysis assistant. Answer the question using only the log rows below.\n")
	sb.WriteString("If the rows do not contain the answer, say that the uploaded data does not contain it.\n\n")
	sb.WriteString("Log rows:\n")
	for i, r := range rows {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[row %d] similarity=%.4f\n%s\n", r.Row.ID, r.Score, r.Row.Text)
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
