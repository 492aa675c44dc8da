// Package resilient wraps model services with retries.
// Only outage errors are retried; timeouts, cancellations and model errors
// such as dimension mismatches return immediately.
package resilient

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// Policy configures exponential backoff with jitter.
type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultPolicy returns three retries starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond}
}

func (p Policy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy().BaseDelay
	}
	return retry.WithMaxRetries(p.MaxRetries, retry.WithJitterPercent(20, retry.NewExponential(base)))
}

// do runs fn until it succeeds, fails permanently or the policy gives up.
func (p Policy) do(ctx context.Context, op string, kind error, fn func(ctx context.Context) error) error {
	var lastErr error
	attempt := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(ctx, err, kind) {
			return err
		}
		log.Warn(op+" failed, will retry", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if attempt > 1 {
		log.Warn(op+" gave up", "attempts", attempt, "error", err)
	}
	// Cancellation while backing off hides the failure that caused the retry.
	if lastErr != nil && !errors.Is(err, lastErr) {
		return fmt.Errorf("%w: %w", lastErr, err)
	}
	return err
}

// shouldRetry reports whether err is an outage of the given kind that may clear up.
func shouldRetry(ctx context.Context, err, kind error) bool {
	if ctx.Err() != nil || errs.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, kind)
}

// Embedder retries a ports.EmbeddingService.
type Embedder struct {
	next   ports.EmbeddingService
	policy Policy
}

// NewEmbedder wraps next with policy.
func NewEmbedder(next ports.EmbeddingService, policy Policy) *Embedder {
	return &Embedder{next: next, policy: policy}
}

// Model returns the wrapped model name.
func (e *Embedder) Model() string { return e.next.Model() }

// Embed embeds text, retrying outages.
func (e *Embedder) Embed(ctx context.Context, text string) (entities.EmbeddingVector, error) {
	var vec entities.EmbeddingVector
	err := e.policy.do(ctx, "embedding", errs.ErrEmbeddingUnavailable, func(ctx context.Context) error {
		var err error
		vec, err = e.next.Embed(ctx, text)
		return err
	})
	return vec, err
}

// EmbedBatch embeds texts, retrying the whole batch on outages.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]entities.EmbeddingVector, error) {
	var vecs []entities.EmbeddingVector
	err := e.policy.do(ctx, "embedding batch", errs.ErrEmbeddingUnavailable, func(ctx context.Context) error {
		var err error
		vecs, err = e.next.EmbedBatch(ctx, texts)
		return err
	})
	return vecs, err
}

// LLM retries a ports.LLMService.
type LLM struct {
	next   ports.LLMService
	policy Policy
}

// NewLLM wraps next with policy.
func NewLLM(next ports.LLMService, policy Policy) *LLM {
	return &LLM{next: next, policy: policy}
}

// Model returns the wrapped model name.
func (l *LLM) Model() string { return l.next.Model() }

// Generate retries outages before any answer is produced.
func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := l.policy.do(ctx, "generation", errs.ErrChatModelUnavailable, func(ctx context.Context) error {
		var err error
		answer, err = l.next.Generate(ctx, prompt)
		return err
	})
	return answer, err
}

// GenerateStream retries opening the stream. Failures after the first token
// are delivered on the channel unchanged.
func (l *LLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	var ch <-chan ports.StreamToken
	err := l.policy.do(ctx, "generation stream", errs.ErrChatModelUnavailable, func(ctx context.Context) error {
		var err error
		ch, err = l.next.GenerateStream(ctx, prompt)
		return err
	})
	return ch, err
}
