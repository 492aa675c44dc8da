package usecases

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// Retriever embeds a query and finds the most similar indexed rows.
type Retriever struct {
	embedder ports.EmbeddingService
	timeout  time.Duration
}

// NewRetriever creates a Retriever. A zero timeout disables the per-call deadline.
func NewRetriever(embedder ports.EmbeddingService, timeout time.Duration) *Retriever {
	return &Retriever{embedder: embedder, timeout: timeout}
}

// Retrieve returns at most k rows of index ordered by similarity to query.
func (r *Retriever) Retrieve(ctx context.Context, index ports.VectorIndex, query string, k int) (entities.RetrievalResult, error) {
	if index == nil || index.Len() == 0 {
		return nil, errs.ErrEmptyIndex
	}
	if model := r.embedder.Model(); model != index.Model() {
		return nil, fmt.Errorf("%w: index built with %q, query embedder is %q", errs.ErrEmbeddingModelMismatch, index.Model(), model)
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	vector, err := r.embedder.Embed(callCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := index.Query(vector, k)
	if err != nil {
		if errors.Is(err, errs.ErrDimensionMismatch) {
			return nil, fmt.Errorf("%w: %w", errs.ErrEmbeddingDimensionMismatch, err)
		}
		return nil, err
	}

	log.Debug("rows retrieved", "k", k, "returned", len(results))
	return results, nil
}
