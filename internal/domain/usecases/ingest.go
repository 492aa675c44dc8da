// Package usecases contains application business rules.
// Usecases orchestrate entities and depend only on port interfaces; adapters
// are injected by the composition root.
package usecases

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// IndexerConfig tunes index building.
type IndexerConfig struct {
	BatchSize    int           // rows per embedding call
	Concurrency  int           // embedding calls in flight
	EmbedTimeout time.Duration // per embedding call; zero disables
}

// DefaultIndexerConfig returns batches of 8 rows, 4 in flight, 60s per call.
func DefaultIndexerConfig() IndexerConfig {
	return IndexerConfig{BatchSize: 8, Concurrency: 4, EmbedTimeout: 60 * time.Second}
}

// Indexer embeds row records and builds a vector index from them.
type Indexer struct {
	embedder ports.EmbeddingService
	newIndex ports.IndexFactory
	cache    ports.EmbeddingCache
	cfg      IndexerConfig
}

// NewIndexer creates an Indexer. cache may be nil.
func NewIndexer(
	embedder ports.EmbeddingService,
	newIndex ports.IndexFactory,
	cache ports.EmbeddingCache,
	cfg IndexerConfig,
) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIndexerConfig().BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultIndexerConfig().Concurrency
	}
	return &Indexer{
		embedder: embedder,
		newIndex: newIndex,
		cache:    cache,
		cfg:      cfg,
	}
}

// Model returns the embedding model new indexes are bound to.
func (ix *Indexer) Model() string { return ix.embedder.Model() }

// Build embeds rows and inserts them into a fresh index in ID order.
//
// Any embedding failure aborts the build. When an insert fails the returned
// index holds the entries inserted before the failure; callers must not adopt it.
func (ix *Indexer) Build(ctx context.Context, rows []entities.RowRecord, progress ports.ProgressSink) (ports.VectorIndex, error) {
	model := ix.embedder.Model()
	index := ix.newIndex(model)
	total := len(rows)
	if total == 0 {
		report(progress, 0, 0)
		return index, nil
	}

	start := time.Now()
	vectors := make([]entities.EmbeddingVector, total)
	hashes := make([]string, total)
	for i, row := range rows {
		hashes[i] = entities.ContentHash(row.Text)
	}

	misses := ix.fillFromCache(ctx, model, hashes, vectors)
	cached := total - len(misses)
	log.Info("ingestion started", "rows", total, "cached", cached, "model", model)

	tracker := &progressTracker{sink: progress, done: cached, total: total}
	tracker.report()

	if err := ix.embedMisses(ctx, rows, misses, vectors, tracker); err != nil {
		return nil, err
	}

	for i, row := range rows {
		if err := index.Insert(row, vectors[i]); err != nil {
			if errors.Is(err, errs.ErrDimensionMismatch) {
				return index, fmt.Errorf("%w: row %d: %w", errs.ErrEmbeddingDimensionMismatch, row.ID, err)
			}
			return index, fmt.Errorf("indexing row %d: %w", row.ID, err)
		}
	}

	ix.storeInCache(ctx, model, misses, hashes, vectors)

	log.Info("ingestion finished", "rows", index.Len(), "dimension", index.Dimension(), "elapsed", time.Since(start))
	return index, nil
}

// fillFromCache copies cached vectors into place and returns the positions still to embed.
func (ix *Indexer) fillFromCache(ctx context.Context, model string, hashes []string, vectors []entities.EmbeddingVector) []int {
	var found map[string]entities.EmbeddingVector
	if ix.cache != nil {
		var err error
		found, err = ix.cache.Get(ctx, model, hashes)
		if err != nil {
			log.Warn("embedding cache lookup failed", "error", err)
			found = nil
		}
	}

	misses := make([]int, 0, len(hashes))
	for i, h := range hashes {
		if v, ok := found[h]; ok {
			vectors[i] = v
			continue
		}
		misses = append(misses, i)
	}
	return misses
}

// embedMisses embeds the rows at positions misses in bounded parallel batches.
func (ix *Indexer) embedMisses(ctx context.Context, rows []entities.RowRecord, misses []int, vectors []entities.EmbeddingVector, tracker *progressTracker) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Concurrency)

	for start := 0; start < len(misses); start += ix.cfg.BatchSize {
		batch := misses[start:min(start+ix.cfg.BatchSize, len(misses))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts := make([]string, len(batch))
			for j, pos := range batch {
				texts[j] = rows[pos].Text
			}

			callCtx, cancel := ix.callContext(gctx)
			defer cancel()
			embedded, err := ix.embedder.EmbedBatch(callCtx, texts)
			if err != nil {
				return fmt.Errorf("embedding rows %d-%d: %w", rows[batch[0]].ID, rows[batch[len(batch)-1]].ID, err)
			}
			if len(embedded) != len(batch) {
				return fmt.Errorf("%w: asked for %d embeddings, got %d", errs.ErrEmbeddingUnavailable, len(batch), len(embedded))
			}
			for j, pos := range batch {
				vectors[pos] = embedded[j]
			}
			tracker.add(len(batch))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("ingestion aborted", "error", err)
		return err
	}
	return nil
}

func (ix *Indexer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ix.cfg.EmbedTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ix.cfg.EmbedTimeout)
}

func (ix *Indexer) storeInCache(ctx context.Context, model string, misses []int, hashes []string, vectors []entities.EmbeddingVector) {
	if ix.cache == nil || len(misses) == 0 {
		return
	}
	entries := make([]ports.CachedEmbedding, 0, len(misses))
	for _, pos := range misses {
		entries = append(entries, ports.CachedEmbedding{ContentHash: hashes[pos], Vector: vectors[pos]})
	}
	if err := ix.cache.Put(ctx, model, entries); err != nil {
		log.Warn("embedding cache write failed", "error", err)
	}
}

// progressTracker serializes reports so the sink sees a non-decreasing count.
type progressTracker struct {
	mu    sync.Mutex
	sink  ports.ProgressSink
	done  int
	total int
}

func (p *progressTracker) add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	report(p.sink, p.done, p.total)
}

func (p *progressTracker) report() {
	p.mu.Lock()
	defer p.mu.Unlock()
	report(p.sink, p.done, p.total)
}

func report(sink ports.ProgressSink, done, total int) {
	if sink != nil {
		sink.ReportProgress(done, total)
	}
}
