// Package app assembles the session and its adapters from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/0xcro3dile/lograg-go/internal/adapters/embedcache"
	"github.com/0xcro3dile/lograg-go/internal/adapters/embedding"
	"github.com/0xcro3dile/lograg-go/internal/adapters/llm"
	"github.com/0xcro3dile/lograg-go/internal/adapters/loader"
	"github.com/0xcro3dile/lograg-go/internal/adapters/resilient"
	"github.com/0xcro3dile/lograg-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
	"github.com/0xcro3dile/lograg-go/internal/domain/usecases"
	"github.com/0xcro3dile/lograg-go/internal/infrastructure/config"
)

// App holds the assembled session and the resources it owns.
type App struct {
	Session  *usecases.Session
	Embedder ports.EmbeddingService
	LLM      ports.LLMService

	cache *embedcache.SQLiteCache
}

// New builds the model adapters, retry decorators, embedding cache and
// session described by cfg.
func New(cfg *config.AppConfig) (*App, error) {
	embedder, chat, err := models(cfg)
	if err != nil {
		return nil, err
	}

	policy := resilient.Policy{MaxRetries: uint64(cfg.MaxRetries()), BaseDelay: cfg.RetryBaseDelay()}
	embedder = resilient.NewEmbedder(embedder, policy)
	chat = resilient.NewLLM(chat, policy)

	a := &App{Embedder: embedder, LLM: chat}

	var cache ports.EmbeddingCache
	if cfg.CacheEnabled() {
		c, err := embedcache.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("opening embedding cache: %w", err)
		}
		a.cache = c
		cache = c
	}

	indexer := usecases.NewIndexer(embedder, vectordb.Factory(), cache, usecases.IndexerConfig{
		BatchSize:    cfg.Ingest.BatchSize,
		Concurrency:  cfg.Ingest.Concurrency,
		EmbedTimeout: cfg.IngestEmbedTimeout(),
	})
	a.Session = usecases.NewSession(
		loader.NewCSVLoader(),
		indexer,
		usecases.NewRetriever(embedder, cfg.RetrievalEmbedTimeout()),
		usecases.NewChatEngine(chat, cfg.ChatTimeout()),
		usecases.SessionConfig{RowLimit: cfg.RowLimit, TopK: cfg.SimilarDocumentsLimit},
	)

	log.Info("session configured",
		"provider", cfg.Provider,
		"embedding_model", embedder.Model(),
		"chat_model", chat.Model(),
		"cache", cfg.CacheEnabled(),
		"row_limit", cfg.RowLimit,
		"top_k", cfg.SimilarDocumentsLimit,
	)
	return a, nil
}

func models(cfg *config.AppConfig) (ports.EmbeddingService, ports.LLMService, error) {
	switch cfg.Provider {
	case config.ProviderOllama, "":
		return embedding.NewOllamaAdapterWithTimeout(cfg.Ollama.BaseURL, cfg.EmbeddingModelName, cfg.IngestEmbedTimeout()),
			llm.NewOllamaLLMAdapterWithTimeout(cfg.Ollama.BaseURL, cfg.ChatModelName, cfg.ChatTimeout()),
			nil
	case config.ProviderOpenAI:
		key := cfg.APIKey()
		return embedding.NewOpenAIAdapter(cfg.OpenAI.BaseURL, key, cfg.EmbeddingModelName, cfg.IngestEmbedTimeout()),
			llm.NewOpenAIAdapter(cfg.OpenAI.BaseURL, key, cfg.ChatModelName, cfg.ChatTimeout()),
			nil
	default:
		return nil, nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// Close stops ingestion and releases the embedding cache.
func (a *App) Close() error {
	a.Session.Close()
	if a.cache != nil {
		return a.cache.Close()
	}
	return nil
}

// WatchDir indexes every CSV file created or modified in dir until ctx is done.
// The most recent file wins; deletions are logged and otherwise ignored.
func WatchDir(ctx context.Context, watcher ports.FileWatcher, session *usecases.Session, dir string) error {
	defer watcher.Stop()
	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	log.Info("watching drop folder", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Operation == ports.FileDeleted {
				log.Info("file removed from drop folder", "path", ev.Path)
				continue
			}
			log.Info("file dropped", "path", ev.Path, "operation", ev.Operation)
			if err := session.UploadFile(ctx, ev.Path); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("drop folder ingestion failed", "path", ev.Path, "error", err)
			}
		}
	}
}
