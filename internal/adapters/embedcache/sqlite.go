// Package embedcache provides an embedding cache keyed by model and content hash.
// Adapter implementing ports.EmbeddingCache on SQLite.
package embedcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// inMemoryDSN names a private in-memory database that lives as long as the cache.
const inMemoryDSN = "file:lograg-embeddings-%s?mode=memory&cache=shared"

// maxLookupBatch keeps IN (...) lists under SQLite's variable limit.
const maxLookupBatch = 500

// SQLiteCache stores embeddings as JSON blobs.
type SQLiteCache struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteCache opens the cache. An empty path selects an in-memory database.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	dsn := fmt.Sprintf(inMemoryDSN, uuid.NewString())
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A shared in-memory database lives as long as one connection is open.
	db.SetMaxOpenConns(1)

	cache := &SQLiteCache{db: db}
	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return cache, nil
}

func (c *SQLiteCache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		embedding_model TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (embedding_model, content_hash)
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Get returns the cached vectors among hashes for model, keyed by hash.
func (c *SQLiteCache) Get(ctx context.Context, model string, hashes []string) (map[string]entities.EmbeddingVector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	found := make(map[string]entities.EmbeddingVector, len(hashes))
	for start := 0; start < len(hashes); start += maxLookupBatch {
		end := min(start+maxLookupBatch, len(hashes))
		if err := c.lookup(ctx, model, hashes[start:end], found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (c *SQLiteCache) lookup(ctx context.Context, model string, hashes []string, found map[string]entities.EmbeddingVector) error {
	if len(hashes) == 0 {
		return nil
	}

	args := make([]any, 0, len(hashes)+1)
	args = append(args, model)
	for _, h := range hashes {
		args = append(args, h)
	}
	query := `SELECT content_hash, dimension, vector FROM embeddings
		WHERE embedding_model = ? AND content_hash IN (?` + strings.Repeat(",?", len(hashes)-1) + `)`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		var dimension int
		var data []byte
		if err := rows.Scan(&hash, &dimension, &data); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}

		var vector entities.EmbeddingVector
		if err := json.Unmarshal(data, &vector); err != nil || len(vector) == 0 || len(vector) != dimension {
			log.Warn("skipping corrupted cached embedding", "model", model, "hash", hash)
			continue
		}
		found[hash] = vector
	}
	return rows.Err()
}

// Put stores entries for model, replacing existing ones.
func (c *SQLiteCache) Put(ctx context.Context, model string, entries []ports.CachedEmbedding) error {
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embeddings (embedding_model, content_hash, dimension, vector)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.ContentHash == "" || len(e.Vector) == 0 {
			return fmt.Errorf("invalid cache entry %q", e.ContentHash)
		}
		data, err := json.Marshal(e.Vector)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, model, e.ContentHash, len(e.Vector), data); err != nil {
			return fmt.Errorf("inserting embedding: %w", err)
		}
	}

	return tx.Commit()
}

// Clear removes all cached embeddings.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, "DELETE FROM embeddings")
	return err
}

// Count returns the number of cached embeddings.
func (c *SQLiteCache) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
