// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"
	"io"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) (entities.EmbeddingVector, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([]entities.EmbeddingVector, error)

	// Model names the embedding model; vectors from different models are not comparable.
	Model() string
}

// LLMService generates text responses from a language model.
type LLMService interface {
	// Generate returns the full response for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream produces a streaming response (for real-time UI).
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error)

	Model() string
}

// VectorIndex stores row embeddings and answers nearest-neighbour queries.
type VectorIndex interface {
	Insert(record entities.RowRecord, vector entities.EmbeddingVector) error
	Query(vector entities.EmbeddingVector, k int) (entities.RetrievalResult, error)
	Len() int
	Dimension() int
	// Model is the embedding model the index is bound to.
	Model() string
}

// IndexFactory creates an empty index bound to an embedding model.
type IndexFactory func(model string) VectorIndex

// RowLoader reads tabular input into row records.
type RowLoader interface {
	Load(ctx context.Context, r io.Reader, name string, rowLimit int) (*entities.Table, error)
}

// CachedEmbedding is a vector stored under the hash of the text it embeds.
type CachedEmbedding struct {
	ContentHash string
	Vector      entities.EmbeddingVector
}

// EmbeddingCache remembers embeddings by (model, content hash).
type EmbeddingCache interface {
	Get(ctx context.Context, model string, hashes []string) (map[string]entities.EmbeddingVector, error)
	Put(ctx context.Context, model string, entries []CachedEmbedding) error
}

// ProgressSink receives ingestion progress. It must not block.
type ProgressSink interface {
	ReportProgress(rowsDone, rowsTotal int)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(rowsDone, rowsTotal int)

func (f ProgressFunc) ReportProgress(rowsDone, rowsTotal int) { f(rowsDone, rowsTotal) }

// StreamToken represents a single token in a streaming LLM response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
