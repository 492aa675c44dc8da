// Package vectordb provides the in-memory vector index.
// Adapter implementing ports.VectorIndex with a linear cosine scan.
package vectordb

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

type entry struct {
	record entities.RowRecord
	vector entities.EmbeddingVector
	norm   float64
}

// InMemoryIndex keeps rows and vectors in insertion order.
// The first insert fixes the dimension for the index lifetime.
type InMemoryIndex struct {
	mu        sync.RWMutex
	model     string
	dimension int
	entries   []entry
	byID      map[int]int // row ID -> position in entries
}

// NewInMemoryIndex creates an empty index bound to an embedding model.
func NewInMemoryIndex(model string) *InMemoryIndex {
	return &InMemoryIndex{
		model: model,
		byID:  make(map[int]int),
	}
}

// Factory returns a ports.IndexFactory producing in-memory indexes.
func Factory() ports.IndexFactory {
	return func(model string) ports.VectorIndex {
		return NewInMemoryIndex(model)
	}
}

// Insert appends a row and its vector.
func (s *InMemoryIndex) Insert(record entities.RowRecord, vector entities.EmbeddingVector) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: row %d has an empty vector", errs.ErrDimensionMismatch, record.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		s.dimension = len(vector)
	} else if len(vector) != s.dimension {
		return fmt.Errorf("%w: row %d has %d dimensions, index has %d",
			errs.ErrDimensionMismatch, record.ID, len(vector), s.dimension)
	}
	if _, dup := s.byID[record.ID]; dup {
		return fmt.Errorf("row %d already indexed", record.ID)
	}

	stored := make(entities.EmbeddingVector, len(vector))
	copy(stored, vector)

	s.byID[record.ID] = len(s.entries)
	s.entries = append(s.entries, entry{record: record, vector: stored, norm: norm(stored)})
	return nil
}

// Query returns the k rows most similar to vector.
// Scores sort descending; equal scores sort by ascending row ID.
func (s *InMemoryIndex) Query(vector entities.EmbeddingVector, k int) (entities.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, errs.ErrEmptyIndex
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			errs.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k < 1 {
		k = 1
	}
	if k > len(s.entries) {
		k = len(s.entries)
	}

	queryNorm := norm(vector)
	results := make(entities.RetrievalResult, len(s.entries))
	for i, e := range s.entries {
		results[i] = entities.ScoredRow{
			Row:   e.record,
			Score: cosine(vector, e.vector, queryNorm, e.norm),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Row.ID < results[j].Row.ID
	})

	return results[:k:k], nil
}

// Len returns the number of indexed rows.
func (s *InMemoryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension returns the vector length fixed by the first insert, or 0.
func (s *InMemoryIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Model returns the embedding model this index is bound to.
func (s *InMemoryIndex) Model() string { return s.model }

// Rows returns the indexed rows in insertion order.
func (s *InMemoryIndex) Rows() []entities.RowRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]entities.RowRecord, len(s.entries))
	for i, e := range s.entries {
		rows[i] = e.record
	}
	return rows
}

// Vector returns a copy of the vector stored for row id.
func (s *InMemoryIndex) Vector(id int) (entities.EmbeddingVector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	out := make(entities.EmbeddingVector, len(s.entries[pos].vector))
	copy(out, s.entries[pos].vector)
	return out, true
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either norm is 0
// or the lengths differ.
func CosineSimilarity(a, b entities.EmbeddingVector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return cosine(a, b, norm(a), norm(b))
}

func cosine(a, b entities.EmbeddingVector, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}

	var dotProduct float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
	}
	return dotProduct / (normA * normB)
}

func norm(v entities.EmbeddingVector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
