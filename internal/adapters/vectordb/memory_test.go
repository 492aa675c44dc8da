package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
)

func row(id int, text string) entities.RowRecord {
	return entities.RowRecord{ID: id, Text: text, SourceRowIndex: id}
}

func TestInMemoryIndex_InsertAndQuery(t *testing.T) {
	index := NewInMemoryIndex("test-model")
	require.NoError(t, index.Insert(row(0, "hello"), entities.EmbeddingVector{1, 0, 0}))
	require.NoError(t, index.Insert(row(1, "world"), entities.EmbeddingVector{0, 1, 0}))

	results, err := index.Query(entities.EmbeddingVector{1, 0, 0}, 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Row.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.0, results[1].Score, 1e-9)
	assert.Equal(t, 2, index.Len())
	assert.Equal(t, 3, index.Dimension())
	assert.Equal(t, "test-model", index.Model())
}

func TestInMemoryIndex_EmptyIndex(t *testing.T) {
	index := NewInMemoryIndex("m")

	results, err := index.Query(entities.EmbeddingVector{1, 2}, 3)

	assert.ErrorIs(t, err, errs.ErrEmptyIndex)
	assert.Nil(t, results)
}

func TestInMemoryIndex_DimensionFixedByFirstInsert(t *testing.T) {
	index := NewInMemoryIndex("m")
	require.NoError(t, index.Insert(row(0, "a"), entities.EmbeddingVector{1, 0}))
	require.NoError(t, index.Insert(row(1, "b"), entities.EmbeddingVector{0, 1}))

	err := index.Insert(row(2, "c"), entities.EmbeddingVector{1, 0, 0})

	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
	assert.Equal(t, 2, index.Len(), "earlier entries stay indexed")
	assert.Equal(t, 2, index.Dimension())
}

func TestInMemoryIndex_RejectsEmptyVector(t *testing.T) {
	index := NewInMemoryIndex("m")

	err := index.Insert(row(0, "a"), nil)

	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
	assert.Equal(t, 0, index.Len())
}

func TestInMemoryIndex_RejectsDuplicateID(t *testing.T) {
	index := NewInMemoryIndex("m")
	require.NoError(t, index.Insert(row(0, "a"), entities.EmbeddingVector{1}))

	assert.Error(t, index.Insert(row(0, "b"), entities.EmbeddingVector{1}))
}

func TestInMemoryIndex_QueryDimensionMismatch(t *testing.T) {
	index := NewInMemoryIndex("m")
	require.NoError(t, index.Insert(row(0, "a"), entities.EmbeddingVector{1, 0}))

	_, err := index.Query(entities.EmbeddingVector{1, 0, 0}, 1)

	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestInMemoryIndex_KClampedToSize(t *testing.T) {
	index := NewInMemoryIndex("m")
	for i := 0; i < 3; i++ {
		require.NoError(t, index.Insert(row(i, "r"), entities.EmbeddingVector{float32(i + 1), 1}))
	}

	results, err := index.Query(entities.EmbeddingVector{1, 1}, 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = index.Query(entities.EmbeddingVector{1, 1}, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestInMemoryIndex_TiesBrokenByAscendingID(t *testing.T) {
	index := NewInMemoryIndex("m")
	// Insert out of ID order to make sure ordering is not insertion order.
	require.NoError(t, index.Insert(row(2, "error: disk full"), entities.EmbeddingVector{1, 1}))
	require.NoError(t, index.Insert(row(1, "info: startup"), entities.EmbeddingVector{1, -1}))
	require.NoError(t, index.Insert(row(0, "error: disk full"), entities.EmbeddingVector{1, 1}))

	for i := 0; i < 5; i++ {
		results, err := index.Query(entities.EmbeddingVector{2, 2}, 3)
		require.NoError(t, err)

		assert.Equal(t, 0, results[0].Row.ID)
		assert.Equal(t, 2, results[1].Row.ID)
		assert.Equal(t, 1, results[2].Row.ID)
		assert.Equal(t, results[0].Score, results[1].Score)
	}
}

func TestInMemoryIndex_ScoresNonIncreasing(t *testing.T) {
	index := NewInMemoryIndex("m")
	vectors := []entities.EmbeddingVector{{0.1, 0.9}, {0.7, 0.3}, {-1, 0}, {0.5, 0.5}, {0, 0}, {0.9, 0.1}}
	for i, v := range vectors {
		require.NoError(t, index.Insert(row(i, "r"), v))
	}

	results, err := index.Query(entities.EmbeddingVector{1, 0}, len(vectors))
	require.NoError(t, err)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, 5, results[0].Row.ID)
	assert.Equal(t, 2, results[len(results)-1].Row.ID)
}

func TestInMemoryIndex_ZeroVectorScoresZero(t *testing.T) {
	index := NewInMemoryIndex("m")
	require.NoError(t, index.Insert(row(0, "zero"), entities.EmbeddingVector{0, 0}))

	results, err := index.Query(entities.EmbeddingVector{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, results[0].Score)

	results, err = index.Query(entities.EmbeddingVector{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, results[0].Score)
}

func TestInMemoryIndex_StoresCopy(t *testing.T) {
	index := NewInMemoryIndex("m")
	v := entities.EmbeddingVector{1, 0}
	require.NoError(t, index.Insert(row(0, "a"), v))
	v[0] = 0

	stored, ok := index.Vector(0)
	require.True(t, ok)
	assert.Equal(t, entities.EmbeddingVector{1, 0}, stored)

	_, ok = index.Vector(9)
	assert.False(t, ok)
}

func TestInMemoryIndex_Rows(t *testing.T) {
	index := NewInMemoryIndex("m")
	require.NoError(t, index.Insert(row(0, "a"), entities.EmbeddingVector{1}))
	require.NoError(t, index.Insert(row(1, "b"), entities.EmbeddingVector{1}))

	rows := index.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[1].Text)
}

func TestFactory(t *testing.T) {
	index := Factory()("nomic-embed-text")
	assert.Equal(t, "nomic-embed-text", index.Model())
	assert.Equal(t, 0, index.Len())
}

func TestCosineSimilarity(t *testing.T) {
	a := entities.EmbeddingVector{0.3, -1.2, 4.5, 0.01}
	b := entities.EmbeddingVector{2, 0.5, -0.25, 7}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
	assert.Equal(t, 0.0, CosineSimilarity(entities.EmbeddingVector{1, 0, 0}, entities.EmbeddingVector{0, 1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(entities.EmbeddingVector{0, 0}, entities.EmbeddingVector{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity(entities.EmbeddingVector{1}, entities.EmbeddingVector{1, 1}))
}
