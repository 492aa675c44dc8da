// Package entities contains core business entities.
// These are plain domain objects with no knowledge of storage, transport or models.
package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RowRecord is one data row of an uploaded CSV file.
// ID is the 0-based position among emitted rows; SourceRowIndex is the
// 0-based data row position in the file (header excluded).
type RowRecord struct {
	ID             int
	Text           string
	SourceRowIndex int
}

// EmbeddingVector is a fixed-length vector produced by an embedding model.
type EmbeddingVector []float32

// RowWarning records a row that was skipped during loading.
type RowWarning struct {
	SourceRowIndex int
	Reason         string
}

// Table is the result of loading a CSV file.
type Table struct {
	Name     string
	Header   []string
	Rows     []RowRecord
	Preview  [][]string // raw cells of the first emitted rows
	Warnings []RowWarning
}

// Texts returns the serialized text of every row, in ID order.
func (t *Table) Texts() []string {
	texts := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		texts[i] = r.Text
	}
	return texts
}

// ContentHash returns the hex sha256 of text, used as the embedding cache key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ScoredRow is a row with its similarity to a query.
type ScoredRow struct {
	Row   RowRecord
	Score float64
}

// RetrievalResult is sorted by descending score, ties by ascending row ID.
type RetrievalResult []ScoredRow

// ChatTurn is one question/answer exchange about the current file.
type ChatTurn struct {
	Question  string
	Retrieved RetrievalResult
	Answer    string
	AskedAt   time.Time
}

// Progress reports how many rows of an ingestion have been embedded.
type Progress struct {
	RowsDone  int
	RowsTotal int
}

// Fraction returns completion in [0, 1].
func (p Progress) Fraction() float64 {
	if p.RowsTotal <= 0 {
		return 0
	}
	return float64(p.RowsDone) / float64(p.RowsTotal)
}
