// Package loader provides the CSV row loader.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
)

// PreviewRows is how many emitted rows are kept verbatim for display.
const PreviewRows = 10

const (
	fieldSeparator = " | "
	keyValueSep    = ": "
)

// CSVLoader reads CSV files with a header row into row records.
type CSVLoader struct {
	comma rune
}

// NewCSVLoader creates a loader for comma-separated input.
func NewCSVLoader() *CSVLoader {
	return &CSVLoader{comma: ','}
}

// NewCSVLoaderWithComma creates a loader for another single-rune delimiter (e.g. ';' or '\t').
func NewCSVLoaderWithComma(comma rune) *CSVLoader {
	if comma == 0 {
		comma = ','
	}
	return &CSVLoader{comma: comma}
}

// LoadFile opens path and loads it.
func (l *CSVLoader) LoadFile(ctx context.Context, path string, rowLimit int) (*entities.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrLoad, err)
	}
	defer file.Close()

	return l.Load(ctx, file, filepath.Base(path), rowLimit)
}

// Load reads the header and up to rowLimit valid data rows (rowLimit <= 0 means all).
// Malformed rows are skipped and recorded in Table.Warnings.
func (l *CSVLoader) Load(ctx context.Context, r io.Reader, name string, rowLimit int) (*entities.Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = l.comma
	reader.FieldsPerRecord = -1 // column count is checked against the header below

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s has no header row", errs.ErrLoad, name)
		}
		return nil, fmt.Errorf("%w: reading header of %s: %v", errs.ErrLoad, name, err)
	}
	header = normalizeHeader(header)
	if !validCells(header) {
		return nil, fmt.Errorf("%w: header of %s is not valid UTF-8", errs.ErrLoad, name)
	}

	table := &entities.Table{
		Name:   name,
		Header: header,
	}

	for sourceIndex := 0; ; sourceIndex++ {
		if rowLimit > 0 && len(table.Rows) >= rowLimit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				table.Warnings = append(table.Warnings, skipRow(name, sourceIndex, parseErr.Err.Error()))
				continue
			}
			return nil, fmt.Errorf("%w: reading %s: %v", errs.ErrLoad, name, err)
		}

		if len(record) != len(header) {
			reason := fmt.Sprintf("expected %d columns, got %d", len(header), len(record))
			table.Warnings = append(table.Warnings, skipRow(name, sourceIndex, reason))
			continue
		}
		if !validCells(record) {
			table.Warnings = append(table.Warnings, skipRow(name, sourceIndex, "invalid UTF-8"))
			continue
		}

		table.Rows = append(table.Rows, entities.RowRecord{
			ID:             len(table.Rows),
			Text:           serializeRow(header, record),
			SourceRowIndex: sourceIndex,
		})
		if len(table.Preview) < PreviewRows {
			table.Preview = append(table.Preview, record)
		}
	}

	log.Info("csv loaded", "file", name, "rows", len(table.Rows), "skipped", len(table.Warnings))
	return table, nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *CSVLoader) SupportedExtensions() []string {
	return []string{".csv"}
}

// serializeRow renders "column: value" pairs so the model can attribute facts to columns.
func serializeRow(header, record []string) string {
	var sb strings.Builder
	for i, value := range record {
		if i > 0 {
			sb.WriteString(fieldSeparator)
		}
		sb.WriteString(header[i])
		sb.WriteString(keyValueSep)
		sb.WriteString(strings.TrimSpace(value))
	}
	return sb.String()
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = h
	}
	return out
}

func validCells(cells []string) bool {
	for _, c := range cells {
		if !utf8.ValidString(c) {
			return false
		}
	}
	return true
}

func skipRow(name string, sourceIndex int, reason string) entities.RowWarning {
	log.Warn("skipping malformed csv row", "file", name, "row", sourceIndex, "reason", reason)
	return entities.RowWarning{SourceRowIndex: sourceIndex, Reason: reason}
}
