package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
)

func TestCSVLoader_LoadAllRows(t *testing.T) {
	input := "level,message\nerror,disk full\ninfo,startup\nerror,disk full\n"

	table, err := NewCSVLoader().Load(context.Background(), strings.NewReader(input), "app.csv", 0)
	require.NoError(t, err)

	assert.Equal(t, "app.csv", table.Name)
	assert.Equal(t, []string{"level", "message"}, table.Header)
	require.Len(t, table.Rows, 3)
	for i, row := range table.Rows {
		assert.Equal(t, i, row.ID)
		assert.Equal(t, i, row.SourceRowIndex)
	}
	assert.Equal(t, "level: error | message: disk full", table.Rows[0].Text)
	assert.Equal(t, table.Rows[0].Text, table.Rows[2].Text)
	assert.Empty(t, table.Warnings)
}

func TestCSVLoader_RowLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("n,msg\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&sb, "%d,line %d\n", i, i)
	}

	table, err := NewCSVLoader().Load(context.Background(), strings.NewReader(sb.String()), "five.csv", 2)
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "n: 0 | msg: line 0", table.Rows[0].Text)
	assert.Equal(t, "n: 1 | msg: line 1", table.Rows[1].Text)
}

func TestCSVLoader_SkipsMalformedRowsKeepsIDsContiguous(t *testing.T) {
	input := "a,b\n1,2\nonly-one\n3,4\n5,\"bad\"quote\n6,7\n"

	table, err := NewCSVLoader().Load(context.Background(), strings.NewReader(input), "bad.csv", 0)
	require.NoError(t, err)

	require.Len(t, table.Rows, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{table.Rows[0].ID, table.Rows[1].ID, table.Rows[2].ID})
	assert.Equal(t, 0, table.Rows[0].SourceRowIndex)
	assert.Equal(t, 2, table.Rows[1].SourceRowIndex)
	assert.Equal(t, "a: 6 | b: 7", table.Rows[2].Text)
	assert.Len(t, table.Warnings, 2)
	assert.Equal(t, 1, table.Warnings[0].SourceRowIndex)
}

func TestCSVLoader_RowLimitCountsValidRowsOnly(t *testing.T) {
	input := "a,b\nbroken\n1,2\n3,4\n5,6\n"

	table, err := NewCSVLoader().Load(context.Background(), strings.NewReader(input), "x.csv", 2)
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "a: 1 | b: 2", table.Rows[0].Text)
	assert.Equal(t, "a: 3 | b: 4", table.Rows[1].Text)
}

func TestCSVLoader_InvalidUTF8Skipped(t *testing.T) {
	input := "a,b\n1,\xff\xfe\n2,ok\n"

	table, err := NewCSVLoader().Load(context.Background(), strings.NewReader(input), "enc.csv", 0)
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	assert.Equal(t, "a: 2 | b: ok", table.Rows[0].Text)
	require.Len(t, table.Warnings, 1)
	assert.Equal(t, "invalid UTF-8", table.Warnings[0].Reason)
}

func TestCSVLoader_EmptyFileIsLoadError(t *testing.T) {
	_, err := NewCSVLoader().Load(context.Background(), strings.NewReader(""), "empty.csv", 0)
	assert.ErrorIs(t, err, errs.ErrLoad)
}

func TestCSVLoader_HeaderOnly(t *testing.T) {
	table, err := NewCSVLoader().Load(context.Background(), strings.NewReader("a,b\n"), "h.csv", 0)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestCSVLoader_HeaderNormalization(t *testing.T) {
	input := "\ufefftime, ,level\n12:00,x,warn\n"

	table, err := NewCSVLoader().Load(context.Background(), strings.NewReader(input), "bom.csv", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"time", "column_2", "level"}, table.Header)
}

func TestCSVLoader_PreviewCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("n\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}

	table, err := NewCSVLoader().Load(context.Background(), strings.NewReader(sb.String()), "p.csv", 0)
	require.NoError(t, err)

	assert.Len(t, table.Rows, 25)
	assert.Len(t, table.Preview, PreviewRows)
	assert.Equal(t, []string{"0"}, table.Preview[0])
}

func TestCSVLoader_Semicolon(t *testing.T) {
	table, err := NewCSVLoaderWithComma(';').Load(context.Background(), strings.NewReader("a;b\n1;2\n"), "s.csv", 0)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "a: 1 | b: 2", table.Rows[0].Text)
}

func TestCSVLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVLoader().Load(ctx, strings.NewReader("a\n1\n"), "c.csv", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs.csv")
	require.NoError(t, os.WriteFile(path, []byte("level,message\nwarn,slow query\n"), 0644))

	table, err := NewCSVLoader().LoadFile(context.Background(), path, 0)
	require.NoError(t, err)

	assert.Equal(t, "logs.csv", table.Name)
	assert.Len(t, table.Rows, 1)
}

func TestCSVLoader_NonexistentFile(t *testing.T) {
	_, err := NewCSVLoader().LoadFile(context.Background(), "/nonexistent/file.csv", 0)
	assert.ErrorIs(t, err, errs.ErrLoad)
}

func TestCSVLoader_SupportedExtensions(t *testing.T) {
	assert.Equal(t, []string{".csv"}, NewCSVLoader().SupportedExtensions())
}
