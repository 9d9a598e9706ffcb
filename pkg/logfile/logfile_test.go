package logfile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllmd-project/launcher/pkg/api"
)

func writeAll(t *testing.T, lf *LogFile, chunks ...string) {
	t.Helper()
	w := lf.Writer(nil)
	for _, c := range chunks {
		_, err := w.Write([]byte(c))
		require.NoError(t, err)
	}
}

func i64(v int64) *int64 { return &v }

func TestGetBytesEmptyMissingFile(t *testing.T) {
	lf := New(filepath.Join(t.TempDir(), "missing.log"), 0)
	b, total, err := lf.GetBytes(0, nil)
	require.NoError(t, err)
	require.Empty(t, b)
	require.Equal(t, int64(0), total)
}

func TestGetBytesPastEOFMissingFile(t *testing.T) {
	lf := New(filepath.Join(t.TempDir(), "missing.log"), 0)
	_, _, err := lf.GetBytes(5, nil)
	require.Error(t, err)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindRangeNotSatisfiable, apiErr.Kind)
}

func TestGetBytesExactWindow(t *testing.T) {
	lf := New(filepath.Join(t.TempDir(), "x.log"), 0)
	writeAll(t, lf, strings.Repeat("A", 20), strings.Repeat("B", 20), strings.Repeat("C", 20))

	b, total, err := lf.GetBytes(10, i64(39))
	require.NoError(t, err)
	require.Equal(t, int64(60), total)
	want := strings.Repeat("A", 10) + strings.Repeat("B", 20)
	require.Equal(t, want, string(b))
}

func TestGetBytesOpenEnded(t *testing.T) {
	lf := New(filepath.Join(t.TempDir(), "x.log"), 0)
	writeAll(t, lf, strings.Repeat("A", 20), strings.Repeat("B", 20), strings.Repeat("C", 20))

	b, total, err := lf.GetBytes(50, nil)
	require.NoError(t, err)
	require.Equal(t, int64(60), total)
	require.Equal(t, strings.Repeat("C", 10), string(b))
}

func TestGetBytesEndPastEOFTruncates(t *testing.T) {
	lf := New(filepath.Join(t.TempDir(), "x.log"), 0)
	writeAll(t, lf, strings.Repeat("A", 20))

	b, total, err := lf.GetBytes(10, i64(1000))
	require.NoError(t, err)
	require.Equal(t, int64(20), total)
	require.Equal(t, strings.Repeat("A", 10), string(b))
}

func TestGetBytesStartPastEOF(t *testing.T) {
	lf := New(filepath.Join(t.TempDir(), "x.log"), 0)
	writeAll(t, lf, strings.Repeat("A", 20))

	_, _, err := lf.GetBytes(100, nil)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindRangeNotSatisfiable, apiErr.Kind)
	require.Equal(t, int64(20), apiErr.RangeTotal)
}

func TestGetBytesCapsAtMaxResponse(t *testing.T) {
	dir := t.TempDir()
	lf := New(filepath.Join(dir, "x.log"), 0)
	big := bytes.Repeat([]byte("x"), MaxResponseBytes+100)
	w := lf.Writer(nil)
	_, err := w.Write(big)
	require.NoError(t, err)

	b, total, err := lf.GetBytes(0, nil)
	require.NoError(t, err)
	require.Equal(t, int64(len(big)), total)
	require.Len(t, b, MaxResponseBytes)
}

func TestWriterDropsWhitespaceOnly(t *testing.T) {
	lf := New(filepath.Join(t.TempDir(), "x.log"), 0)
	w := lf.Writer(nil)
	_, err := w.Write([]byte("\n\n  \t\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)

	b, _, err := lf.GetBytes(0, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
}

func TestRemoveMissingFileIsNotAnError(t *testing.T) {
	lf := New(filepath.Join(t.TempDir(), "missing.log"), 0)
	lf.Remove() // must not panic
}
