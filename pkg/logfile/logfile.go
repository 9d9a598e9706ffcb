// Package logfile implements the per-instance append-only log sink and its
// ranged-read retrieval, per spec.md §4.2.
package logfile

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/vllmd-project/launcher/pkg/api"
	"github.com/vllmd-project/launcher/pkg/logging"
)

// MaxResponseBytes is the default cap on a single ranged read, per
// spec.md §4.2, used when no maxBytes override is configured.
const MaxResponseBytes = 1 << 20 // 1 MiB

// LogFile owns one instance's append-only log at Path. It is safe for
// concurrent use: writes come from a single child process's stdout/stderr
// pipes, reads come from concurrent HTTP handlers.
type LogFile struct {
	Path     string
	maxBytes int64

	mu   sync.Mutex
	file *os.File // opened lazily, for append, on first Write
}

// New returns a LogFile for the given path. It does not touch the
// filesystem until the first Write. maxBytes caps a single ranged read
// (SPEC_FULL §1's flag/TOML-controlled log response cap); a value <= 0
// falls back to MaxResponseBytes.
func New(path string, maxBytes int64) *LogFile {
	if maxBytes <= 0 {
		maxBytes = MaxResponseBytes
	}
	return &LogFile{Path: path, maxBytes: maxBytes}
}

// Writer returns an io.Writer that appends non-empty writes to the log file
// and mirrors them to mirror (typically the launcher's own stdout), per
// spec.md §4.2. Whitespace-only writes are silently dropped so that the
// many empty newlines emitted by framework loggers do not pollute byte
// offsets.
func (f *LogFile) Writer(mirror io.Writer) io.Writer {
	return &filteredWriter{lf: f, mirror: mirror}
}

type filteredWriter struct {
	lf     *LogFile
	mirror io.Writer
}

func (w *filteredWriter) Write(p []byte) (int, error) {
	if strings.TrimSpace(string(p)) == "" {
		return len(p), nil
	}
	if err := w.lf.append(p); err != nil {
		return 0, err
	}
	if w.mirror != nil {
		_, _ = w.mirror.Write(p)
	}
	return len(p), nil
}

func (f *LogFile) append(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", f.Path, err)
		}
		f.file = file
	}
	_, err := f.file.Write(p)
	return err
}

// Close closes the underlying file handle used for writes, if one was ever
// opened.
func (f *LogFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// GetBytes returns the bytes in [start, end] (inclusive) and the file's
// total length, per spec.md §4.2's ranged-read contract. end of nil means
// "through EOF". The returned byte count is capped at f.maxBytes
// regardless of the requested window (P4).
func (f *LogFile) GetBytes(start int64, end *int64) ([]byte, int64, error) {
	info, err := os.Stat(f.Path)
	if os.IsNotExist(err) {
		if start == 0 {
			return []byte{}, 0, nil
		}
		return nil, 0, api.RangeNotSatisfiable(start, 0)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file %s: %w", f.Path, err)
	}

	total := info.Size()

	if start == 0 && total == 0 {
		return []byte{}, 0, nil
	}
	if start > total {
		return nil, 0, api.RangeNotSatisfiable(start, total)
	}

	readEnd := total - 1
	if end != nil && *end < readEnd {
		readEnd = *end
	}

	want := readEnd - start + 1
	if want < 0 {
		want = 0
	}
	if want > f.maxBytes {
		want = f.maxBytes
	}

	if want == 0 {
		return []byte{}, total, nil
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file %s: %w", f.Path, err)
	}
	defer file.Close()

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file %s: %w", f.Path, err)
	}

	buf := make([]byte, want)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, 0, fmt.Errorf("read log file %s: %w", f.Path, err)
	}
	return buf[:n], total, nil
}

// Remove deletes the log file. A missing file is not an error, per
// spec.md §4.2's cleanup contract; removal failures are logged but not
// fatal, per spec.md §4.4.
func (f *LogFile) Remove() {
	f.mu.Lock()
	if f.file != nil {
		_ = f.file.Close()
		f.file = nil
	}
	f.mu.Unlock()

	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		logging.S().Warnw("failed to remove log file", "path", f.Path, "err", err)
	}
}
