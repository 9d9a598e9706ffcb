// Package rpc adapts the teacher's OutputWriter (pkg/rpc/writer.go) to this
// launcher's domain: a request-scoped logger tied to one HTTP response,
// plus a flushing writer for the one response body that can be large
// enough to benefit from it, the ranged log read.
package rpc

import (
	"io"
	"net/http"

	"github.com/docker/docker/pkg/ioutils"
	"go.uber.org/zap"

	"github.com/vllmd-project/launcher/pkg/logging"
)

// RequestLogger is a *zap.SugaredLogger scoped to one HTTP request, tagged
// with its request id.
func RequestLogger(r *http.Request) *zap.SugaredLogger {
	return logging.S().With("req_id", r.Header.Get("X-Request-ID"))
}

// LogBodyWriter wraps an http.ResponseWriter with docker/docker's
// WriteFlusher so a ranged log response is flushed to the client as it is
// written rather than buffered entirely by the runtime, the same pattern
// the teacher's NewOutputWriter uses for long-running command output.
type LogBodyWriter struct {
	out io.Writer
}

var _ io.Writer = (*LogBodyWriter)(nil)

// NewLogBodyWriter wraps w for a single log response.
func NewLogBodyWriter(w http.ResponseWriter) *LogBodyWriter {
	return &LogBodyWriter{out: ioutils.NewWriteFlusher(w)}
}

func (lw *LogBodyWriter) Write(p []byte) (int, error) {
	return lw.out.Write(p)
}

// Flush forces any buffered bytes to the client immediately.
func (lw *LogBodyWriter) Flush() {
	if f, ok := lw.out.(http.Flusher); ok {
		f.Flush()
	}
}
