// Package daemon wires the REST surface from spec.md §6.1 onto a
// gorilla/mux router, grounded on the teacher's own pkg/daemon/daemon.go:
// a *Daemon wrapping an *http.Server and a net.Listener, a request-ID
// middleware, and a Serve/Shutdown lifecycle driven by the CLI layer.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pborman/uuid"

	"github.com/vllmd-project/launcher/pkg/config"
	"github.com/vllmd-project/launcher/pkg/gpu"
	"github.com/vllmd-project/launcher/pkg/logging"
	"github.com/vllmd-project/launcher/pkg/registry"
	"github.com/vllmd-project/launcher/pkg/rpc"
)

// Version is stamped at build time via -ldflags; left as a placeholder for
// local builds.
var Version = "dev"

// Daemon is the launcher's HTTP control plane: the REST surface in front
// of one InstanceRegistry.
type Daemon struct {
	server *http.Server
	l      net.Listener
	doneCh chan struct{}

	registry *registry.Registry
}

// New constructs a Daemon listening on cfg.ListenAddr. Every instance it
// supervises writes its log under cfg.LogDir.
func New(cfg config.Config) (srv *Daemon, err error) {
	if err := cfg.EnsureLogDir(); err != nil {
		return nil, err
	}

	srv = &Daemon{
		registry: registry.New(cfg.LogDir, gpu.New(), cfg.StopTimeout, cfg.MaxLogResponseBytes),
		doneCh:   make(chan struct{}),
	}

	r := mux.NewRouter()

	// Set a unique request ID.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := uuid.New()[:8]
			r.Header.Set("X-Request-ID", reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r)
		})
	})
	r.Use(srv.loggingMiddleware)

	r.HandleFunc("/health", srv.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/", srv.infoHandler).Methods(http.MethodGet)
	r.HandleFunc("/version", srv.versionHandler).Methods(http.MethodGet)

	r.HandleFunc("/v2/vllm/instances", srv.createInstanceHandler).Methods(http.MethodPost)
	r.HandleFunc("/v2/vllm/instances/{id}", srv.putInstanceHandler).Methods(http.MethodPut)
	r.HandleFunc("/v2/vllm/instances/{id}", srv.deleteInstanceHandler).Methods(http.MethodDelete)
	r.HandleFunc("/v2/vllm/instances", srv.deleteAllInstancesHandler).Methods(http.MethodDelete)
	r.HandleFunc("/v2/vllm/instances", srv.listInstancesHandler).Methods(http.MethodGet)
	r.HandleFunc("/v2/vllm/instances/{id}", srv.getInstanceHandler).Methods(http.MethodGet)
	r.HandleFunc("/v2/vllm/instances/{id}/log", srv.getInstanceLogHandler).Methods(http.MethodGet)

	srv.server = &http.Server{
		Handler:      r,
		WriteTimeout: 1200 * time.Second,
		ReadTimeout:  1200 * time.Second,
	}

	srv.l, err = net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	return srv, nil
}

// statusCapturingWriter records the status code written so the logging
// middleware can report it after the handler returns.
type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (d *Daemon) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		rpc.RequestLogger(r).Infow("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}

// Serve starts the server and blocks until the server is closed, either
// explicitly via Shutdown, or due to a fault condition. It propagates the
// non-nil err return value from http.Serve.
func (d *Daemon) Serve() error {
	select {
	case <-d.doneCh:
		return fmt.Errorf("tried to reuse a stopped server")
	default:
	}

	logging.S().Infow("daemon listening", "addr", d.Addr())
	return d.server.Serve(d.l)
}

func (d *Daemon) Addr() string {
	return d.l.Addr().String()
}

func (d *Daemon) Port() int {
	return d.l.Addr().(*net.TCPAddr).Port
}

func (d *Daemon) Shutdown(ctx context.Context) error {
	defer close(d.doneCh)
	return d.server.Shutdown(ctx)
}

// Registry exposes the daemon's instance registry so the CLI layer can
// sweep-stop every running instance before the process exits.
func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}
