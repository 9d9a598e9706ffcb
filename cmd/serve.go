package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/vllmd-project/launcher/pkg/config"
	"github.com/vllmd-project/launcher/pkg/daemon"
	"github.com/vllmd-project/launcher/pkg/logging"
)

// ServeCommand is the specification of the `serve` command: start the
// long-running launcher daemon.
var ServeCommand = cli.Command{
	Name:  "serve",
	Usage: "start the vllmd launcher daemon",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
		cli.StringFlag{Name: "listen", Usage: "address to listen on, e.g. 127.0.0.1:8000"},
		cli.StringFlag{Name: "log-dir", Usage: "directory instance log files are written to"},
		cli.DurationFlag{Name: "stop-timeout", Usage: "graceful stop window before escalating to SIGKILL"},
		cli.Int64Flag{Name: "max-log-response-bytes", Usage: "cap on a single ranged log read"},
	},
	Action: serveCommand,
}

func serveCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if v := c.String("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v := c.String("log-dir"); v != "" {
		cfg.LogDir = v
	}
	if v := c.Duration("stop-timeout"); v != 0 {
		cfg.StopTimeout = v
	}
	if v := c.Int64("max-log-response-bytes"); v != 0 {
		cfg.MaxLogResponseBytes = v
	}

	srv, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exiting := make(chan struct{})
	defer close(exiting)

	shutdownDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-exiting:
			// no need to shut down in this case.
			return
		}
		defer close(shutdownDone)

		logging.S().Infow("shutting down vllmd")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.S().Warnw("failed to shut down http server cleanly", "err", err)
		}

		stopped := srv.Registry().StopAllInstances()
		logging.S().Infow("stopped all instances on shutdown", "total_stopped", stopped.TotalStopped)
	}()

	logging.S().Infow("listen and serve", "addr", srv.Addr())
	err = srv.Serve()
	if err == http.ErrServerClosed {
		// Serve returns as soon as Shutdown begins; wait for the stop-all
		// sweep before letting the process exit.
		<-shutdownDone
		err = nil
	}
	return err
}
