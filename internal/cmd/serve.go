package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/montage/internal/api"
	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over HTTP",
	Long: `Serve the run database over HTTP.

Endpoints:
  GET  /health               liveness
  GET  /runs                 stored runs, newest first
  GET  /runs/{id}            one run report
  GET  /runs/{id}/decisions  the decision ledger of a run
  POST /runs                 run a mission and store its report
  GET  /openapi.json         OpenAPI description

When a config file is in use it is watched: valid changes take effect for
the next POST /runs, invalid ones are logged and ignored.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	st, err := requireStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	p, err := pipeline.New(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}
	srv, err := api.New(st, api.WithRunner(p), api.WithLogger(logger.WithComponent("api")))
	if err != nil {
		return err
	}

	if viper.ConfigFileUsed() != "" {
		w, err := config.NewWatcher(viper.GetViper(), reloadRunner(srv, logger))
		if err != nil {
			logger.Warn("config hot reload disabled", "error", err.Error())
		} else {
			w.Start()
			defer w.Stop()
		}
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving runs on http://%s\n", ln.Addr())
	logger.Info("api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// reloadRunner rebuilds the pipeline from each valid config change.
func reloadRunner(srv *api.Server, logger *logging.Logger) func(*config.Config, error) {
	return func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload rejected", "error", err.Error())
			return
		}
		p, err := pipeline.New(cfg, pipeline.WithLogger(logger))
		if err != nil {
			logger.Warn("config reload rejected", "error", err.Error())
			return
		}
		srv.SetRunner(p)
		logger.Info("config reloaded")
	}
}
