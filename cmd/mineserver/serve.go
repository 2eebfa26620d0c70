package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"minesweeper-server/internal/broadcast"
	"minesweeper-server/internal/config"
	"minesweeper-server/internal/dispatch"
	"minesweeper-server/internal/lifecycle"
	"minesweeper-server/internal/mines"
	"minesweeper-server/internal/oracle"
	"minesweeper-server/internal/server"
	"minesweeper-server/internal/session"
	"minesweeper-server/internal/storage/sqlite"
	"minesweeper-server/internal/support/logging"
	"minesweeper-server/internal/support/telemetry"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// shutdownGrace bounds how long the server waits for in-flight
// connections to drain after the listener stops accepting new ones.
const shutdownGrace = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var host string
	var port int
	var storePath string
	var seed string
	var assetsDir string
	var otlpEndpoint string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(&cfg, cmd, host, port, storePath, seed, otlpEndpoint)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := logging.Configure(cfg.Log.Level); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, assetsDir)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Override listen.host")
	cmd.Flags().IntVar(&port, "port", 0, "Override listen.port")
	cmd.Flags().StringVar(&storePath, "store", "", "Override store.path")
	cmd.Flags().StringVar(&seed, "seed", "", "Override map.seed")
	cmd.Flags().StringVar(&assetsDir, "assets", "", "Directory of static client assets to serve at /")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "Override telemetry.otlp_endpoint")
	return cmd
}

func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command, host string, port int, storePath, seed, otlpEndpoint string) {
	if cmd.Flags().Changed("host") {
		cfg.Listen.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Listen.Port = port
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Path = storePath
	}
	if cmd.Flags().Changed("seed") {
		cfg.Map.Seed = seed
	}
	if cmd.Flags().Changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint = otlpEndpoint
	}
}

func run(ctx context.Context, cfg config.Config, assetsDir string) error {
	ctx, stop := shutdownContext(ctx)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("ping store: %w", err)
	}

	oc := oracle.NewDefault(cfg.Map.Seed)
	engine := mines.New(oc, store, oc.Width(), oc.Height())
	registry := session.New(oc.Width(), oc.Height(), store)
	caster := broadcast.New(registry)
	dispatcher := dispatch.New(engine, registry, caster, oc.Width(), oc.Height())
	handlers := lifecycle.New(registry, store, caster.Send, oc.Width(), oc.Height())

	srv := server.New(handlers, dispatcher, registry, assetsDir)
	handler := otelhttp.NewHandler(srv.Handler(), "mineserver")

	addr := fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.Port)
	httpServer := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = closeAll(store, tel)
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var result *multierror.Error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutdown http server: %w", err))
	}
	// Shutdown does not close hijacked websocket connections; close every
	// registered session's transport before the store goes away.
	for _, h := range registry.AllHandles() {
		if c, ok := h.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
	if err := closeAll(store, tel); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func closeAll(store *sqlite.Store, tel *telemetry.Provider) error {
	var result *multierror.Error
	if err := tel.Shutdown(context.Background()); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutdown telemetry: %w", err))
	}
	if err := store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}
	return result.ErrorOrNil()
}
