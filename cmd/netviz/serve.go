package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/netviz/internal/seed"
	httpAdapter "github.com/aretw0/netviz/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	Long: `Starts the graph with its layout solver and exposes it over HTTP.
Clients may post triplets, nodes and groups, read Mermaid or SVG renderings, and
subscribe to /ws for structural changes and settled layouts.

With --seed the given HCL or JSON file is applied at start. Adding --watch
re-applies it whenever it changes on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = a.cfg.HTTP.Addr
		}
		seedPath, _ := cmd.Flags().GetString("seed")
		if seedPath == "" {
			seedPath = a.cfg.Seed
		}
		watch, _ := cmd.Flags().GetBool("watch")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if seedPath != "" {
			if _, err := a.applySeed(ctx, seedPath); err != nil {
				return err
			}
			if watch {
				go func() {
					err := seed.Watch(ctx, seedPath, seed.DefaultDebounce, a.logger, func() {
						if _, err := a.applySeed(ctx, seedPath); err != nil {
							a.logger.Warn("seed reload failed", "path", seedPath, "error", err)
						}
					})
					if err != nil && !errors.Is(err, context.Canceled) {
						a.logger.Error("seed watcher stopped", "error", err)
					}
				}()
			}
		}

		opts := []httpAdapter.Option{
			httpAdapter.WithFeed(a.feed),
			httpAdapter.WithGraphStore(a.saved),
			httpAdapter.WithMarkers(a.markers),
			httpAdapter.WithLogger(a.logger),
		}
		if a.cfg.Metrics.Enabled {
			opts = append(opts, httpAdapter.WithMetrics(a.metrics.Handler()))
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           httpAdapter.NewHandler(a.graph, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			a.logger.Info("starting netviz server", "addr", srv.Addr, "store", a.cfg.Store.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return err
		case sig := <-shutdown:
			a.logger.Info("shutting down", "signal", sig.String())
			cancel()

			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.logger.Warn("graceful shutdown did not complete", "error", err)
				_ = srv.Close()
			}
			if err := a.saveGraphFile(sctx); err != nil {
				a.logger.Error("saving graph file failed", "path", a.cfg.GraphFile, "error", err)
			}
			a.logger.Info("netviz server stopped")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (defaults to http.addr from the config)")
	serveCmd.Flags().String("seed", "", "HCL or JSON seed file to apply at start (defaults to seed from the config)")
	serveCmd.Flags().Bool("watch", false, "Re-apply the seed file when it changes")
}
