package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/netviz"
	"github.com/aretw0/netviz/internal/config"
	"github.com/aretw0/netviz/internal/logging"
	"github.com/aretw0/netviz/internal/presentation/graph"
	"github.com/aretw0/netviz/internal/seed"
	httpAdapter "github.com/aretw0/netviz/pkg/adapters/http"
	"github.com/aretw0/netviz/pkg/adapters/badger"
	"github.com/aretw0/netviz/pkg/adapters/file"
	"github.com/aretw0/netviz/pkg/adapters/memory"
	"github.com/aretw0/netviz/pkg/adapters/redis"
	"github.com/aretw0/netviz/pkg/adapters/sqlite"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/observability"
	"github.com/aretw0/netviz/pkg/persistence/middleware"
	"github.com/aretw0/netviz/pkg/ports"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

// app is everything a command needs: the graph plus the adapters around it.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	graph   *netviz.Graph
	metrics *observability.Metrics
	feed    *httpAdapter.Feed
	markers *graph.MarkerSet
	saved   ports.GraphStore
	closers []func() error
}

// newApp loads the configuration named by --config and builds the graph.
// Commands that only read or export pass withLayout=false.
func newApp(cmd *cobra.Command, withLayout bool) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logging.New(level),
		metrics: observability.NewMetrics(nil),
		markers: graph.NewMarkerSet(),
		saved:   memory.NewGraphStore(),
	}
	if cfg.GraphDir != "" {
		a.saved = file.New(cfg.GraphDir)
	}
	a.feed = httpAdapter.NewFeed(a.logger)

	store, locker, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if store, err = a.wrapStore(store); err != nil {
		a.Close()
		return nil, err
	}

	hooks := observability.LogHooks(a.logger).Merge(a.feed.Hooks())
	if cfg.Metrics.Enabled {
		hooks = hooks.Merge(a.metrics.Hooks())
	}

	opts := []netviz.Option{
		netviz.WithStore(store),
		netviz.WithLogger(a.logger),
		netviz.WithTracer(otel.Tracer("github.com/aretw0/netviz")),
		netviz.WithLifecycleHooks(hooks),
		netviz.WithLayoutOptions(cfg.Layout.Options),
		netviz.WithEdgeColors(cfg.EdgeColors, cfg.DefaultEdgeColor),
		netviz.WithAssetFactory(a.markers),
	}
	if locker != nil {
		opts = append(opts, netviz.WithLocker(locker), netviz.WithLockTTL(cfg.Lock.TTL))
	}
	if withLayout {
		opts = append(opts,
			netviz.WithSolverTiming(cfg.Layout.TickInterval, cfg.Layout.MaxTicks),
			netviz.WithSolverThreshold(cfg.Layout.Threshold),
		)
	} else {
		opts = append(opts, netviz.WithoutLayout())
	}

	g, err := netviz.New(opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.graph = g

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Store.Backend != config.BackendMemory {
		if err := g.Resync(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("loading %s store: %w", cfg.Store.Backend, err)
		}
	}
	if cfg.GraphFile != "" {
		if err := a.loadGraphFile(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore() (ports.TripletStore, ports.DistributedLocker, error) {
	cfg := a.cfg.Store
	switch cfg.Backend {
	case config.BackendBadger:
		bcfg := badger.Config{Path: cfg.Path, Logger: a.logger}
		if cfg.Path == "" {
			bcfg = badger.InMemoryConfig()
			bcfg.Logger = a.logger
		}
		s, err := badger.Open(bcfg)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil, nil
	case config.BackendSQLite:
		newStore := sqlite.New
		if cfg.DSN != "" {
			newStore = func() (*sqlite.Store, error) { return sqlite.NewWithDSN(cfg.DSN) }
		}
		s, err := newStore()
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil, nil
	case config.BackendRedis:
		s := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithPrefix(cfg.Redis.Prefix))
		a.closers = append(a.closers, s.Close)
		var locker ports.DistributedLocker
		if a.cfg.Lock.Distributed {
			locker = redis.NewLocker(s.Client(), cfg.Redis.Prefix)
		}
		return s, locker, nil
	default:
		return memory.NewStore(), nil, nil
	}
}

// wrapStore layers redaction and encryption over the backend. Redaction runs
// first so masked values are what gets sealed.
func (a *app) wrapStore(store ports.TripletStore) (ports.TripletStore, error) {
	var mws []middleware.Middleware
	if len(a.cfg.Store.Redact) > 0 {
		mw, err := middleware.NewPIIMiddleware(a.cfg.Store.Redact)
		if err != nil {
			return nil, fmt.Errorf("store.redact: %w", err)
		}
		mws = append(mws, mw)
	}
	active, fallback, err := a.cfg.Store.Encryption.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return middleware.Chain(store, mws...), nil
}

// applySeed loads an HCL or JSON seed file and replays it into the graph.
func (a *app) applySeed(ctx context.Context, path string) (seed.Report, error) {
	s, err := seed.Load(path)
	if err != nil {
		return seed.Report{}, err
	}
	report, err := s.Apply(ctx, a.graph)
	if err != nil {
		return report, fmt.Errorf("applying %s: %w", path, err)
	}
	a.logger.Info("seed applied", "path", path, "nodes", report.Nodes, "facts", report.Facts,
		"skipped", report.Skipped, "merges", report.Merges)
	return report, nil
}

// loadGraphFile restores the configured graph file when it exists.
func (a *app) loadGraphFile(ctx context.Context) error {
	data, err := os.ReadFile(a.cfg.GraphFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var saved domain.SavedGraph
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("decoding %s: %w", a.cfg.GraphFile, err)
	}
	if err := a.graph.RestoreGraph(ctx, &saved); err != nil {
		return err
	}
	a.logger.Info("graph file restored", "path", a.cfg.GraphFile, "triplets", len(saved.Triplets))
	return nil
}

// saveGraphFile writes the current graph to the configured graph file.
func (a *app) saveGraphFile(ctx context.Context) error {
	if a.cfg.GraphFile == "" {
		return nil
	}
	saved, err := a.graph.SaveGraph(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(a.cfg.GraphFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(a.cfg.GraphFile, data, 0o644)
}

// Close stops the graph and releases the store.
func (a *app) Close() error {
	var errs []error
	if a.graph != nil {
		errs = append(errs, a.graph.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
