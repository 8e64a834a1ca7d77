package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/luoyjx/minikv/admin"
	"github.com/luoyjx/minikv/config"
	"github.com/luoyjx/minikv/logger"
	"github.com/luoyjx/minikv/network"
	"github.com/luoyjx/minikv/persistence"
	"github.com/luoyjx/minikv/server"
	"github.com/luoyjx/minikv/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// app wires every component of one server process.
type app struct {
	cfg        *config.Config
	configPath string
	logger     zerolog.Logger

	store       *storage.Store
	sweeper     *storage.Sweeper
	snapshotter *persistence.Snapshotter // nil when persistence is disabled
	server      *server.Server
	listener    *network.RedisServer
	admin       *admin.Admin // nil when the admin port is 0
	registry    *prometheus.Registry
}

func newApp(cfg *config.Config, configPath string, log zerolog.Logger) (*app, error) {
	a := &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     log,
		registry:   prometheus.NewRegistry(),
	}

	var err error
	if a.store, err = storage.New(); err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	a.sweeper, err = storage.NewSweeper(a.store,
		logger.Scoped(log, "sweeper"),
		storage.WithSweepInterval(cfg.SweepInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sweeper: %w", err)
	}

	var srvOpts []server.Option
	if cfg.PersistenceEnabled() {
		backend, err := persistence.NewBackend(cfg.SnapshotFormat, cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("creating snapshot backend: %w", err)
		}
		a.snapshotter, err = persistence.New(backend,
			logger.Scoped(log, "persistence"),
			persistence.WithInterval(cfg.SnapshotInterval),
		)
		if err != nil {
			return nil, fmt.Errorf("creating snapshotter: %w", err)
		}
		srvOpts = append(srvOpts, server.WithSaver(a.snapshotter))
	}

	if a.server, err = server.New(a.store, logger.Scoped(log, "dispatcher"), srvOpts...); err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	a.logger = a.logger.With().Str("server_id", a.server.ID()).Logger()

	a.listener, err = network.NewRedisServer(a.server,
		logger.Scoped(log, "listener"),
		network.WithMaxConnections(cfg.MaxConnections),
	)
	if err != nil {
		return nil, fmt.Errorf("creating listener: %w", err)
	}

	if addr := cfg.GetHTTPAddress(); addr != "" {
		a.admin = admin.New(addr, a.server, a.registry, logger.Scoped(log, "admin"))
	}

	if err := a.registerMetrics(); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	return a, nil
}

func (a *app) registerMetrics() error {
	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	cs = append(cs, a.store.Metrics()...)
	cs = append(cs, a.sweeper.Metrics()...)
	cs = append(cs, a.server.Metrics()...)
	cs = append(cs, a.listener.Metrics()...)
	if a.snapshotter != nil {
		cs = append(cs, a.snapshotter.Metrics()...)
	}
	if a.admin != nil {
		cs = append(cs, a.admin.Metrics()...)
	}

	for _, c := range cs {
		if err := a.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// run restores the last snapshot, serves clients until ctx is done and writes
// a final snapshot once the listener is closed. The bound client address is
// sent to started when it is not nil.
func (a *app) run(ctx context.Context, started chan<- net.Addr) (resErr error) {
	ctx, cancel := context.WithCancel(ctx)

	// the saver outlives the listener so the final snapshot sees every write
	saveCtx, stopSaver := context.WithCancel(context.Background())

	if a.snapshotter != nil {
		if a.snapshotter.LoadInto(a.store) {
			a.logger.Info().
				Str("path", a.snapshotter.Path()).
				Int("keys", a.store.Len()).
				Msg("restored snapshot")
		}
	}

	// every return path stops the workers before waiting for them
	var wg sync.WaitGroup
	defer func() {
		stopSaver()
		cancel()
		wg.Wait()
	}()

	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(ctx)
	}()

	if a.snapshotter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.snapshotter.Run(saveCtx, a.store)
		}()
	}

	if a.admin != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.admin.Start(ctx); err != nil {
				errCh <- fmt.Errorf("running admin: %w", err)
			}
		}()
	}

	if a.configPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, a.configPath, logger.Scoped(a.logger, "config"), a.applyConfig)
			if err != nil {
				a.logger.Warn().Err(err).Msg("config watch disabled")
			}
		}()
	}

	listening := make(chan error, 1)
	go func() {
		if err := a.listener.ListenAndServe(a.cfg.GetAddress(), listening); err != nil {
			errCh <- fmt.Errorf("running listener: %w", err)
		}
	}()

	if err := <-listening; err != nil {
		return <-errCh
	}
	if started != nil {
		addr, _ := a.listener.Addr()
		started <- addr
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		resErr = err
	}

	if err := a.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		resErr = errors.Join(resErr, fmt.Errorf("closing listener: %w", err))
	}
	return resErr
}

// applyConfig applies the settings that can change without a restart.
func (a *app) applyConfig(cfg *config.Config) {
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		a.logger.Error().Err(err).Msg("applying log level")
		return
	}
	a.logger.Info().Str("log_level", cfg.LogLevel).Msg("applied config change")
}
