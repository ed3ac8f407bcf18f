package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"statuspage/internal/collector"
	"statuspage/internal/config"
	"statuspage/internal/db"
	"statuspage/internal/docker"
	"statuspage/internal/kv"
	"statuspage/internal/probe"
	"statuspage/internal/queue"
	"statuspage/internal/status"
	"statuspage/internal/store"
	"statuspage/internal/web"
)

type App struct {
	cfg  config.Config
	log  *slog.Logger
	opts *config.Holder

	store     store.Backend
	collector *collector.Service
	status    *status.Service
	publisher *queue.Publisher
	web       *web.Server

	httpSrv *http.Server
}

// OpenStore connects the backend selected by cfg.Store.
func OpenStore(cfg config.Config) (store.Backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQLite:
		sqldb, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(sqldb); err != nil {
			_ = sqldb.Close()
			return nil, err
		}
		return db.NewRepository(sqldb), nil
	case config.StorePostgres:
		repo, err := db.OpenGorm("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreValkey:
		repo, err := kv.New(cfg.ValkeyAddr, cfg.ValkeyPrefix)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	backend, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	probes, err := buildProbes(ctx, cfg, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	logger.Info("probes configured", "count", len(probes), "store", cfg.Store)

	opts := config.NewHolder(cfg.Status)
	a := &App{
		cfg:       cfg,
		log:       logger,
		opts:      opts,
		store:     backend,
		collector: collector.NewService(probe.NewSet(probes...), backend, opts, logger.With("module", "collector")),
		status:    status.NewService(backend, opts),
	}
	if cfg.AMQPURL != "" {
		a.publisher = queue.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue, logger.With("module", "queue"))
		a.collector.WithSink(a.publisher)
	}
	a.web = web.NewServer(a.status, backend, opts, cfg.BasePath, logger.With("module", "web"))
	a.httpSrv = &http.Server{Addr: cfg.Addr, Handler: a.web.Routes(), ReadHeaderTimeout: 10 * time.Second}
	return a, nil
}

// buildProbes combines the probes file with discovered containers. A
// configured probe wins over a discovered one of the same name.
func buildProbes(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]probe.Probe, error) {
	var dc *docker.Client
	needDocker := cfg.DockerDiscover
	for _, p := range cfg.Probes {
		if p.Type == "docker" {
			needDocker = true
		}
	}
	if needDocker {
		dc = docker.NewClient(cfg.DockerSocket)
	}
	probes, err := probe.Build(cfg.Probes, dc)
	if err != nil {
		return nil, err
	}
	if !cfg.DockerDiscover {
		return probes, nil
	}
	found, err := probe.Discover(ctx, dc)
	if err != nil {
		// not fatal: the page still serves configured probes
		logger.Warn("docker discovery failed", "err", err)
		return probes, nil
	}
	seen := make(map[string]bool, len(probes))
	for _, p := range probes {
		seen[p.Name()] = true
	}
	for _, p := range found {
		if seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		probes = append(probes, p)
	}
	return probes, nil
}

// Run serves HTTP and collects until ctx is canceled. SIGHUP reloads the
// status page options from the env file.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr, err)
	}
	a.log.Info("http server listening", "addr", ln.Addr().String(), "base", a.cfg.BasePath)

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	var wg sync.WaitGroup
	serveErr := make(chan error, 1)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	go func() {
		defer wg.Done()
		a.collector.Run(ctx)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-serveErr:
			runErr = fmt.Errorf("http server: %w", err)
			break loop
		case <-hup:
			a.Reload()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	stop()
	wg.Wait()
	return errors.Join(runErr, a.Close())
}

// Reload re-reads the env file and swaps in the new options. Invalid
// options are logged and the previous ones stay active.
func (a *App) Reload() {
	sp, err := config.ReloadStatusPage(a.cfg.EnvFile)
	if err != nil {
		a.log.Error("reload options failed", "err", err)
		return
	}
	a.opts.Store(sp)
	a.log.Info("options reloaded", "title", sp.Title, "poll_interval", sp.PollInterval.String(), "retention_days", sp.RetentionDays)
}

func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
