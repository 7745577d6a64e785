package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/comment-tree/internal/config"
	"github.com/pribylovaa/comment-tree/internal/export"
	"github.com/pribylovaa/comment-tree/internal/metrics"
	"github.com/pribylovaa/comment-tree/internal/notify"
	"github.com/pribylovaa/comment-tree/internal/pkg/log"
	"github.com/pribylovaa/comment-tree/internal/policy"
	"github.com/pribylovaa/comment-tree/internal/service"
	csredis "github.com/pribylovaa/comment-tree/internal/storage/redis"
	cthttp "github.com/pribylovaa/comment-tree/internal/transport/http"
	"github.com/pribylovaa/comment-tree/internal/tree"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	lg := setupLogger(cfg.Env)
	slog.SetDefault(lg)
	lg.Info("starting comment-tree", "env", cfg.Env, "storage", cfg.Storage.Driver, "broker", cfg.Export.Broker)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	initCtx, initCancel := context.WithTimeout(rootCtx, 15*time.Second)
	defer initCancel()

	fail := func(msg string, err error) {
		lg.Error(msg, slog.String("err", err.Error()))
		os.Exit(1)
	}

	store, err := openCommentStore(initCtx, *cfg)
	if err != nil {
		fail("storage_init_failed", err)
	}
	defer store.storage.Close()
	lg.Info("storage_initialized", slog.String("driver", cfg.Storage.Driver))

	var rdb *goredis.Client
	if cfg.Redis.URL != "" {
		rdb, err = csredis.Connect(initCtx, cfg.Redis.URL)
		if err != nil {
			fail("redis_connect_failed", err)
		}
		defer func() { _ = rdb.Close() }()
		lg.Info("redis_connected")
	}

	artifacts, err := openArtifacts(initCtx, *cfg)
	if err != nil {
		fail("artifacts_init_failed", err)
	}

	q, err := openQueue(initCtx, *cfg)
	if err != nil {
		fail("queue_init_failed", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	engine, err := export.New(q, store.storage, openJobs(rdb, *cfg), artifacts, m, export.Options{
		Topic:   cfg.Export.Topic,
		Workers: cfg.Export.Workers,
		TTL:     cfg.Export.TTL,
	})
	if err != nil {
		fail("export_init_failed", err)
	}

	conflict, err := tree.ParseConflictPolicy(cfg.Tree.RootConflict)
	if err != nil {
		fail("tree_policy_invalid", err)
	}

	notifier := notify.NewAsync(openNotifier(rdb, *cfg), cfg.Timeouts.Notify, m)

	svc := service.New(service.Deps{
		Storage:      store.storage,
		Roots:        store.roots,
		Identity:     store.identity,
		Materializer: tree.New(conflict),
		Policy:       policy.Default(),
		Notifier:     notifier,
		Exporter:     engine,
		Metrics:      m,
		PageSize:     cfg.Limits.PageSize,
	})
	lg.Info("service_initialized")

	// Воркеры экспорта и очистка старых файлов.
	workersCtx, workersCancel := context.WithCancel(log.Into(context.Background(), lg))
	var workers sync.WaitGroup

	workers.Add(2)
	go func() {
		defer workers.Done()
		if err := engine.Run(workersCtx); err != nil {
			lg.Error("export_workers_failed", slog.String("err", err.Error()))
		}
	}()
	go func() {
		defer workers.Done()
		engine.RunSweeper(workersCtx, cfg.Export.SweepInterval)
	}()

	apiHandler := cthttp.NewRouter(svc, cthttp.Options{
		Logger:  lg,
		Timeout: cfg.Timeouts.Request,
	})

	var ready atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/healthz", healthz(&ready, 2*time.Second, healthDeps(store, rdb)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		fail("http_listen_failed", err)
	}
	lg.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	ready.Store(true)
	lg.Info("comment_tree_ready")

	select {
	case <-rootCtx.Done():
		lg.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			lg.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		lg.Info("http_stopped")
	}

	// Начатые задачи экспорта доводятся до конца, новые не берутся.
	workersCancel()
	workers.Wait()

	if err := engine.Close(); err != nil {
		lg.Warn("export_close_failed", slog.String("err", err.Error()))
	}

	notifier.Wait()

	lg.Info("service_stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
