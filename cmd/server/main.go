package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-openclaw-autoapply/internal/api"
	"go-openclaw-autoapply/internal/bootstrap"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/logger"
	"go-openclaw-autoapply/internal/notify"
	"go-openclaw-autoapply/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 30 * time.Second

// progressEvery is the minimum gap between progress events of one application
const progressEvery = time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("🚀 Starting auto-apply server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver, "queue", cfg.Scheduler.Queue)

	st, err := bootstrap.OpenStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := notify.NewHub(log, progressEvery)
	defer hub.Close()
	notifier := bootstrap.Telegram(cfg.Telegram, notify.Multi{hub}, log)

	schedMetrics := scheduler.NewMetrics(reg)

	var (
		dispatcher scheduler.Dispatcher
		pool       *scheduler.LocalPool
	)
	switch cfg.Scheduler.Queue {
	case "redis":
		client, err := bootstrap.Redis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		dispatcher = scheduler.NewRedisQueue(client, cfg.Redis.QueueKey, log)

		// workers run elsewhere and publish their events on the relay channel
		bootstrap.Relay(ctx, client, cfg.Redis.NotifyChannel, hub, log)
	default:
		rt, err := bootstrap.NewRuntime(cfg, st, notifier, reg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		pool = scheduler.NewLocalPool(rt.Worker, cfg.Worker.Concurrency, cfg.Worker.QueueSize, schedMetrics, log)
		// attempts outlive the signal and are drained on shutdown
		pool.Start(context.Background())
		dispatcher = pool
	}

	sched := scheduler.New(st, st, dispatcher, notifier, cfg.Retry, cfg.Scheduler, schedMetrics, log)
	sweeper := scheduler.NewSweeper(sched, cfg.Scheduler.CleanupInterval, cfg.Scheduler.RetryInterval, schedMetrics, log)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	ev, err := bootstrap.Evidence(cfg.Evidence, log)
	if err != nil {
		return err
	}
	router := api.NewRouter(api.NewHandler(sched, ev, hub, log), reg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("✅ Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("🛑 Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("⚠️ HTTP shutdown incomplete", "error", err)
	}
	sweeper.Stop(shutdownCtx)
	if pool != nil {
		if err := pool.Stop(shutdownCtx); err != nil {
			log.Warnw("⚠️ Worker pool did not drain", "error", err)
		}
	}
	log.Info("👋 Server stopped")
	return nil
}
