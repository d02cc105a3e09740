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

	"go-openclaw-autoapply/internal/bootstrap"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/logger"
	"go-openclaw-autoapply/internal/notify"
	"go-openclaw-autoapply/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const drainTimeout = 2 * time.Minute

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config")
	metricsAddr := flag.String("metrics", ":9091", "address for the /metrics endpoint, empty to disable")
	flag.Parse()

	if err := run(*configPath, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required for a standalone worker")
	}
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("a standalone worker shares state with the API through postgres, got storage driver %q", cfg.Storage.Driver)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("🚀 Starting auto-apply worker", "concurrency", cfg.Worker.Concurrency, "queue", cfg.Redis.QueueKey)

	st, err := bootstrap.OpenStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := bootstrap.Redis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// events reach the API's websocket hub through the relay channel
	notifier := bootstrap.Telegram(cfg.Telegram, notify.Multi{notify.NewRedisPublisher(client, cfg.Redis.NotifyChannel, log)}, log)

	rt, err := bootstrap.NewRuntime(cfg, st, notifier, reg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	metrics := scheduler.NewMetrics(reg)
	pool := scheduler.NewLocalPool(rt.Worker, cfg.Worker.Concurrency, cfg.Worker.Concurrency, metrics, log)
	pool.Start(context.Background())

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("❌ Metrics endpoint failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	queue := scheduler.NewRedisQueue(client, cfg.Redis.QueueKey, log)
	if err := queue.Consume(ctx, pool); err != nil {
		log.Errorw("❌ Queue consumer stopped", "error", err)
	}

	log.Info("🛑 Draining worker pool")
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := pool.Stop(drainCtx); err != nil {
		log.Warnw("⚠️ Worker pool did not drain, cleanup sweep will recover stale attempts", "error", err)
	}
	log.Info("👋 Worker stopped")
	return nil
}
