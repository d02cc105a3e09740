// Package bootstrap builds the shared components each binary wires together.
package bootstrap

import (
	"context"
	"fmt"

	"go-openclaw-autoapply/internal/ai"
	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/evidence"
	"go-openclaw-autoapply/internal/notify"
	"go-openclaw-autoapply/internal/pdf"
	"go-openclaw-autoapply/internal/resume"
	"go-openclaw-autoapply/internal/store"
	"go-openclaw-autoapply/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OpenStore connects the configured storage driver
func OpenStore(ctx context.Context, cfg config.StorageConfig, log *zap.SugaredLogger) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("🐘 Connected to Postgres")
		return pg, nil
	default:
		b, err := store.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		log.Infow("🦡 Opened badger store", "path", cfg.BadgerPath)
		return b, nil
	}
}

// Redis returns a client for cfg after checking the server answers
func Redis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Telegram adds the Telegram sink to sinks when a bot is configured
func Telegram(cfg config.TelegramConfig, sinks notify.Multi, log *zap.SugaredLogger) notify.Multi {
	if cfg.Token == "" {
		return sinks
	}
	tg, err := notify.NewTelegram(cfg.Token, cfg.ChatID, log)
	if err != nil {
		log.Warnw("⚠️ Telegram disabled", "error", err)
		return sinks
	}
	log.Info("🤖 Telegram notifications enabled")
	return append(sinks, tg)
}

// Relay feeds events that standalone workers publish on channel into the local hub
// until ctx is done. Workers post to Telegram themselves, so the hub is the only target.
func Relay(ctx context.Context, client *redis.Client, channel string, hub *notify.Hub, log *zap.SugaredLogger) {
	sub := notify.NewRedisSubscriber(client, channel, log)
	go func() {
		if err := sub.Run(ctx, hub); err != nil {
			log.Errorw("❌ Notification relay stopped", "error", err)
		}
	}()
}

// Evidence opens the screenshot and automation log store
func Evidence(cfg config.EvidenceConfig, log *zap.SugaredLogger) (*evidence.Store, error) {
	return evidence.New(cfg.Dir, cfg.MaxScreenshots, log)
}

// Runtime is a ready worker and what must be closed after it
type Runtime struct {
	Worker *worker.Worker
	driver *browser.PlaywrightDriver
}

func (r *Runtime) Close() error {
	if r.driver == nil {
		return nil
	}
	return r.driver.Close()
}

// NewRuntime starts the browser and assembles the worker around st
func NewRuntime(cfg *config.Config, st store.Store, notifier notify.Notifier, reg prometheus.Registerer, log *zap.SugaredLogger) (*Runtime, error) {
	driver, err := browser.NewPlaywright(cfg.Browser, log)
	if err != nil {
		return nil, err
	}

	ev, err := Evidence(cfg.Evidence, log)
	if err != nil {
		driver.Close()
		return nil, err
	}

	var (
		tailor   ai.Client
		renderer resume.Renderer
	)
	if cfg.Resume.Tailor {
		gen, err := pdf.NewGenerator(driver.Browser(), cfg.Resume.TemplatePath)
		if err != nil {
			driver.Close()
			return nil, err
		}
		tailor = ai.NewGroqClient(cfg.Resume.GroqAPIKey, cfg.Resume.Model)
		renderer = gen
		log.Infow("🧠 Resume tailoring enabled", "model", cfg.Resume.Model)
	}

	w := worker.New(worker.Deps{
		Applications: st,
		Jobs:         st,
		Profiles:     st,
		Resumes:      resume.NewProvider(tailor, renderer, cfg.Resume.OutputDir, log),
		Driver:       driver,
		Evidence:     ev,
		Notifier:     notifier,
		Metrics:      worker.NewMetrics(reg),
	}, cfg.Retry, cfg.Worker.AttemptTimeout, log)

	return &Runtime{Worker: w, driver: driver}, nil
}
