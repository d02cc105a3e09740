// Load envs from .env
// Load YAML config
// Override from environment
// Provide default values and validate

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

// DefaultQueueKey is the redis list applications are dispatched through
const DefaultQueueKey = "autoapply:dispatch"

// AttemptFinalizeMargin is how long a worker may still run after attempt_timeout
// fires: the failure screenshot plus the store write of the result.
const AttemptFinalizeMargin = 40 * time.Second

type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Log       logger.Config     `yaml:"log"`
	Storage   StorageConfig     `yaml:"storage"`
	Browser   BrowserConfig     `yaml:"browser"`
	Worker    WorkerConfig      `yaml:"worker"`
	Retry     automation.Policy `yaml:"retry"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Redis     RedisConfig       `yaml:"redis"`
	Evidence  EvidenceConfig    `yaml:"evidence"`
	Resume    ResumeConfig      `yaml:"resume"`
	Telegram  TelegramConfig    `yaml:"telegram"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
}

type StorageConfig struct {
	//badger or postgres
	Driver      string `yaml:"driver"`
	BadgerPath  string `yaml:"badger_path"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
}

type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	CookiesDir        string        `yaml:"cookies_dir"`
	ViewportWidth     int           `yaml:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height"`
	UserAgent         string        `yaml:"user_agent"`
	DefaultTimeout    time.Duration `yaml:"default_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	MinDelayMs        int           `yaml:"min_delay_ms"`
	MaxDelayMs        int           `yaml:"max_delay_ms"`
	//download browsers on start
	Install bool `yaml:"install"`
}

type WorkerConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	QueueSize      int           `yaml:"queue_size"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

type SchedulerConfig struct {
	StaleAfter      time.Duration `yaml:"stale_after"`
	DispatchGrace   time.Duration `yaml:"dispatch_grace"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
	//local or redis
	Queue string `yaml:"queue"`
}

type RedisConfig struct {
	Addr          string `yaml:"addr" env:"REDIS_ADDR"`
	Password      string `yaml:"password" env:"REDIS_PASSWORD"`
	DB            int    `yaml:"db"`
	QueueKey      string `yaml:"queue_key"`
	NotifyChannel string `yaml:"notify_channel"`
}

type EvidenceConfig struct {
	Dir            string `yaml:"dir"`
	MaxScreenshots int    `yaml:"max_screenshots"`
}

type ResumeConfig struct {
	Tailor       bool   `yaml:"tailor"`
	GroqAPIKey   string `yaml:"groq_api_key" env:"GROQ_API_KEY"`
	Model        string `yaml:"model"`
	OutputDir    string `yaml:"output_dir"`
	TemplatePath string `yaml:"template_path"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

// Load reads path (missing file is fine), applies env overrides and defaults, then validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		//run on defaults + env
	default:
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Storage.DatabaseURL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.Resume.GroqAPIKey = key
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.Telegram.Token = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "badger"
	}
	if c.Storage.BadgerPath == "" {
		c.Storage.BadgerPath = "data/badger"
	}

	if c.Browser.CookiesDir == "" {
		c.Browser.CookiesDir = ".cookies"
	}
	if c.Browser.ViewportWidth == 0 {
		c.Browser.ViewportWidth = 1920
	}
	if c.Browser.ViewportHeight == 0 {
		c.Browser.ViewportHeight = 1080
	}
	if c.Browser.DefaultTimeout == 0 {
		c.Browser.DefaultTimeout = 30 * time.Second
	}
	if c.Browser.NavigationTimeout == 0 {
		c.Browser.NavigationTimeout = 60 * time.Second
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 2
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = 100
	}
	if c.Worker.AttemptTimeout == 0 {
		c.Worker.AttemptTimeout = 10 * time.Minute
	}

	def := automation.DefaultPolicy()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.MaxAttempts
	}
	if c.Retry.UnknownMaxAttempts == 0 {
		c.Retry.UnknownMaxAttempts = def.UnknownMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = def.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.MaxDelay
	}
	if c.Retry.ManualMaxAttempts == 0 {
		c.Retry.ManualMaxAttempts = def.ManualMaxAttempts
	}

	if c.Scheduler.StaleAfter == 0 {
		c.Scheduler.StaleAfter = 30 * time.Minute
	}
	if c.Scheduler.DispatchGrace == 0 {
		c.Scheduler.DispatchGrace = 2 * time.Minute
	}
	if c.Scheduler.CleanupInterval == 0 {
		c.Scheduler.CleanupInterval = 5 * time.Minute
	}
	if c.Scheduler.RetryInterval == 0 {
		c.Scheduler.RetryInterval = 10 * time.Minute
	}
	if c.Scheduler.Queue == "" {
		c.Scheduler.Queue = "local"
	}

	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = DefaultQueueKey
	}
	if c.Redis.NotifyChannel == "" {
		c.Redis.NotifyChannel = "autoapply:notifications"
	}

	if c.Evidence.Dir == "" {
		c.Evidence.Dir = "logs/evidence"
	}
	if c.Evidence.MaxScreenshots == 0 {
		c.Evidence.MaxScreenshots = 20
	}

	if c.Resume.Model == "" {
		c.Resume.Model = "llama-3.3-70b-versatile"
	}
	if c.Resume.OutputDir == "" {
		c.Resume.OutputDir = "data/resumes"
	}
}

// Validate rejects settings the binaries cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "badger":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Scheduler.Queue {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis queue")
		}
	default:
		return fmt.Errorf("unknown scheduler queue %q", c.Scheduler.Queue)
	}

	if c.Retry.MaxAttempts > automation.HardAttemptLimit {
		return fmt.Errorf("retry.max_attempts must be <= %d", automation.HardAttemptLimit)
	}
	if c.Retry.ManualMaxAttempts < c.Retry.MaxAttempts || c.Retry.ManualMaxAttempts > automation.HardAttemptLimit {
		return fmt.Errorf("retry.manual_max_attempts must be between max_attempts and %d", automation.HardAttemptLimit)
	}
	// a sweep must never reclaim an attempt its worker is still running
	if c.Worker.AttemptTimeout <= 0 {
		return fmt.Errorf("worker.attempt_timeout must be positive")
	}
	if c.Scheduler.StaleAfter <= c.Worker.AttemptTimeout+AttemptFinalizeMargin {
		return fmt.Errorf("scheduler.stale_after (%s) must exceed worker.attempt_timeout (%s) by more than %s",
			c.Scheduler.StaleAfter, c.Worker.AttemptTimeout, AttemptFinalizeMargin)
	}
	if c.Browser.MinDelayMs > c.Browser.MaxDelayMs {
		return fmt.Errorf("browser.min_delay_ms must be <= browser.max_delay_ms")
	}
	if c.Resume.Tailor && c.Resume.GroqAPIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required when resume tailoring is enabled")
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == 0) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}
