// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type APIConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Workers        int           `yaml:"workers"`         // concurrent job executions
	PollInterval   time.Duration `yaml:"poll_interval"`   // due-entry poll cadence
	MaxAttempts    int           `yaml:"max_attempts"`    // queue-level retries before dead
	BackoffBase    time.Duration `yaml:"backoff_base"`    // exponential backoff base
	RateLimit      int           `yaml:"rate_limit"`      // job starts per window, shared
	RateWindow     time.Duration `yaml:"rate_window"`     // rolling window size
	DoneRetention  time.Duration `yaml:"done_retention"`  // prune done entries after
	DeadRetention  time.Duration `yaml:"dead_retention"`  // prune dead entries after
	LeaseDuration  time.Duration `yaml:"lease_duration"`  // stale lease requeue threshold
	PruneInterval  time.Duration `yaml:"prune_interval"`
}

type InstagramConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
}

type StorageConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

type NotifyConfig struct {
	FCMServerKey string `yaml:"fcm_server_key"`
	ResendAPIKey string `yaml:"resend_api_key"`
	FromEmail    string `yaml:"from_email"`
}

type SchedulerConfig struct {
	TokenRefreshInterval  time.Duration `yaml:"token_refresh_interval"`
	TokenRefreshThreshold time.Duration `yaml:"token_refresh_threshold"` // refresh tokens expiring within
}

type RenderConfig struct {
	FontRegular string `yaml:"font_regular"` // path to a TTF for body text
	FontBold    string `yaml:"font_bold"`    // path to a TTF for the author name
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Instagram InstagramConfig `yaml:"instagram"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Render    RenderConfig    `yaml:"render"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 2
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 500 * time.Millisecond
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.BackoffBase <= 0 {
		cfg.Queue.BackoffBase = time.Second
	}
	if cfg.Queue.RateLimit <= 0 {
		cfg.Queue.RateLimit = 5
	}
	if cfg.Queue.RateWindow <= 0 {
		cfg.Queue.RateWindow = time.Minute
	}
	if cfg.Queue.DoneRetention <= 0 {
		cfg.Queue.DoneRetention = 24 * time.Hour
	}
	if cfg.Queue.DeadRetention <= 0 {
		cfg.Queue.DeadRetention = 7 * 24 * time.Hour
	}
	if cfg.Queue.LeaseDuration <= 0 {
		cfg.Queue.LeaseDuration = 5 * time.Minute
	}
	if cfg.Queue.PruneInterval <= 0 {
		cfg.Queue.PruneInterval = time.Hour
	}
	if cfg.Instagram.BaseURL == "" {
		cfg.Instagram.BaseURL = "https://graph.instagram.com"
	}
	if cfg.Instagram.APIVersion == "" {
		cfg.Instagram.APIVersion = "v21.0"
	}
	if cfg.Storage.Folder == "" {
		cfg.Storage.Folder = "story-scheduler"
	}
	if cfg.Scheduler.TokenRefreshInterval <= 0 {
		cfg.Scheduler.TokenRefreshInterval = 24 * time.Hour
	}
	if cfg.Scheduler.TokenRefreshThreshold <= 0 {
		cfg.Scheduler.TokenRefreshThreshold = 7 * 24 * time.Hour
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.API.JWTSecret == "" && !dev {
		return nil, errors.New("api.jwt_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
