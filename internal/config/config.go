package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Store     StoreConfig     `yaml:"store"`
	Research  ResearchConfig  `yaml:"research"`
	Reports   ReportsConfig   `yaml:"reports"`
	NATS      NATSConfig      `yaml:"nats"`
	Web       WebConfig       `yaml:"web"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Vault     VaultConfig     `yaml:"vault"`
}

type PipelineConfig struct {
	StageTimeout       time.Duration            `yaml:"stage_timeout"`
	StageTimeouts      map[string]time.Duration `yaml:"stage_timeouts"`
	RetryAttempts      int                      `yaml:"retry_attempts"`
	RetryBackoff       time.Duration            `yaml:"retry_backoff"`
	MaxConcurrentTasks int                      `yaml:"max_concurrent_tasks"`
}

// StageTimeoutFor returns the per-stage override, or the default stage timeout.
func (p PipelineConfig) StageTimeoutFor(stage string) time.Duration {
	if d, ok := p.StageTimeouts[stage]; ok && d > 0 {
		return d
	}
	return p.StageTimeout
}

type StoreConfig struct {
	Path               string  `yaml:"path"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	CacheSizeLimit     int     `yaml:"cache_size_limit"`
}

type ResearchConfig struct {
	Provider         string   `yaml:"provider"` // "static" or "http"
	APIKey           string   `yaml:"api_key"`
	MaxResults       int      `yaml:"max_results"`
	MinContentLength int      `yaml:"min_content_length"`
	Domains          []string `yaml:"domains"`
}

type ReportsConfig struct {
	Dir           string `yaml:"dir"`
	DefaultFormat string `yaml:"default_format"`
}

type NATSConfig struct {
	Port int `yaml:"port"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

func defaults() Config {
	return Config{
		Pipeline: PipelineConfig{
			StageTimeout: 300 * time.Second,
			StageTimeouts: map[string]time.Duration{
				"research":     300 * time.Second,
				"verification": 180 * time.Second,
				"synthesis":    240 * time.Second,
				"rendering":    120 * time.Second,
			},
			RetryAttempts:      2,
			RetryBackoff:       2 * time.Second,
			MaxConcurrentTasks: 3,
		},
		Store: StoreConfig{
			Path:               "data/erevna.db",
			DuplicateThreshold: 0.8,
			CacheSizeLimit:     1000,
		},
		Research: ResearchConfig{
			Provider:         "static",
			MaxResults:       5,
			MinContentLength: 200,
		},
		Reports: ReportsConfig{
			Dir:           "data/reports",
			DefaultFormat: "html",
		},
		NATS: NATSConfig{
			Port: 4222,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("EREVNA_CONFIG")
	if path == "" {
		path = "config/erevna.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("EREVNA_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("EREVNA_REPORTS_DIR"); v != "" {
		cfg.Reports.Dir = v
	}
	if v := os.Getenv("EREVNA_SEARCH_API_KEY"); v != "" {
		cfg.Research.APIKey = v
	}
	if v := os.Getenv("EREVNA_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("EREVNA_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("EREVNA_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("EREVNA_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("EREVNA_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("EREVNA_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
}
