package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"futures-exec-go/infrastructure/logger"
	"futures-exec-go/risk"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string             `yaml:"env"`
	Broker    BrokerConfig       `yaml:"broker"`
	Session   SessionConfig      `yaml:"session"`
	Risk      risk.Limits        `yaml:"risk"`
	Reconcile ReconcileConfig    `yaml:"reconcile"`
	Contracts map[string]float64 `yaml:"contracts"` // 合约乘数表
	Log       logger.Config      `yaml:"log"`
	Alert     AlertConfig        `yaml:"alert"`
	Metrics   MetricsConfig      `yaml:"metrics"`
}

type BrokerConfig struct {
	Endpoint       string        `yaml:"endpoint"` // ws:// 或 wss://
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type SessionConfig struct {
	JournalPath  string  `yaml:"journalPath"`
	StartingCash float64 `yaml:"startingCash"`
}

type ReconcileConfig struct {
	Interval          time.Duration `yaml:"interval"`
	Tolerance         float64       `yaml:"tolerance"`
	BackoffInitial    time.Duration `yaml:"backoffInitial"`
	BackoffMax        time.Duration `yaml:"backoffMax"`
	MaxConnectRetries int           `yaml:"maxConnectRetries"`
}

type AlertConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Throttle   time.Duration `yaml:"throttle"`
	FeedSize   int           `yaml:"feedSize"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空则不启动指标服务
}

// Default 返回可直接运行的默认配置。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Broker: BrokerConfig{
			RequestTimeout: 3 * time.Second,
		},
		Session: SessionConfig{
			JournalPath:  "data/orders.jsonl",
			StartingCash: 1_000_000,
		},
		Risk: risk.DefaultLimits(),
		Reconcile: ReconcileConfig{
			Interval:          30 * time.Second,
			Tolerance:         1e-6,
			BackoffInitial:    500 * time.Millisecond,
			BackoffMax:        10 * time.Second,
			MaxConnectRetries: 5,
		},
		Contracts: map[string]float64{},
		Alert: AlertConfig{
			Throttle: time.Minute,
			FeedSize: 256,
		},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads YAML config from path, layered over Default().
func Load(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config and applies environment overrides.
// FUTURES_BROKER_ENDPOINT、FUTURES_JOURNAL_PATH、FUTURES_METRICS_ADDR
// 覆盖对应字段，方便容器部署。
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("FUTURES_BROKER_ENDPOINT"); v != "" {
		cfg.Broker.Endpoint = v
	}
	if v := os.Getenv("FUTURES_JOURNAL_PATH"); v != "" {
		cfg.Session.JournalPath = v
	}
	if v := os.Getenv("FUTURES_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg, nil
}
