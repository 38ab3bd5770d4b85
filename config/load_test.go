package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
env: prod
broker:
  endpoint: wss://broker.example.com/trade
  requestTimeout: 5s
session:
  journalPath: /var/lib/traderd/orders.jsonl
  startingCash: 2000000
risk:
  max_position_per_symbol: 20
  max_orders_per_minute: 30
contracts:
  IF2509: 300
  RB2510: 10
reconcile:
  interval: 15s
  tolerance: 0.000001
metrics:
  addr: ":9102"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadLayersOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker.Endpoint != "wss://broker.example.com/trade" {
		t.Fatalf("endpoint = %s", cfg.Broker.Endpoint)
	}
	if cfg.Broker.RequestTimeout != 5*time.Second {
		t.Fatalf("requestTimeout = %s", cfg.Broker.RequestTimeout)
	}
	if cfg.Risk.MaxPositionPerSymbol != 20 {
		t.Fatalf("maxPositionPerSymbol = %.0f", cfg.Risk.MaxPositionPerSymbol)
	}
	// 未覆盖的字段保留默认值
	if cfg.Reconcile.MaxConnectRetries != 5 {
		t.Fatalf("maxConnectRetries = %d, want default 5", cfg.Reconcile.MaxConnectRetries)
	}
	if cfg.Contracts["IF2509"] != 300 {
		t.Fatalf("multiplier = %.0f", cfg.Contracts["IF2509"])
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FUTURES_BROKER_ENDPOINT", "ws://10.0.0.1:8080/trade")
	t.Setenv("FUTURES_JOURNAL_PATH", "/tmp/override.jsonl")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker.Endpoint != "ws://10.0.0.1:8080/trade" {
		t.Fatalf("endpoint = %s", cfg.Broker.Endpoint)
	}
	if cfg.Session.JournalPath != "/tmp/override.jsonl" {
		t.Fatalf("journalPath = %s", cfg.Session.JournalPath)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing endpoint", func(c *AppConfig) { c.Broker.Endpoint = "" }},
		{"http endpoint", func(c *AppConfig) { c.Broker.Endpoint = "http://x" }},
		{"negative cash", func(c *AppConfig) { c.Session.StartingCash = -1 }},
		{"zero position limit", func(c *AppConfig) { c.Risk.MaxPositionPerSymbol = 0 }},
		{"ratio above one", func(c *AppConfig) { c.Risk.MaxPositionValueRatio = 1.5 }},
		{"zero interval", func(c *AppConfig) { c.Reconcile.Interval = 0 }},
		{"bad multiplier", func(c *AppConfig) { c.Contracts = map[string]float64{"IF2509": -1} }},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.Broker.Endpoint = "ws://localhost:8080"
		tc.mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestWatcherPendingAfterChange(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	w := &Watcher{Path: path, Cooldown: time.Millisecond}

	updated := make(chan AppConfig, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case updated <- cfg:
			default:
			}
		})
	}()

	// 给 watcher 一点时间挂上目录
	time.Sleep(100 * time.Millisecond)
	next := sampleYAML + "\nalert:\n  throttle: 30s\n"
	if err := os.WriteFile(path, []byte(next), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-updated:
		if cfg.Alert.Throttle != 30*time.Second {
			t.Fatalf("throttle = %s", cfg.Alert.Throttle)
		}
	case <-ctx.Done():
		t.Fatal("no reload observed")
	}

	if _, ok := w.Pending(); !ok {
		t.Fatal("pending config not staged")
	}
}

func TestWatcherReportsBrokenReload(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	failures := make(chan error, 1)
	w := &Watcher{
		Path:     path,
		Cooldown: time.Millisecond,
		OnError: func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() {
		_ = w.Start(ctx, func(AppConfig) {
			t.Error("broken config must not trigger update")
		})
	}()

	time.Sleep(100 * time.Millisecond)
	// 校验失败：endpoint 改成非 ws 协议
	broken := strings.Replace(sampleYAML, "wss://broker.example.com/trade", "http://bad", 1)
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case err := <-failures:
		if err == nil {
			t.Fatal("nil error reported")
		}
	case <-ctx.Done():
		t.Fatal("reload failure not reported")
	}

	if _, ok := w.Pending(); ok {
		t.Fatal("broken config staged as pending")
	}
}
