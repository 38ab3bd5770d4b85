package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"futures-exec-go/broker"
	"futures-exec-go/config"
	"futures-exec-go/exec"
	"futures-exec-go/infrastructure/alert"
	"futures-exec-go/infrastructure/logger"
	"futures-exec-go/monitor"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	// 告警：日志通道常开，webhook 与内存订阅按配置挂载
	alerts := alert.NewManager([]alert.Channel{
		alert.NewLogChannel("log", os.Stderr),
	}, cfg.Alert.Throttle)
	if cfg.Alert.WebhookURL != "" {
		alerts.AddChannel(alert.NewWebhookChannel("webhook", cfg.Alert.WebhookURL, 5*time.Second))
	}
	feed := alert.NewFeedChannel("feed", cfg.Alert.FeedSize)
	alerts.AddChannel(feed)

	session, err := exec.NewSession(exec.SessionConfig{
		JournalPath:  cfg.Session.JournalPath,
		StartingCash: cfg.Session.StartingCash,
		Multipliers:  cfg.Contracts,
		Limits:       cfg.Risk,
	}, lg)
	if err != nil {
		log.Fatalf("初始化会话失败: %v", err)
	}
	defer session.Close()

	metrics := monitor.NewMetrics(monitor.DefaultConfig())
	ws := broker.NewWSSession(cfg.Broker.Endpoint)

	coord := exec.NewCoordinator(exec.Config{
		PlaceTimeout:       cfg.Broker.RequestTimeout,
		CancelTimeout:      cfg.Broker.RequestTimeout,
		ReconcileInterval:  cfg.Reconcile.Interval,
		ReconcileTolerance: cfg.Reconcile.Tolerance,
		BackoffInitial:     cfg.Reconcile.BackoffInitial,
		BackoffMax:         cfg.Reconcile.BackoffMax,
		MaxConnectRetries:  cfg.Reconcile.MaxConnectRetries,
	}, session, ws, lg, alerts, exec.Callbacks{}, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		log.Fatalf("启动协调器失败: %v", err)
	}

	// 查询 API 与指标共用一个 mux
	if cfg.Metrics.Addr != "" {
		api := monitor.NewQueryAPI(session.Registry, session.Ledger, metrics)
		api.WatchAlerts(feed)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		api.Register(mux)
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				lg.LogError(err, map[string]interface{}{"component": "metrics_server"})
			}
		}()
	}

	// 配置热更新：新限额留给下一会话，只记录不打断
	watcher := &config.Watcher{
		Path: *cfgPath,
		OnError: func(err error) {
			lg.LogError(err, map[string]interface{}{"component": "config_watcher"})
		},
	}
	go func() {
		_ = watcher.Start(ctx, func(next config.AppConfig) {
			lg.WithFields(map[string]interface{}{"path": *cfgPath}).Info("config reloaded, limits apply next session")
		})
	}()

	// systemd 就绪通知与看门狗
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go func() {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	lg.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutting down")

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := coord.Stop(); err != nil {
		lg.LogError(err, map[string]interface{}{"component": "coordinator"})
	}
}
