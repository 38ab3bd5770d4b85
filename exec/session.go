package exec

import (
	"fmt"

	"futures-exec-go/infrastructure/logger"
	"futures-exec-go/ledger"
	"futures-exec-go/order"
	"futures-exec-go/risk"
)

// SessionConfig 会话参数。
type SessionConfig struct {
	JournalPath  string             // 订单事件日志路径，空则不落盘
	StartingCash float64            // 期初资金
	Multipliers  map[string]float64 // 合约乘数表
	Limits       risk.Limits        // 本会话风控限额（此后不可变）
	Clock        risk.Clock         // 可注入，默认 UTC 真实时钟
}

// Session 一次交易会话：注册表、账本与风控闸门的属主。
// 会话结束整体销毁，换限额必须开新会话，不存在全局可变状态。
type Session struct {
	Registry *order.Registry
	Ledger   *ledger.Ledger
	Gate     *risk.Gate

	journal *order.EventLog
	log     *logger.Logger
}

// NewSession 构建会话。存在历史事件日志时先重放重建注册表。
func NewSession(cfg SessionConfig, log *logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.Nop()
	}

	var journal *order.EventLog
	if cfg.JournalPath != "" {
		var err error
		journal, err = order.OpenEventLog(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	led := ledger.New(cfg.StartingCash, cfg.Multipliers)
	reg := order.NewRegistry(journal, log)
	if cfg.JournalPath != "" {
		if err := order.ReplayInto(cfg.JournalPath, reg); err != nil {
			return nil, fmt.Errorf("replay journal: %w", err)
		}
	}

	return &Session{
		Registry: reg,
		Ledger:   led,
		Gate:     risk.NewGate(cfg.Limits, led, cfg.Clock),
		journal:  journal,
		log:      log,
	}, nil
}

// Close 结束会话并关闭事件日志。
func (s *Session) Close() error {
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}
