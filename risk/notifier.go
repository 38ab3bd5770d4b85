package risk

import (
	"futures-exec-go/infrastructure/alert"
	"futures-exec-go/infrastructure/logger"
	"futures-exec-go/order"
)

// Notifier 把风控拒单转成日志与告警。
type Notifier struct {
	log    *logger.Logger
	alerts *alert.Manager
}

// NewNotifier 创建通知器，任一依赖可为 nil。
func NewNotifier(log *logger.Logger, alerts *alert.Manager) *Notifier {
	return &Notifier{log: log, alerts: alerts}
}

// NotifyRejected 上报一次风控拒单。
func (n *Notifier) NotifyRejected(intent order.Intent, result Result) {
	fields := map[string]interface{}{
		"symbol":      intent.Symbol,
		"strategy_id": intent.StrategyID,
		"rule":        result.Rule,
		"reason":      result.Reason,
	}
	if n.log != nil {
		n.log.LogRisk("risk_rejected", fields)
	}
	if n.alerts != nil {
		_ = n.alerts.Warning("RiskRejected", result.Reason, fields)
	}
}
