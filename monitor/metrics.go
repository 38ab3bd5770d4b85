package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"futures-exec-go/ledger"
	"futures-exec-go/order"
)

// Metrics Prometheus 指标采集器，实现 exec.Observer。
type Metrics struct {
	registry *prometheus.Registry

	// 订单指标
	ordersSubmitted prometheus.Counter
	ordersFilled    prometheus.Counter
	ordersCanceled  prometheus.Counter
	ordersRejected  prometheus.Counter
	ordersUnknown   prometheus.Counter

	// 成交指标
	tradesTotal  prometheus.Counter
	tradedVolume prometheus.Counter

	// 风控指标
	riskRejects *prometheus.CounterVec

	// 账本指标
	equity        prometheus.Gauge
	realizedPnL   prometheus.Gauge
	unrealizedPnL prometheus.Gauge

	// 对账指标
	divergences   prometheus.Counter
	maxQtyDiff    prometheus.Gauge
	reconCashDiff prometheus.Gauge
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Namespace: "futures", Subsystem: "exec"}
}

// NewMetrics 创建指标采集器。
func NewMetrics(cfg Config) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		ordersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_submitted_total", Help: "报出订单总数",
		}),
		ordersFilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_filled_total", Help: "完全成交订单总数",
		}),
		ordersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_canceled_total", Help: "已撤销订单总数",
		}),
		ordersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_rejected_total", Help: "柜台拒绝订单总数",
		}),
		ordersUnknown: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_unknown_total", Help: "对账后状态未知订单总数",
		}),
		tradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "trades_total", Help: "成交笔数",
		}),
		tradedVolume: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "traded_volume_total", Help: "成交手数累计",
		}),
		riskRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "risk_rejects_total", Help: "风控拒单数（按规则）",
		}, []string{"rule"}),
		equity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "equity", Help: "账户权益",
		}),
		realizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "realized_pnl", Help: "当日已实现盈亏",
		}),
		unrealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "unrealized_pnl", Help: "未实现盈亏",
		}),
		divergences: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "ledger_divergences_total", Help: "账本对账偏差次数",
		}),
		maxQtyDiff: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "reconcile_max_qty_diff", Help: "最近一次对账最大持仓偏差",
		}),
		reconCashDiff: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "reconcile_cash_diff", Help: "最近一次对账资金偏差",
		}),
	}
	return m
}

// OrderSubmitted 实现 exec.Observer。
func (m *Metrics) OrderSubmitted(o order.Order) {
	m.ordersSubmitted.Inc()
}

// OrderUpdated 实现 exec.Observer。
func (m *Metrics) OrderUpdated(o order.Order) {
	switch o.State {
	case order.StateFilled:
		m.ordersFilled.Inc()
	case order.StateCancelled:
		m.ordersCanceled.Inc()
	case order.StateRejected:
		m.ordersRejected.Inc()
	case order.StateUnknown:
		m.ordersUnknown.Inc()
	}
}

// TradeCommitted 实现 exec.Observer。
func (m *Metrics) TradeCommitted(t order.Trade) {
	m.tradesTotal.Inc()
	m.tradedVolume.Add(t.Quantity)
}

// RiskRejected 实现 exec.Observer。
func (m *Metrics) RiskRejected(rule string) {
	m.riskRejects.WithLabelValues(rule).Inc()
}

// DivergenceDetected 实现 exec.Observer。
func (m *Metrics) DivergenceDetected(d ledger.Divergence) {
	m.divergences.Inc()
	m.maxQtyDiff.Set(d.MaxQtyDiff)
	m.reconCashDiff.Set(d.CashDiff)
}

// UpdateAccount 刷新账本指标（由查询 API 或定时器调用）。
func (m *Metrics) UpdateAccount(snap ledger.Snapshot) {
	m.equity.Set(snap.Equity)
	m.realizedPnL.Set(snap.RealizedPnL)
	m.unrealizedPnL.Set(snap.UnrealizedPnL)
}

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 启动指标服务器，addr 为空则不启动。
func (m *Metrics) Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
