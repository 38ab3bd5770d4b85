package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"futures-exec-go/infrastructure/alert"
	"futures-exec-go/ledger"
	"futures-exec-go/order"
)

// QueryAPI 只读查询接口，暴露订单、持仓与账户快照。
type QueryAPI struct {
	registry *order.Registry
	ledger   *ledger.Ledger
	metrics  *Metrics

	mu     sync.Mutex
	alerts []alert.Alert // 最近告警环形缓冲
}

const alertHistory = 128

// NewQueryAPI 创建查询接口。
func NewQueryAPI(reg *order.Registry, led *ledger.Ledger, m *Metrics) *QueryAPI {
	return &QueryAPI{registry: reg, ledger: led, metrics: m}
}

// WatchAlerts 订阅告警通道并保留最近若干条。
func (q *QueryAPI) WatchAlerts(feed *alert.FeedChannel) {
	ch := feed.Subscribe()
	go func() {
		for a := range ch {
			q.mu.Lock()
			q.alerts = append(q.alerts, a)
			if len(q.alerts) > alertHistory {
				q.alerts = q.alerts[len(q.alerts)-alertHistory:]
			}
			q.mu.Unlock()
		}
	}()
}

// Register 把查询路由挂到 mux 上。
func (q *QueryAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/orders", q.handleOrders)
	mux.HandleFunc("/api/orders/active", q.handleActiveOrders)
	mux.HandleFunc("/api/account", q.handleAccount)
	mux.HandleFunc("/api/positions", q.handlePositions)
	mux.HandleFunc("/api/statistics", q.handleStatistics)
	mux.HandleFunc("/api/alerts", q.handleAlerts)
}

func (q *QueryAPI) handleOrders(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	var out []order.Order
	for o := range q.registry.Query(func(o order.Order) bool {
		return symbol == "" || o.Intent.Symbol == symbol
	}) {
		out = append(out, o)
	}
	writeJSON(w, out)
}

func (q *QueryAPI) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, q.registry.ActiveOrders())
}

func (q *QueryAPI) handleAccount(w http.ResponseWriter, r *http.Request) {
	snap := q.ledger.Snapshot()
	if q.metrics != nil {
		q.metrics.UpdateAccount(snap)
	}
	writeJSON(w, snap)
}

func (q *QueryAPI) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, q.ledger.Snapshot().Positions)
}

func (q *QueryAPI) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, q.registry.Statistics())
}

func (q *QueryAPI) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q.mu.Lock()
	out := make([]alert.Alert, len(q.alerts))
	copy(out, q.alerts)
	q.mu.Unlock()
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
