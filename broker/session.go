package broker

import (
	"context"
	"errors"

	"futures-exec-go/ledger"
	"futures-exec-go/order"
)

// EventDisconnected 会话级事件哨兵：事件流中断，OrderID 为空。
const EventDisconnected order.EventType = "DISCONNECTED"

var (
	// ErrSessionDown 会话未连接或已断开。
	ErrSessionDown = errors.New("broker session down")
	// ErrPlaceTimeout 报单在限定时间内未得到柜台响应。
	ErrPlaceTimeout = errors.New("place request timeout")
)

// OrderReport 柜台回报的订单权威状态。
type OrderReport struct {
	BrokerID      string      `json:"broker_id"`
	CorrelationID string      `json:"correlation_id"`
	State         order.State `json:"state"`
	FilledQty     float64     `json:"filled_qty"`
	AvgFillPrice  float64     `json:"avg_fill_price"`
}

// Session 柜台会话抽象：双工通道，下行发委托，上行收异步回报。
// 事件流中同一订单的事件保证按柜台发出顺序到达。
type Session interface {
	// Connect 建立（或重建）会话。
	Connect(ctx context.Context) error
	// Close 关闭会话。
	Close() error
	// Place 报单，返回柜台订单号。超时或断线返回错误，可能已报入柜台，
	// 由对账兜底，调用方不得自行重试。
	Place(ctx context.Context, o order.Order) (string, error)
	// Cancel 按柜台订单号撤单。
	Cancel(ctx context.Context, brokerID string) error
	// Events 异步回报流：确认/拒绝/成交/撤单结果/断线。
	Events() <-chan order.Event
	// QueryOrders 查询柜台当前认定的全部订单状态（对账用）。
	QueryOrders(ctx context.Context) ([]OrderReport, error)
	// QueryAccount 查询柜台权威的资金与持仓快照。
	QueryAccount(ctx context.Context) (ledger.BrokerSnapshot, error)
}
