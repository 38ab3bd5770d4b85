package order

import "time"

// EventType 柜台事件类型。
type EventType string

const (
	EventSubmit        EventType = "SUBMIT"         // 本地报出
	EventAck           EventType = "ACK"            // 柜台确认
	EventReject        EventType = "REJECT"         // 柜台拒绝
	EventFill          EventType = "FILL"           // 成交（部分或全部）
	EventCancelRequest EventType = "CANCEL_REQUEST" // 本地发起撤单
	EventCancelConfirm EventType = "CANCEL_CONFIRM" // 柜台确认撤销
	EventCancelReject  EventType = "CANCEL_REJECT"  // 柜台拒绝撤单
	EventSuspend       EventType = "SUSPEND"        // 断线，转入待对账
	EventReconcile     EventType = "RECONCILE"      // 对账修正到柜台状态
	EventMarkUnknown   EventType = "MARK_UNKNOWN"   // 对账后柜台无此单
)

// Event 驱动订单状态机的事件。成交事件携带数量与价格，
// 拒绝类事件携带原因，对账事件携带柜台认定的目标状态。
type Event struct {
	Type     EventType `json:"type"`
	OrderID  string    `json:"order_id"`
	BrokerID string    `json:"broker_id,omitempty"`
	Quantity float64   `json:"quantity,omitempty"`
	Price    float64   `json:"price,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Target   State     `json:"target,omitempty"` // 仅 RECONCILE 使用
	Time     time.Time `json:"time"`
}
