package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"futures-exec-go/ledger"
	"futures-exec-go/order"
)

// MockSession 可编程的柜台会话，供测试与模拟盘使用。
// 回报由测试脚本通过 Emit* 方法注入，顺序即注入顺序。
type MockSession struct {
	mu        sync.Mutex
	connected bool
	brokerSeq int

	placed   []order.Order
	canceled []string

	// PlaceErr 非空时 Place 直接失败（模拟柜台不可用）。
	PlaceErr error
	// CancelErr 非空时 Cancel 直接失败。
	CancelErr error
	// ConnectErr 非空时 Connect 失败（模拟重连不上）。
	ConnectErr error

	reports []OrderReport
	account ledger.BrokerSnapshot

	events chan order.Event
}

// NewMockSession 创建模拟会话。
func NewMockSession() *MockSession {
	return &MockSession{events: make(chan order.Event, 256)}
}

// Connect 标记连接建立。
func (m *MockSession) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true
	return nil
}

// SetConnectErr 设置（或清除）连接失败注入。
func (m *MockSession) SetConnectErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectErr = err
}

// Close 标记连接关闭。
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// Place 登记报单并返回生成的柜台订单号。
func (m *MockSession) Place(ctx context.Context, o order.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return "", ErrSessionDown
	}
	if m.PlaceErr != nil {
		return "", m.PlaceErr
	}
	m.brokerSeq++
	m.placed = append(m.placed, o)
	return fmt.Sprintf("B-%04d", m.brokerSeq), nil
}

// Cancel 登记撤单请求。
func (m *MockSession) Cancel(ctx context.Context, brokerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrSessionDown
	}
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.canceled = append(m.canceled, brokerID)
	return nil
}

// Events 返回回报流。
func (m *MockSession) Events() <-chan order.Event { return m.events }

// QueryOrders 返回脚本设置的订单回报。
func (m *MockSession) QueryOrders(ctx context.Context) ([]OrderReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrSessionDown
	}
	out := make([]OrderReport, len(m.reports))
	copy(out, m.reports)
	return out, nil
}

// QueryAccount 返回脚本设置的资金快照。
func (m *MockSession) QueryAccount(ctx context.Context) (ledger.BrokerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ledger.BrokerSnapshot{}, ErrSessionDown
	}
	return m.account, nil
}

// SetReports 设置对账时柜台返回的订单状态。
func (m *MockSession) SetReports(reports []OrderReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = reports
}

// SetAccount 设置对账时柜台返回的资金快照。
func (m *MockSession) SetAccount(snap ledger.BrokerSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = snap
}

// Placed 返回已登记的报单副本。
func (m *MockSession) Placed() []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, len(m.placed))
	copy(out, m.placed)
	return out
}

// Canceled 返回已登记的撤单请求。
func (m *MockSession) Canceled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.canceled))
	copy(out, m.canceled)
	return out
}

// Emit 注入一条回报事件。
func (m *MockSession) Emit(ev order.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	m.events <- ev
}

// EmitAck 注入柜台确认。
func (m *MockSession) EmitAck(orderID, brokerID string) {
	m.Emit(order.Event{Type: order.EventAck, OrderID: orderID, BrokerID: brokerID})
}

// EmitReject 注入柜台拒单。
func (m *MockSession) EmitReject(orderID, reason string) {
	m.Emit(order.Event{Type: order.EventReject, OrderID: orderID, Reason: reason})
}

// EmitFill 注入一笔成交。
func (m *MockSession) EmitFill(orderID string, qty, price float64) {
	m.Emit(order.Event{Type: order.EventFill, OrderID: orderID, Quantity: qty, Price: price})
}

// EmitCancelConfirm 注入撤单成功。
func (m *MockSession) EmitCancelConfirm(orderID string) {
	m.Emit(order.Event{Type: order.EventCancelConfirm, OrderID: orderID})
}

// EmitCancelReject 注入撤单被拒。
func (m *MockSession) EmitCancelReject(orderID, reason string) {
	m.Emit(order.Event{Type: order.EventCancelReject, OrderID: orderID, Reason: reason})
}

// EmitDisconnect 注入断线哨兵并标记会话断开。
func (m *MockSession) EmitDisconnect() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.Emit(order.Event{Type: EventDisconnected})
}
