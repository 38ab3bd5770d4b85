package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"futures-exec-go/ledger"
	"futures-exec-go/order"
)

// frame 网关 JSON 帧。请求帧带 req_id，应答帧原样带回；
// op=event 为柜台主动推送的回报。
type frame struct {
	Op      string                 `json:"op"` // place/cancel/query_orders/query_account/result/event
	ReqID   uint64                 `json:"req_id,omitempty"`
	Intent  *order.Intent          `json:"intent,omitempty"`
	OrderID string                 `json:"order_id,omitempty"`
	Event   *order.Event           `json:"event,omitempty"`
	Reports []OrderReport          `json:"reports,omitempty"`
	Account *ledger.BrokerSnapshot `json:"account,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// WSSession 基于 websocket JSON 帧的柜台会话实现。
// 读循环单 goroutine，断线时向事件流推送 Disconnected 哨兵，
// 重连由上层（协调器）调用 Connect 完成。
type WSSession struct {
	Endpoint string
	Dialer   *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]chan frame
	reqSeq  atomic.Uint64
	events  chan order.Event
	closed  bool
}

// NewWSSession 创建 ws 会话。
func NewWSSession(endpoint string) *WSSession {
	return &WSSession{
		Endpoint: endpoint,
		Dialer:   websocket.DefaultDialer,
		pending:  make(map[uint64]chan frame),
		events:   make(chan order.Event, 256),
	}
}

// Connect 建立连接并启动读循环，可在断线后重复调用。
func (s *WSSession) Connect(ctx context.Context) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Endpoint, err)
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.closed = false
	s.mu.Unlock()

	go s.readPump(conn)
	return nil
}

// Close 关闭会话。
func (s *WSSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Events 返回回报流。
func (s *WSSession) Events() <-chan order.Event { return s.events }

func (s *WSSession) readPump(conn *websocket.Conn) {
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.onDisconnect(conn)
			return
		}
		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			continue
		}
		switch f.Op {
		case "event":
			if f.Event != nil {
				s.events <- *f.Event
			}
		case "result":
			s.mu.Lock()
			ch, ok := s.pending[f.ReqID]
			if ok {
				delete(s.pending, f.ReqID)
			}
			s.mu.Unlock()
			if ok {
				ch <- f
			}
		}
	}
}

func (s *WSSession) onDisconnect(conn *websocket.Conn) {
	s.mu.Lock()
	intentional := s.closed || s.conn != conn
	if s.conn == conn {
		s.conn = nil
	}
	// 挂起的请求全部失败
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !intentional {
		s.events <- order.Event{Type: EventDisconnected, Time: time.Now().UTC()}
	}
}

// request 发送请求帧并等待对应应答。
func (s *WSSession) request(ctx context.Context, f frame) (frame, error) {
	f.ReqID = s.reqSeq.Add(1)
	respCh := make(chan frame, 1)

	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return frame{}, ErrSessionDown
	}
	s.pending[f.ReqID] = respCh
	err := s.conn.WriteJSON(f)
	s.mu.Unlock()
	if err != nil {
		s.dropPending(f.ReqID)
		return frame{}, fmt.Errorf("write %s: %w", f.Op, err)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return frame{}, ErrSessionDown
		}
		if resp.Error != "" {
			return frame{}, fmt.Errorf("%s rejected: %s", f.Op, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		s.dropPending(f.ReqID)
		return frame{}, fmt.Errorf("%w: %s", ErrPlaceTimeout, f.Op)
	}
}

func (s *WSSession) dropPending(reqID uint64) {
	s.mu.Lock()
	delete(s.pending, reqID)
	s.mu.Unlock()
}

// Place 报单并等待柜台受理应答，返回柜台订单号。
func (s *WSSession) Place(ctx context.Context, o order.Order) (string, error) {
	intent := o.Intent
	resp, err := s.request(ctx, frame{Op: "place", Intent: &intent, OrderID: o.ID})
	if err != nil {
		return "", err
	}
	return resp.OrderID, nil
}

// Cancel 按柜台订单号撤单。
func (s *WSSession) Cancel(ctx context.Context, brokerID string) error {
	_, err := s.request(ctx, frame{Op: "cancel", OrderID: brokerID})
	return err
}

// QueryOrders 查询柜台订单状态。
func (s *WSSession) QueryOrders(ctx context.Context) ([]OrderReport, error) {
	resp, err := s.request(ctx, frame{Op: "query_orders"})
	if err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

// QueryAccount 查询柜台资金与持仓。
func (s *WSSession) QueryAccount(ctx context.Context) (ledger.BrokerSnapshot, error) {
	resp, err := s.request(ctx, frame{Op: "query_account"})
	if err != nil {
		return ledger.BrokerSnapshot{}, err
	}
	if resp.Account == nil {
		return ledger.BrokerSnapshot{}, fmt.Errorf("query_account: empty response")
	}
	return *resp.Account, nil
}
