package exec

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"futures-exec-go/broker"
	"futures-exec-go/infrastructure/alert"
	"futures-exec-go/ledger"
	"futures-exec-go/order"
	"futures-exec-go/risk"
)

func testSession(t *testing.T, limits risk.Limits, cash float64) *Session {
	t.Helper()
	s, err := NewSession(SessionConfig{
		StartingCash: cash,
		Limits:       limits,
	}, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func permissiveLimits() risk.Limits {
	l := risk.DefaultLimits()
	l.MaxPositionPerSymbol = 1000
	l.MaxTotalPositions = 100
	l.MaxPositionValueRatio = 1
	l.MaxOrderAmount = 1e12
	l.MaxDailyLoss = 1e12
	l.MaxDailyLossRatio = 0
	l.MinAvailableRatio = 0
	l.MaxOrdersPerMinute = 10_000
	l.MaxOrdersPerSymbolPerMinute = 10_000
	l.MaxPriceDeviationRatio = 0
	return l
}

func startCoordinator(t *testing.T, s *Session, mock *broker.MockSession, alerts *alert.Manager) *Coordinator {
	t.Helper()
	c := NewCoordinator(Config{
		PlaceTimeout:      time.Second,
		CancelTimeout:     time.Second,
		ReconcileInterval: time.Hour, // 周期对账不参与测试
		BackoffInitial:    5 * time.Millisecond,
		BackoffMax:        10 * time.Millisecond,
		MaxConnectRetries: 100,
	}, s, mock, nil, alerts, Callbacks{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func waitState(t *testing.T, s *Session, orderID string, want order.State) {
	t.Helper()
	waitFor(t, string(want), func() bool {
		o, ok := s.Registry.Get(orderID)
		return ok && o.State == want
	})
}

func TestSubmitLifecycleToFilled(t *testing.T) {
	s := testSession(t, permissiveLimits(), 100_000_000)
	mock := broker.NewMockSession()
	c := startCoordinator(t, s, mock, nil)

	intent := order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 2, 4000, "s1")
	o, err := c.Submit(context.Background(), intent)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.State != order.StateSubmitted {
		t.Fatalf("state after submit = %s", o.State)
	}

	mock.EmitAck(o.ID, "B-0001")
	waitState(t, s, o.ID, order.StateAccepted)

	mock.EmitFill(o.ID, 2, 4005)
	waitState(t, s, o.ID, order.StateFilled)

	// 成交落账
	pos, ok := s.Ledger.Snapshot().PositionFor("IF2509")
	if !ok || pos.Quantity != 2 {
		t.Fatalf("ledger position = %+v", pos)
	}
}

func TestSubmitRiskRejectedNotRegistered(t *testing.T) {
	limits := permissiveLimits()
	limits.MaxPositionPerSymbol = 10
	s := testSession(t, limits, 100_000_000)
	mock := broker.NewMockSession()
	c := startCoordinator(t, s, mock, nil)

	// 建 8 手持仓
	first, err := c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 8, 4000, "s1"))
	if err != nil {
		t.Fatalf("submit 8: %v", err)
	}
	mock.EmitAck(first.ID, "B-0001")
	mock.EmitFill(first.ID, 8, 4000)
	waitState(t, s, first.ID, order.StateFilled)

	// 已持 8 手，限额 10：再开 5 手必须拒绝
	_, err = c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 5, 4000, "s1"))
	var rr *RiskRejectedError
	if !errors.As(err, &rr) {
		t.Fatalf("expected RiskRejectedError, got %v", err)
	}
	if rr.Rule != "position" {
		t.Fatalf("rule = %s, want position", rr.Rule)
	}
	// 被拒意图不得进入注册表
	if got := s.Registry.Statistics().Total; got != 1 {
		t.Fatalf("registry total = %d, want 1", got)
	}
	// 再开 2 手在限额内
	if _, err := c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 2, 4000, "s1")); err != nil {
		t.Fatalf("submit 2: %v", err)
	}
}

func TestSubmitBrokerUnavailable(t *testing.T) {
	s := testSession(t, permissiveLimits(), 100_000_000)
	mock := broker.NewMockSession()
	mock.PlaceErr = errors.New("exchange front busy")
	c := startCoordinator(t, s, mock, nil)

	o, err := c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 1, 4000, "s1"))
	if !errors.Is(err, ErrBrokerUnavailable) {
		t.Fatalf("expected ErrBrokerUnavailable, got %v", err)
	}
	// 报单失败绝不自动重试，订单转入 REJECTED 留痕
	waitState(t, s, o.ID, order.StateRejected)
	if got := len(mock.Placed()); got != 0 {
		t.Fatalf("placed %d orders, want 0", got)
	}
	final, _ := s.Registry.Get(o.ID)
	if final.RejectReason == "" {
		t.Fatal("expected reject reason recorded")
	}
}

func TestDuplicateIntentSingleSubmission(t *testing.T) {
	s := testSession(t, permissiveLimits(), 100_000_000)
	mock := broker.NewMockSession()
	c := startCoordinator(t, s, mock, nil)

	intent := order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 1, 4000, "s1")
	if _, err := c.Submit(context.Background(), intent); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := c.Submit(context.Background(), intent); !errors.Is(err, order.ErrDuplicateIntent) {
		t.Fatalf("expected ErrDuplicateIntent, got %v", err)
	}
	if got := len(mock.Placed()); got != 1 {
		t.Fatalf("placed %d orders, want exactly 1", got)
	}
}

func TestCancelLosesRaceToFill(t *testing.T) {
	s := testSession(t, permissiveLimits(), 100_000_000)
	mock := broker.NewMockSession()
	c := startCoordinator(t, s, mock, nil)

	o, err := c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 5, 4000, "s1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	mock.EmitAck(o.ID, "B-0001")
	mock.EmitFill(o.ID, 3, 4000)
	waitFor(t, "partial fill", func() bool {
		got, _ := s.Registry.Get(o.ID)
		return got.FilledQty == 3
	})

	if err := c.Cancel(context.Background(), o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := s.Registry.Get(o.ID)
	if got.State != order.StateCancelling {
		t.Fatalf("state after cancel request = %s", got.State)
	}

	// 撤单在途订单继续成交，最终以柜台裁决为准
	mock.EmitFill(o.ID, 2, 4010)
	waitState(t, s, o.ID, order.StateFilled)

	final, _ := s.Registry.Get(o.ID)
	if final.FilledQty != 5 {
		t.Fatalf("filled = %.1f, want 5", final.FilledQty)
	}
	if len(mock.Canceled()) != 1 {
		t.Fatalf("cancel requests = %d, want 1", len(mock.Canceled()))
	}
}

func TestCancelNotCancellable(t *testing.T) {
	s := testSession(t, permissiveLimits(), 100_000_000)
	mock := broker.NewMockSession()
	c := startCoordinator(t, s, mock, nil)

	o, err := c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 1, 4000, "s1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	mock.EmitAck(o.ID, "B-0001")
	mock.EmitFill(o.ID, 1, 4000)
	waitState(t, s, o.ID, order.StateFilled)

	if err := c.Cancel(context.Background(), o.ID); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
}

func TestDisconnectFreezeAndReconcile(t *testing.T) {
	s := testSession(t, permissiveLimits(), 100_000_000)
	mock := broker.NewMockSession()
	feed := alert.NewFeedChannel("feed", 64)
	alerts := alert.NewManager([]alert.Channel{feed}, time.Minute)
	c := startCoordinator(t, s, mock, alerts)

	o1, err := c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 2, 4000, "s1"))
	if err != nil {
		t.Fatalf("submit o1: %v", err)
	}
	o2, err := c.Submit(context.Background(), order.NewIntent("IC2509", order.SideSell, order.OffsetOpen, 1, 5000, "s1"))
	if err != nil {
		t.Fatalf("submit o2: %v", err)
	}
	mock.EmitAck(o1.ID, "B-0001")
	mock.EmitAck(o2.ID, "B-0002")
	waitState(t, s, o1.ID, order.StateAccepted)
	waitState(t, s, o2.ID, order.StateAccepted)

	// 重连后柜台报告：o1 已全部成交，o2 无踪
	mock.SetReports([]broker.OrderReport{{
		BrokerID:      "B-0001",
		CorrelationID: o1.Intent.CorrelationID,
		State:         order.StateFilled,
		FilledQty:     2,
		AvgFillPrice:  4002,
	}})
	mock.SetAccount(ledger.BrokerSnapshot{Cash: 99_000_000, Positions: []ledger.Position{
		{Symbol: "IF2509", Direction: ledger.Long, Quantity: 2, AvgCost: 4002},
	}})

	// 先让重连失败，留出验证冻结行为的窗口
	mock.SetConnectErr(errors.New("connection refused"))
	mock.EmitDisconnect()
	waitFor(t, "freeze", c.Frozen)

	// 冻结期间拒绝新委托
	if _, err := c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 1, 4000, "s1")); !errors.Is(err, ErrSessionDown) {
		t.Fatalf("expected ErrSessionDown, got %v", err)
	}

	// 放行重连，自动对账完成后解冻
	mock.SetConnectErr(nil)
	waitFor(t, "unfreeze", func() bool { return !c.Frozen() })

	waitState(t, s, o1.ID, order.StateFilled)
	got1, _ := s.Registry.Get(o1.ID)
	if got1.FilledQty != 2 || got1.AvgFillPrice != 4002 {
		t.Fatalf("o1 reconciled wrong: filled=%.1f avg=%.2f", got1.FilledQty, got1.AvgFillPrice)
	}

	// 柜台查无此单：标记 UNKNOWN，绝不猜测已撤销
	waitState(t, s, o2.ID, order.StateUnknown)

	// UNKNOWN 必须产生 CRITICAL 告警
	waitFor(t, "critical alert", func() bool {
		select {
		case a := <-feed.Subscribe():
			return a.Level == "CRITICAL" && a.Kind == "OrderUnknown"
		default:
			return false
		}
	})

	// 资金以柜台快照为准
	if cash := s.Ledger.Snapshot().Cash; cash != 99_000_000 {
		t.Fatalf("cash = %.2f, want broker snapshot value", cash)
	}
}

func TestStopWithInFlightEvents(t *testing.T) {
	// 停止与回报投递并发，绝不允许 panic 或卡死
	for i := 0; i < 50; i++ {
		s := testSession(t, permissiveLimits(), 100_000_000)
		mock := broker.NewMockSession()
		c := startCoordinator(t, s, mock, nil)

		o, err := c.Submit(context.Background(), order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 1_000_000, 4000, "s1"))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		mock.EmitAck(o.ID, "B-0001")

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 64; j++ {
				mock.EmitFill(o.ID, 1, 4000)
			}
		}()
		if err := c.Stop(); err != nil {
			t.Fatalf("stop: %v", err)
		}
		<-done
		// Stop 幂等，重复调用无副作用
		if err := c.Stop(); err != nil {
			t.Fatalf("second stop: %v", err)
		}
	}
}

func TestForceReconcileAppliesSnapshot(t *testing.T) {
	s := testSession(t, permissiveLimits(), 1_000_000)
	mock := broker.NewMockSession()
	c := startCoordinator(t, s, mock, nil)

	mock.SetAccount(ledger.BrokerSnapshot{Cash: 123_456, Positions: []ledger.Position{
		{Symbol: "RB2510", Direction: ledger.Short, Quantity: 3, AvgCost: 3600},
	}})
	if err := c.ForceReconcile(context.Background()); err != nil {
		t.Fatalf("force reconcile: %v", err)
	}
	snap := s.Ledger.Snapshot()
	if snap.Cash != 123_456 {
		t.Fatalf("cash = %.2f", snap.Cash)
	}
	if pos, ok := snap.PositionFor("RB2510"); !ok || pos.Quantity != 3 {
		t.Fatalf("position = %+v", pos)
	}
}

func TestCancelAllBySymbol(t *testing.T) {
	s := testSession(t, permissiveLimits(), 100_000_000)
	mock := broker.NewMockSession()
	c := startCoordinator(t, s, mock, nil)

	var ids []string
	for i, sym := range []string{"IF2509", "IF2509", "IC2509"} {
		o, err := c.Submit(context.Background(), order.NewIntent(sym, order.SideBuy, order.OffsetOpen, 1, 4000, "s1"))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		mock.EmitAck(o.ID, fmt.Sprintf("B-%04d", i+1))
		ids = append(ids, o.ID)
	}
	for _, id := range ids {
		waitState(t, s, id, order.StateAccepted)
	}

	n := c.CancelAll(context.Background(), "IF2509")
	if n != 2 {
		t.Fatalf("cancelled %d, want 2", n)
	}
	for _, id := range ids[:2] {
		got, _ := s.Registry.Get(id)
		if got.State != order.StateCancelling {
			t.Fatalf("order %s state = %s, want cancelling", id, got.State)
		}
	}
	got, _ := s.Registry.Get(ids[2])
	if got.State != order.StateAccepted {
		t.Fatalf("other symbol should be untouched, state = %s", got.State)
	}
}
