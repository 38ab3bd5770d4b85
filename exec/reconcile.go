package exec

import (
	"context"
	"fmt"
	"time"

	"futures-exec-go/order"
)

// handleDisconnect 断线处理：冻结新委托，把所有在途订单转入待对账，
// 然后开始有界退避重连。
func (c *Coordinator) handleDisconnect() {
	if !c.frozen.CompareAndSwap(false, true) {
		return
	}
	c.log.Warn("broker session lost, submissions frozen")
	if c.alerts != nil {
		_ = c.alerts.Error("SessionDown", "broker session lost, submissions frozen", nil)
	}

	suspended := 0
	for _, o := range c.session.Registry.ActiveOrders() {
		if o.State == order.StateCreated || o.State == order.StatePendingRecon {
			continue
		}
		if _, err := c.session.Registry.Transition(o.ID, order.Event{
			Type: order.EventSuspend, OrderID: o.ID,
		}); err == nil {
			suspended++
		}
	}
	c.log.LogReconcile("suspend", map[string]interface{}{"orders": suspended})

	c.wg.Add(1)
	go c.autoReconnect()
}

// autoReconnect 有界退避重连；尝试次数用尽后会话判死，只能人工介入。
func (c *Coordinator) autoReconnect() {
	defer c.wg.Done()

	b := newBackoff(c.cfg.BackoffInitial, c.cfg.BackoffMax)
	for attempt := 1; attempt <= c.cfg.MaxConnectRetries; attempt++ {
		if !b.wait(c.runCtx) {
			return
		}
		if err := c.broker.Connect(c.runCtx); err != nil {
			c.log.Warn(fmt.Sprintf("reconnect attempt %d failed: %v", attempt, err))
			continue
		}
		if err := c.Reconcile(c.runCtx); err != nil {
			c.log.LogError(err, map[string]interface{}{"event": "reconnect_reconcile"})
			continue
		}
		return
	}

	c.log.Error("reconnect attempts exhausted, session marked down")
	if c.alerts != nil {
		_ = c.alerts.Critical("SessionDead",
			fmt.Sprintf("reconnect failed after %d attempts", c.cfg.MaxConnectRetries), nil)
	}
}

// Reconcile 重连后的恢复对账。柜台回报永远权威：
// 本地待对账订单逐一修正到柜台认定的状态；柜台没有的订单
// 标记 UNKNOWN 并上报操作员，绝不猜测它已撤销。
func (c *Coordinator) Reconcile(ctx context.Context) error {
	reports, err := c.broker.QueryOrders(ctx)
	if err != nil {
		return fmt.Errorf("query orders: %w", err)
	}
	snap, err := c.broker.QueryAccount(ctx)
	if err != nil {
		return fmt.Errorf("query account: %w", err)
	}

	byCorrelation := make(map[string]order.Event, len(reports))
	for _, rep := range reports {
		byCorrelation[rep.CorrelationID] = order.Event{
			Type:     order.EventReconcile,
			BrokerID: rep.BrokerID,
			Target:   rep.State,
			Quantity: rep.FilledQty,
			Price:    rep.AvgFillPrice,
		}
	}

	corrected, unknown := 0, 0
	for o := range c.session.Registry.Query(func(o order.Order) bool {
		return o.State == order.StatePendingRecon
	}) {
		ev, found := byCorrelation[o.Intent.CorrelationID]
		if !found {
			if _, err := c.session.Registry.Transition(o.ID, order.Event{
				Type: order.EventMarkUnknown, OrderID: o.ID,
				Reason: "missing from broker report after reconnect",
			}); err == nil {
				unknown++
			}
			c.log.LogError(order.ErrUnknownOrder, map[string]interface{}{
				"order_id": o.ID, "detail": "order missing from broker report",
			})
			if c.alerts != nil {
				_ = c.alerts.Critical("OrderUnknown",
					"order missing from broker report, manual intervention required",
					map[string]interface{}{"order_id": o.ID, "symbol": o.Intent.Symbol})
			}
			continue
		}
		ev.OrderID = o.ID
		if _, err := c.session.Registry.Transition(o.ID, ev); err != nil {
			c.onDesync(ev, err)
			continue
		}
		if ev.BrokerID != "" {
			c.mu.Lock()
			c.orderByBroker[ev.BrokerID] = o.ID
			c.mu.Unlock()
		}
		corrected++
	}

	before := c.session.Ledger.Snapshot()
	seq := c.reconSeq.Add(1)
	applied := c.session.Ledger.ApplyBrokerSnapshot(seq, snap)
	after := c.session.Ledger.Snapshot()

	c.log.LogReconcile("reconnect_complete", map[string]interface{}{
		"corrected":   corrected,
		"unknown":     unknown,
		"applied":     applied,
		"cash_before": before.Cash,
		"cash_after":  after.Cash,
	})

	c.frozen.Store(false)
	return nil
}

// reconcileLoop 周期性比对本地账本与柜台快照。
// 超出容差只告警，从不静默自动修正；修正必须走 ForceReconcile。
func (c *Coordinator) reconcileLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ReconcileInterval)
	defer ticker.Stop()

	day := time.Now().UTC().YearDay()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if today := time.Now().UTC().YearDay(); today != day {
				day = today
				c.session.Ledger.ResetDay()
				c.log.LogReconcile("day_rollover", nil)
			}
			if c.frozen.Load() {
				continue
			}
			c.checkDivergence()
		}
	}
}

func (c *Coordinator) checkDivergence() {
	ctx, cancel := context.WithTimeout(c.runCtx, c.cfg.PlaceTimeout)
	defer cancel()

	snap, err := c.broker.QueryAccount(ctx)
	if err != nil {
		c.log.Warn(fmt.Sprintf("periodic reconcile query failed: %v", err))
		return
	}

	d := c.session.Ledger.Compare(snap)
	if !d.Exceeds(c.cfg.ReconcileTolerance) {
		return
	}

	c.log.LogReconcile("divergence", map[string]interface{}{
		"max_qty_diff": d.MaxQtyDiff,
		"cash_diff":    d.CashDiff,
		"symbols":      d.DiffSymbols,
	})
	if c.alerts != nil {
		_ = c.alerts.Error("LedgerDivergence",
			fmt.Sprintf("ledger diverges from broker: qty %.6f cash %.2f", d.MaxQtyDiff, d.CashDiff),
			map[string]interface{}{"symbols": d.DiffSymbols})
	}
	if c.observer != nil {
		c.observer.DivergenceDetected(d)
	}
}

// ForceReconcile 操作员显式触发的账本修正：
// 用柜台快照覆盖本地账本，并记录修正前后的完整差异。
func (c *Coordinator) ForceReconcile(ctx context.Context) error {
	snap, err := c.broker.QueryAccount(ctx)
	if err != nil {
		return fmt.Errorf("query account: %w", err)
	}

	before := c.session.Ledger.Snapshot()
	seq := c.reconSeq.Add(1)
	if !c.session.Ledger.ApplyBrokerSnapshot(seq, snap) {
		return fmt.Errorf("stale snapshot discarded (seq %d)", seq)
	}
	after := c.session.Ledger.Snapshot()

	c.log.LogReconcile("force_reconcile", map[string]interface{}{
		"cash_before":      before.Cash,
		"cash_after":       after.Cash,
		"positions_before": len(before.Positions),
		"positions_after":  len(after.Positions),
	})
	return nil
}
