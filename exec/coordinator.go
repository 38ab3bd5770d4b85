package exec

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"futures-exec-go/broker"
	"futures-exec-go/infrastructure/alert"
	"futures-exec-go/infrastructure/logger"
	"futures-exec-go/ledger"
	"futures-exec-go/order"
	"futures-exec-go/risk"
)

// Config 协调器参数。零值字段取文档化默认值。
type Config struct {
	PlaceTimeout       time.Duration // 报单柜台响应上限，默认 3s
	CancelTimeout      time.Duration // 撤单柜台响应上限，默认 3s
	ReconcileInterval  time.Duration // 周期对账间隔，默认 30s
	ReconcileTolerance float64       // 对账偏差容忍度（手），默认 1e-6
	BackoffInitial     time.Duration // 重连退避起步，默认 500ms
	BackoffMax         time.Duration // 重连退避封顶，默认 10s
	MaxConnectRetries  int           // 重连尝试上限，默认 5
	Shards             int           // 事件分片 worker 数，默认 8
}

func (c *Config) applyDefaults() {
	if c.PlaceTimeout <= 0 {
		c.PlaceTimeout = 3 * time.Second
	}
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = 3 * time.Second
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 30 * time.Second
	}
	if c.ReconcileTolerance <= 0 {
		c.ReconcileTolerance = 1e-6
	}
	if c.MaxConnectRetries <= 0 {
		c.MaxConnectRetries = 5
	}
	if c.Shards <= 0 {
		c.Shards = 8
	}
}

// Callbacks 策略侧回调。订单与成交都在账本落账之后通知。
type Callbacks struct {
	OnOrderUpdate func(order.Order)
	OnTrade       func(order.Trade)
}

// Observer 监控侧观察点（指标采集），实现方不得阻塞。
type Observer interface {
	OrderSubmitted(o order.Order)
	OrderUpdated(o order.Order)
	TradeCommitted(t order.Trade)
	RiskRejected(rule string)
	DivergenceDetected(d ledger.Divergence)
}

// Coordinator 执行协调器：接收意图、过风控、报柜台、
// 消费回报驱动注册表与账本，并负责断线冻结与对账恢复。
//
// 并发纪律：同一订单的全部状态转换顺序执行（按订单号分片），
// 不同订单之间并行；注册表与账本是仅有的共享可变状态。
type Coordinator struct {
	cfg      Config
	session  *Session
	broker   broker.Session
	log      *logger.Logger
	alerts   *alert.Manager
	notifier *risk.Notifier

	callbacks Callbacks
	observer  Observer

	frozen  atomic.Bool
	started atomic.Bool
	stopped atomic.Bool

	shards    []chan order.Event
	wg        sync.WaitGroup
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc

	mu            sync.Mutex
	orderByBroker map[string]string // 柜台订单号 -> 本地订单号

	reconSeq atomic.Uint64
}

// NewCoordinator 创建协调器。alerts、callbacks、observer 均可为空。
func NewCoordinator(cfg Config, session *Session, bs broker.Session,
	log *logger.Logger, alerts *alert.Manager, callbacks Callbacks, observer Observer) *Coordinator {

	cfg.applyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	c := &Coordinator{
		cfg:           cfg,
		session:       session,
		broker:        bs,
		log:           log,
		alerts:        alerts,
		notifier:      risk.NewNotifier(log, alerts),
		callbacks:     callbacks,
		observer:      observer,
		stopCh:        make(chan struct{}),
		orderByBroker: make(map[string]string),
	}
	c.shards = make([]chan order.Event, cfg.Shards)
	for i := range c.shards {
		c.shards[i] = make(chan order.Event, 128)
	}
	return c
}

// Start 连接柜台并启动分片 worker、回报泵与周期对账。
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator already started")
	}
	if err := c.broker.Connect(ctx); err != nil {
		c.started.Store(false)
		return fmt.Errorf("connect broker: %w", err)
	}
	c.runCtx, c.runCancel = context.WithCancel(context.Background())

	for i := range c.shards {
		c.wg.Add(1)
		go c.shardWorker(c.shards[i])
	}
	c.wg.Add(1)
	go c.eventPump()
	c.wg.Add(1)
	go c.reconcileLoop()

	c.log.Info("coordinator started")
	return nil
}

// Stop 停止协调器并关闭柜台会话，可重复调用。
// 分片通道不关闭：回报泵与报单路径可能仍在投递，
// worker 统一由停止信号退出，在途事件丢弃。
func (c *Coordinator) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stopCh)
	if c.runCancel != nil {
		c.runCancel()
	}
	err := c.broker.Close()
	c.wg.Wait()
	return err
}

// Frozen 当前是否处于冻结（断线）状态。
func (c *Coordinator) Frozen() bool { return c.frozen.Load() }

// Submit 提交交易意图。
// 风控拒绝立即返回 RiskRejectedError，意图不进入注册表；
// 通过后先登记再报柜台，同一 CorrelationID 至多报出一次。
func (c *Coordinator) Submit(ctx context.Context, intent order.Intent) (order.Order, error) {
	if c.frozen.Load() {
		return order.Order{}, ErrSessionDown
	}

	if res := c.session.Gate.Check(intent); !res.Passed {
		c.notifier.NotifyRejected(intent, res)
		if c.observer != nil {
			c.observer.RiskRejected(res.Rule)
		}
		return order.Order{}, &RiskRejectedError{Rule: res.Rule, Reason: res.Reason}
	}

	orderID, err := c.session.Registry.Register(intent)
	if err != nil {
		return order.Order{}, err
	}

	// 报出之前先持久化 SUBMITTED，柜台事件此刻尚不可能存在，
	// 该订单号上不会有并发转换。
	o, err := c.session.Registry.Transition(orderID, order.Event{
		Type: order.EventSubmit, OrderID: orderID,
	})
	if err != nil {
		return order.Order{}, fmt.Errorf("mark submitted: %w", err)
	}
	c.session.Gate.RecordSubmit(intent.Symbol)
	if c.observer != nil {
		c.observer.OrderSubmitted(o)
	}
	c.log.LogOrder("submitted", orderID, map[string]interface{}{
		"symbol": intent.Symbol, "side": string(intent.Side),
		"offset": string(intent.Offset), "qty": intent.Quantity, "price": intent.Price,
	})

	pctx, cancel := context.WithTimeout(ctx, c.cfg.PlaceTimeout)
	defer cancel()
	brokerID, err := c.broker.Place(pctx, o)
	if err != nil {
		// 超时可能已报入柜台，由下一轮对账兜底，这里绝不重试。
		c.dispatch(order.Event{
			Type: order.EventReject, OrderID: orderID,
			Reason: fmt.Sprintf("BrokerUnavailable: %v", err),
		})
		return o, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	c.mu.Lock()
	c.orderByBroker[brokerID] = orderID
	c.mu.Unlock()

	final, _ := c.session.Registry.Get(orderID)
	return final, nil
}

// Cancel 发起撤单：先转入 CANCELLING，柜台确认后才会到 CANCELLED。
// 撤单与成交竞争时以柜台先确认的一方为准，注册表是唯一裁决者。
func (c *Coordinator) Cancel(ctx context.Context, orderID string) error {
	o, ok := c.session.Registry.Get(orderID)
	if !ok {
		return fmt.Errorf("%w: %s", order.ErrUnknownOrder, orderID)
	}
	if !o.Active() || o.State == order.StateCancelling {
		return fmt.Errorf("%w: %s in %s", ErrNotCancellable, orderID, o.State)
	}
	if o.BrokerID == "" {
		return fmt.Errorf("%w: %s not acknowledged yet", ErrNotCancellable, orderID)
	}

	if _, err := c.session.Registry.Transition(orderID, order.Event{
		Type: order.EventCancelRequest, OrderID: orderID,
	}); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.CancelTimeout)
	defer cancel()
	if err := c.broker.Cancel(cctx, o.BrokerID); err != nil {
		c.dispatch(order.Event{
			Type: order.EventCancelReject, OrderID: orderID,
			Reason: fmt.Sprintf("cancel request failed: %v", err),
		})
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}
	return nil
}

// CancelAll 撤掉指定品种（空串为全部）的所有活跃订单，返回发起撤单的数量。
func (c *Coordinator) CancelAll(ctx context.Context, symbol string) int {
	count := 0
	for _, o := range c.session.Registry.ActiveOrders() {
		if symbol != "" && o.Intent.Symbol != symbol {
			continue
		}
		if o.State == order.StateCancelling {
			continue
		}
		if err := c.Cancel(ctx, o.ID); err == nil {
			count++
		}
	}
	return count
}

// dispatch 把事件路由到订单所属分片，保证同一订单事件顺序处理。
// 停止后投递直接丢弃，不阻塞也不 panic。
func (c *Coordinator) dispatch(ev order.Event) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.OrderID))
	select {
	case c.shards[int(h.Sum32())%len(c.shards)] <- ev:
	case <-c.stopCh:
	}
}

func (c *Coordinator) eventPump() {
	defer c.wg.Done()
	events := c.broker.Events()
	for {
		select {
		case <-c.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == broker.EventDisconnected {
				c.handleDisconnect()
				continue
			}
			c.resolveOrderID(&ev)
			c.dispatch(ev)
		}
	}
}

// resolveOrderID 柜台回报可能只带柜台订单号，翻译回本地订单号。
func (c *Coordinator) resolveOrderID(ev *order.Event) {
	if ev.OrderID != "" {
		return
	}
	c.mu.Lock()
	ev.OrderID = c.orderByBroker[ev.BrokerID]
	c.mu.Unlock()
}

func (c *Coordinator) shardWorker(ch chan order.Event) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case ev := <-ch:
			c.applyEvent(ev)
		}
	}
}

// applyEvent 应用单条柜台事件：注册表转换、成交落账、回调通知。
func (c *Coordinator) applyEvent(ev order.Event) {
	o, err := c.session.Registry.Transition(ev.OrderID, ev)
	if err != nil {
		c.onDesync(ev, err)
		return
	}

	if ev.Type == order.EventAck && ev.BrokerID != "" {
		c.mu.Lock()
		c.orderByBroker[ev.BrokerID] = ev.OrderID
		c.mu.Unlock()
	}

	if ev.Type == order.EventFill {
		c.commitFill(o, ev)
	}

	if c.callbacks.OnOrderUpdate != nil {
		c.callbacks.OnOrderUpdate(o)
	}
	if c.observer != nil {
		c.observer.OrderUpdated(o)
	}
}

// commitFill 把成交原子地落入账本并通知成交回调。
func (c *Coordinator) commitFill(o order.Order, ev order.Event) {
	fill := ledger.Fill{
		Symbol:   o.Intent.Symbol,
		Buy:      o.Intent.Side == order.SideBuy,
		Open:     o.Intent.Offset == order.OffsetOpen,
		Quantity: ev.Quantity,
		Price:    ev.Price,
		Time:     ev.Time,
	}
	if err := c.session.Ledger.Commit(fill); err != nil {
		// 成交无法落账说明本地视图已经脱节，只告警不掩盖。
		c.log.LogError(err, map[string]interface{}{"order_id": o.ID, "event": "commit_fill"})
		if c.alerts != nil {
			_ = c.alerts.Critical("LedgerCommitFailed", err.Error(),
				map[string]interface{}{"order_id": o.ID})
		}
		return
	}
	c.session.Ledger.Mark(o.Intent.Symbol, ev.Price)

	trade := order.Trade{
		OrderID: o.ID, Symbol: o.Intent.Symbol,
		Side: o.Intent.Side, Offset: o.Intent.Offset,
		Quantity: ev.Quantity, Price: ev.Price, Timestamp: ev.Time,
	}
	c.log.LogTrade("fill", map[string]interface{}{
		"order_id": o.ID, "symbol": trade.Symbol,
		"qty": trade.Quantity, "price": trade.Price,
	})
	if c.callbacks.OnTrade != nil {
		c.callbacks.OnTrade(trade)
	}
	if c.observer != nil {
		c.observer.TradeCommitted(trade)
	}
}

// onDesync 状态脱节（未知订单/非法转换）：critical 告警上报操作员，
// 绝不静默修复。终态订单保持终态，不会被强行改写。
func (c *Coordinator) onDesync(ev order.Event, err error) {
	c.log.LogError(err, map[string]interface{}{
		"order_id": ev.OrderID, "event": string(ev.Type), "detail": "broker event desync",
	})
	if c.alerts != nil {
		_ = c.alerts.Critical("StateDesync", err.Error(), map[string]interface{}{
			"order_id": ev.OrderID, "event": string(ev.Type),
		})
	}
}
