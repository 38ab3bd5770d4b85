package order

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"futures-exec-go/infrastructure/logger"
)

// 成交量比较容差（手）。
const qtyEpsilon = 1e-9

// Registry 订单注册表：状态机驱动的订单唯一属主。
// 所有变更先落事件日志再通知监听者，外部只拿订单副本。
type Registry struct {
	mu      sync.RWMutex
	machine *StateMachine
	journal *EventLog
	log     *logger.Logger

	orders        map[string]*Order
	byCorrelation map[string]string
	bySymbol      map[string][]string

	listeners []func(Order)
	seq       uint64
}

// NewRegistry 创建注册表。journal 为 nil 时不落盘（测试用）。
func NewRegistry(journal *EventLog, log *logger.Logger) *Registry {
	return &Registry{
		machine:       NewStateMachine(),
		journal:       journal,
		log:           log,
		orders:        make(map[string]*Order),
		byCorrelation: make(map[string]string),
		bySymbol:      make(map[string][]string),
	}
}

// AddListener 注册订单变更回调，在事件日志落盘后触发。
func (r *Registry) AddListener(fn func(Order)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Register 登记交易意图并生成订单，CorrelationID 重复时返回 ErrDuplicateIntent。
func (r *Registry) Register(intent Intent) (string, error) {
	if intent.Quantity <= 0 {
		return "", fmt.Errorf("register %s: quantity must be > 0", intent.Symbol)
	}
	if intent.CorrelationID == "" {
		return "", fmt.Errorf("register %s: correlation id required", intent.Symbol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byCorrelation[intent.CorrelationID]; ok {
		return "", fmt.Errorf("%w: correlation %s already registered as %s",
			ErrDuplicateIntent, intent.CorrelationID, existing)
	}

	now := time.Now().UTC()
	o := &Order{
		Intent:    intent,
		ID:        uuid.NewString(),
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if r.journal != nil {
		rec := Record{
			Seq:     r.seq + 1,
			OrderID: o.ID,
			Intent:  &intent,
			Result:  StateCreated,
			Time:    now,
		}
		if err := r.journal.Append(rec); err != nil {
			return "", fmt.Errorf("journal register: %w", err)
		}
	}
	r.seq++

	r.orders[o.ID] = o
	r.byCorrelation[intent.CorrelationID] = o.ID
	r.bySymbol[intent.Symbol] = append(r.bySymbol[intent.Symbol], o.ID)
	return o.ID, nil
}

// Transition 应用柜台事件并返回更新后的订单副本。
// 非法事件（未知订单、脱离状态图）记录告警并原样返回错误，从不静默吞掉。
func (r *Registry) Transition(orderID string, ev Event) (Order, error) {
	r.mu.Lock()
	o, ok := r.orders[orderID]
	if !ok {
		r.mu.Unlock()
		r.warnDesync("transition on unknown order", orderID, ev, "")
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	target, err := r.targetState(o, ev)
	if err != nil {
		from := o.State
		r.mu.Unlock()
		r.warnDesync("event not applicable", orderID, ev, from)
		return Order{}, err
	}

	// 对账到完全一致的状态是幂等空操作，不再写日志。
	if ev.Type == EventReconcile && target == o.State &&
		abs(ev.Quantity-o.FilledQty) < qtyEpsilon {
		snapshot := *o
		r.mu.Unlock()
		return snapshot, nil
	}

	if err := r.machine.ValidateTransition(o.State, target); err != nil {
		from := o.State
		r.mu.Unlock()
		r.warnDesync("illegal transition", orderID, ev, from)
		return Order{}, err
	}

	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if r.journal != nil {
		rec := Record{
			Seq:     r.seq + 1,
			OrderID: orderID,
			Event:   &ev,
			Result:  target,
			Time:    ev.Time,
		}
		if err := r.journal.Append(rec); err != nil {
			r.mu.Unlock()
			return Order{}, fmt.Errorf("journal transition: %w", err)
		}
	}
	r.seq++

	r.apply(o, ev, target)
	snapshot := *o
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return snapshot, nil
}

// targetState 由事件和当前状态推导目标状态，不改变任何数据。
func (r *Registry) targetState(o *Order, ev Event) (State, error) {
	switch ev.Type {
	case EventSubmit:
		return StateSubmitted, nil
	case EventAck:
		return StateAccepted, nil
	case EventReject:
		return StateRejected, nil
	case EventFill:
		if ev.Quantity <= 0 {
			return "", fmt.Errorf("%w: fill quantity %.4f", ErrInvalidTransition, ev.Quantity)
		}
		total := o.FilledQty + ev.Quantity
		if total > o.Intent.Quantity+qtyEpsilon {
			return "", fmt.Errorf("%w: %s filled %.4f + %.4f > requested %.4f",
				ErrOverFill, o.ID, o.FilledQty, ev.Quantity, o.Intent.Quantity)
		}
		if total >= o.Intent.Quantity-qtyEpsilon {
			return StateFilled, nil
		}
		return StatePartiallyFilled, nil
	case EventCancelRequest:
		return StateCancelling, nil
	case EventCancelConfirm:
		return StateCancelled, nil
	case EventCancelReject:
		return StateCancelRejected, nil
	case EventSuspend:
		return StatePendingRecon, nil
	case EventReconcile:
		if ev.Target == "" {
			return "", fmt.Errorf("%w: reconcile without target state", ErrInvalidTransition)
		}
		return ev.Target, nil
	case EventMarkUnknown:
		return StateUnknown, nil
	default:
		return "", fmt.Errorf("%w: unsupported event %s", ErrInvalidTransition, ev.Type)
	}
}

// apply 在持锁状态下落实事件，调用方已完成校验与日志。
func (r *Registry) apply(o *Order, ev Event, target State) {
	now := ev.Time
	switch ev.Type {
	case EventSubmit:
		o.SubmittedAt = now
	case EventAck:
		o.BrokerID = ev.BrokerID
	case EventReject:
		o.RejectReason = ev.Reason
	case EventFill:
		trade := Trade{
			OrderID:   o.ID,
			Symbol:    o.Intent.Symbol,
			Side:      o.Intent.Side,
			Offset:    o.Intent.Offset,
			Quantity:  ev.Quantity,
			Price:     ev.Price,
			Timestamp: now,
		}
		// 加权平均成交价
		total := o.FilledQty + ev.Quantity
		o.AvgFillPrice = (o.AvgFillPrice*o.FilledQty + ev.Price*ev.Quantity) / total
		o.FilledQty = total
		o.Trades = append(o.Trades, trade)
	case EventCancelReject:
		o.RejectReason = ev.Reason
	case EventReconcile:
		// 柜台回报永远权威：直接覆盖累计成交。
		if ev.Quantity > 0 {
			o.FilledQty = ev.Quantity
			if ev.Price > 0 {
				o.AvgFillPrice = ev.Price
			}
		}
		if ev.BrokerID != "" {
			o.BrokerID = ev.BrokerID
		}
	case EventMarkUnknown:
		o.RejectReason = ev.Reason
	}
	o.State = target
	o.UpdatedAt = now
}

func (r *Registry) warnDesync(msg, orderID string, ev Event, from State) {
	if r.log == nil {
		return
	}
	r.log.LogError(ErrInvalidTransition, map[string]interface{}{
		"detail":   msg,
		"order_id": orderID,
		"event":    string(ev.Type),
		"from":     string(from),
	})
}

// Get 返回订单副本。
func (r *Registry) Get(orderID string) (Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// GetByCorrelation 按 CorrelationID 查找订单。
func (r *Registry) GetByCorrelation(correlationID string) (Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCorrelation[correlationID]
	if !ok {
		return Order{}, false
	}
	return *r.orders[id], true
}

// Query 返回满足条件的订单序列。序列基于调用瞬间的一致快照，
// 有限、可多次 range（恢复与监控场景使用）。
func (r *Registry) Query(pred func(Order) bool) iter.Seq[Order] {
	r.mu.RLock()
	snapshot := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		snapshot = append(snapshot, *o)
	}
	r.mu.RUnlock()

	return func(yield func(Order) bool) {
		for _, o := range snapshot {
			if pred != nil && !pred(o) {
				continue
			}
			if !yield(o) {
				return
			}
		}
	}
}

// ActiveOrders 返回所有未到终态的订单副本。
func (r *Registry) ActiveOrders() []Order {
	var out []Order
	for o := range r.Query(func(o Order) bool { return !o.State.Terminal() }) {
		out = append(out, o)
	}
	return out
}

// Stats 订单统计。
type Stats struct {
	Total     int
	ByState   map[State]int
	FillRate  float64 // 完全成交订单占比
	TotalQty  float64
	FilledQty float64
}

// Statistics 汇总当前全部订单的状态分布与成交率。
func (r *Registry) Statistics() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{ByState: make(map[State]int)}
	for _, o := range r.orders {
		s.Total++
		s.ByState[o.State]++
		s.TotalQty += o.Intent.Quantity
		s.FilledQty += o.FilledQty
	}
	if s.Total > 0 {
		s.FillRate = float64(s.ByState[StateFilled]) / float64(s.Total)
	}
	return s
}

// Restore 重放一条日志记录，Seq 不大于已应用序号的记录直接跳过（幂等）。
func (r *Registry) Restore(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Seq <= r.seq {
		return nil
	}

	if rec.Intent != nil {
		o := &Order{
			Intent:    *rec.Intent,
			ID:        rec.OrderID,
			State:     StateCreated,
			CreatedAt: rec.Time,
			UpdatedAt: rec.Time,
		}
		r.orders[o.ID] = o
		r.byCorrelation[rec.Intent.CorrelationID] = o.ID
		r.bySymbol[rec.Intent.Symbol] = append(r.bySymbol[rec.Intent.Symbol], o.ID)
		r.seq = rec.Seq
		return nil
	}

	if rec.Event == nil {
		return fmt.Errorf("restore seq %d: empty record", rec.Seq)
	}
	o, ok := r.orders[rec.OrderID]
	if !ok {
		return fmt.Errorf("restore seq %d: %w: %s", rec.Seq, ErrUnknownOrder, rec.OrderID)
	}
	r.apply(o, *rec.Event, rec.Result)
	r.seq = rec.Seq
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
