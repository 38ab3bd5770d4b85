package order

import (
	"time"

	"github.com/google/uuid"
)

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Offset 开平标志
type Offset string

const (
	OffsetOpen  Offset = "OPEN"
	OffsetClose Offset = "CLOSE"
)

// Type 订单类型
type Type string

const (
	TypeLimit     Type = "LIMIT"
	TypeMarket    Type = "MARKET"
	TypeStop      Type = "STOP"
	TypeStopLimit Type = "STOP_LIMIT"
)

// Intent 策略产生的交易意图，提交后只读。
// CorrelationID 由客户端生成且全局唯一，是幂等提交的依据。
type Intent struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Offset        Offset    `json:"offset"`
	Type          Type      `json:"type"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"` // 市价单为 0
	StrategyID    string    `json:"strategy_id"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewIntent 构造交易意图并生成 CorrelationID。
func NewIntent(symbol string, side Side, offset Offset, qty, price float64, strategyID string) Intent {
	return Intent{
		Symbol:        symbol,
		Side:          side,
		Offset:        offset,
		Type:          TypeLimit,
		Quantity:      qty,
		Price:         price,
		StrategyID:    strategyID,
		CorrelationID: uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
	}
}

// IsMarket 市价单不做价格偏离校验。
func (i Intent) IsMarket() bool { return i.Type == TypeMarket }

// Trade 单笔成交回报，归属唯一订单。
type Trade struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Offset    Offset    `json:"offset"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Order 风控通过后的订单对象，Registry 是唯一属主，
// 其它组件只通过 ID 引用并拿副本。
type Order struct {
	Intent Intent `json:"intent"`

	ID           string  `json:"id"`
	BrokerID     string  `json:"broker_id"` // 柜台确认前为空
	State        State   `json:"state"`
	FilledQty    float64 `json:"filled_qty"`
	AvgFillPrice float64 `json:"avg_fill_price"`
	RejectReason string  `json:"reject_reason,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Trades []Trade `json:"trades,omitempty"`
}

// Remaining 剩余未成交数量。
func (o Order) Remaining() float64 { return o.Intent.Quantity - o.FilledQty }

// Active 是否仍可能产生成交（可撤）。
func (o Order) Active() bool {
	switch o.State {
	case StateSubmitted, StateAccepted, StatePartiallyFilled, StateCancelling, StateCancelRejected:
		return true
	default:
		return false
	}
}
