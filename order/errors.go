package order

import "errors"

var (
	// ErrDuplicateIntent CorrelationID 已登记过订单。
	ErrDuplicateIntent = errors.New("duplicate intent")
	// ErrUnknownOrder 订单不存在。
	ErrUnknownOrder = errors.New("unknown order")
	// ErrInvalidTransition 事件不适用于当前状态，提示本地与柜台状态脱节。
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrOverFill 累计成交量将超过委托量。
	ErrOverFill = errors.New("fill exceeds requested quantity")
)
