package order

// State 订单生命周期状态。
type State string

const (
	StateCreated         State = "CREATED"          // 已登记，尚未报出
	StateSubmitted       State = "SUBMITTED"        // 已报出，等待柜台确认
	StateAccepted        State = "ACCEPTED"         // 柜台已确认
	StatePartiallyFilled State = "PARTIALLY_FILLED" // 部分成交（可重入）
	StateFilled          State = "FILLED"           // 全部成交（终态）
	StateRejected        State = "REJECTED"         // 已拒绝（终态）
	StateCancelling      State = "CANCELLING"       // 撤单请求已发出
	StateCancelled       State = "CANCELLED"        // 已撤销（终态）
	StateCancelRejected  State = "CANCEL_REJECTED"  // 撤单被拒，订单继续存活
	StatePendingRecon    State = "PENDING_RECON"    // 断线后等待对账
	StateUnknown         State = "UNKNOWN"          // 对账后柜台无此单，需人工处理（终态）
)

// Terminal 终态订单不再接受任何事件。
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateRejected, StateCancelled, StateUnknown:
		return true
	default:
		return false
	}
}
