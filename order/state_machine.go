package order

import "fmt"

// Transition 状态转换边
type Transition struct {
	From State
	To   State
}

// StateMachine 订单状态机，只回答某条边是否合法。
type StateMachine struct {
	transitions map[Transition]bool
}

// NewStateMachine 构建包含全部合法转换的状态机。
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[Transition]bool)}
	sm.initializeTransitions()
	return sm
}

func (sm *StateMachine) initializeTransitions() {
	legal := []Transition{
		// 从 CREATED
		{StateCreated, StateSubmitted},
		{StateCreated, StateRejected},

		// 从 SUBMITTED
		{StateSubmitted, StateAccepted},
		{StateSubmitted, StateRejected},
		{StateSubmitted, StatePartiallyFilled},
		{StateSubmitted, StateFilled},
		{StateSubmitted, StateCancelling},
		{StateSubmitted, StateCancelled},
		{StateSubmitted, StatePendingRecon},

		// 从 ACCEPTED
		{StateAccepted, StatePartiallyFilled},
		{StateAccepted, StateFilled},
		{StateAccepted, StateCancelling},
		{StateAccepted, StateCancelled},
		{StateAccepted, StatePendingRecon},

		// 从 PARTIALLY_FILLED（部分成交可重入）
		{StatePartiallyFilled, StatePartiallyFilled},
		{StatePartiallyFilled, StateFilled},
		{StatePartiallyFilled, StateCancelling},
		{StatePartiallyFilled, StateCancelled},
		{StatePartiallyFilled, StatePendingRecon},

		// 从 CANCELLING（撤单与成交竞争，以柜台先确认者为准）
		{StateCancelling, StateCancelled},
		{StateCancelling, StateCancelRejected},
		{StateCancelling, StatePartiallyFilled},
		{StateCancelling, StateFilled},
		{StateCancelling, StatePendingRecon},

		// 从 CANCEL_REJECTED（撤单被拒后订单继续存活）
		{StateCancelRejected, StatePartiallyFilled},
		{StateCancelRejected, StateFilled},
		{StateCancelRejected, StateCancelling},
		{StateCancelRejected, StateCancelled},
		{StateCancelRejected, StatePendingRecon},

		// 从 PENDING_RECON（只能由对账结果驱动，柜台认定的任何状态都要能落地）
		{StatePendingRecon, StateAccepted},
		{StatePendingRecon, StatePartiallyFilled},
		{StatePendingRecon, StateFilled},
		{StatePendingRecon, StateRejected},
		{StatePendingRecon, StateCancelled},
		{StatePendingRecon, StateCancelRejected},
		{StatePendingRecon, StateUnknown},

		// 终态（FILLED/REJECTED/CANCELLED/UNKNOWN）没有出边
	}

	for _, t := range legal {
		sm.transitions[t] = true
	}
}

// ValidateTransition 校验状态转换是否合法。
// 终态不接受任何事件，重复事件同样视为非法，由上层记录告警。
func (sm *StateMachine) ValidateTransition(from, to State) error {
	if sm.transitions[Transition{From: from, To: to}] {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// AllowedTransitions 返回当前状态的全部合法目标状态。
func (sm *StateMachine) AllowedTransitions(current State) []State {
	allowed := make([]State, 0)
	for t := range sm.transitions {
		if t.From == current {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}
