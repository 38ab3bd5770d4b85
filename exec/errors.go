package exec

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionDown 会话冻结中，快速失败，不接受新委托。
	ErrSessionDown = errors.New("session down")
	// ErrBrokerUnavailable 报单未能送达柜台（含超时）。
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrNotCancellable 订单当前状态不可撤。
	ErrNotCancellable = errors.New("order not cancellable")
)

// RiskRejectedError 风控拒单：意图未进入注册表，可由使用者修正后重新提交。
type RiskRejectedError struct {
	Rule   string
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return fmt.Sprintf("risk rejected by %s rule: %s", e.Rule, e.Reason)
}

// IsRiskRejected 判断错误是否为风控拒单。
func IsRiskRejected(err error) bool {
	var rr *RiskRejectedError
	return errors.As(err, &rr)
}
