package risk

import (
	"fmt"

	"futures-exec-go/ledger"
	"futures-exec-go/order"
)

// Result 风控检查结果。
type Result struct {
	Passed bool
	Rule   string // 首个失败的规则名
	Reason string
}

// Pass 通过结果。
func Pass() Result { return Result{Passed: true} }

// Block 阻断结果。
func Block(rule string, err error, format string, args ...interface{}) Result {
	return Result{
		Passed: false,
		Rule:   rule,
		Reason: fmt.Sprintf("%v: %s", err, fmt.Sprintf(format, args...)),
	}
}

// 规则实现均为纯函数：输入意图、账本快照与限额，输出检查结果，
// 不持有共享状态。相同输入得到相同结论。

// CheckPosition 持仓规则：单品种手数、持仓品种数、持仓价值占比。
// 平仓意图只校验有仓可平，不受持仓上限约束。
func CheckPosition(intent order.Intent, snap ledger.Snapshot, limits Limits, multiplier float64) Result {
	if intent.Offset == order.OffsetClose {
		pos, ok := snap.PositionFor(intent.Symbol)
		if !ok || pos.Quantity+1e-9 < intent.Quantity {
			held := 0.0
			if ok {
				held = pos.Quantity
			}
			return Block("position", ErrNoCloseablePos,
				"%s close %.0f > held %.0f", intent.Symbol, intent.Quantity, held)
		}
		return Pass()
	}

	if limits.MaxPositionPerSymbol > 0 {
		held := 0.0
		if pos, ok := snap.PositionFor(intent.Symbol); ok {
			held = pos.Quantity
		}
		total := held + intent.Quantity
		if total > limits.MaxPositionPerSymbol {
			return Block("position", ErrPositionExceed,
				"%s held %.0f + new %.0f > limit %.0f",
				intent.Symbol, held, intent.Quantity, limits.MaxPositionPerSymbol)
		}
	}

	if limits.MaxTotalPositions > 0 {
		if _, ok := snap.PositionFor(intent.Symbol); !ok {
			if len(snap.Positions) >= limits.MaxTotalPositions {
				return Block("position", ErrSymbolsExceed,
					"%d symbols held, limit %d", len(snap.Positions), limits.MaxTotalPositions)
			}
		}
	}

	if limits.MaxPositionValueRatio > 0 && snap.Equity > 0 {
		value := intent.Price * intent.Quantity * multiplier
		if ratio := value / snap.Equity; ratio > limits.MaxPositionValueRatio {
			return Block("position", ErrValueRatio,
				"%s value %.2f is %.2f%% of equity, limit %.2f%%",
				intent.Symbol, value, ratio*100, limits.MaxPositionValueRatio*100)
		}
	}

	return Pass()
}

// CheckCapital 资金规则：单笔金额、当日亏损、可用资金比例。
func CheckCapital(intent order.Intent, snap ledger.Snapshot, limits Limits, multiplier float64) Result {
	amount := intent.Price * intent.Quantity * multiplier

	if limits.MaxOrderAmount > 0 && amount > limits.MaxOrderAmount {
		return Block("capital", ErrOrderAmount,
			"amount %.2f > limit %.2f", amount, limits.MaxOrderAmount)
	}

	loss := -snap.DailyPnL()
	if limits.MaxDailyLoss > 0 && loss > limits.MaxDailyLoss {
		return Block("capital", ErrDailyLoss,
			"daily loss %.2f > limit %.2f", loss, limits.MaxDailyLoss)
	}
	if limits.MaxDailyLossRatio > 0 && snap.DayStartEquity > 0 {
		if ratio := loss / snap.DayStartEquity; ratio > limits.MaxDailyLossRatio {
			return Block("capital", ErrDailyLoss,
				"daily loss %.2f%% > limit %.2f%%", ratio*100, limits.MaxDailyLossRatio*100)
		}
	}

	if limits.MinAvailableRatio > 0 && snap.Equity > 0 {
		if ratio := snap.Available / snap.Equity; ratio < limits.MinAvailableRatio {
			return Block("capital", ErrAvailableLow,
				"available %.2f%% < limit %.2f%%", ratio*100, limits.MinAvailableRatio*100)
		}
	}

	return Pass()
}

// CheckRate 订单规则：滑动窗口内的下单频率与报价偏离。
// 窗口内计数由调用方（Gate）维护并作为入参传入，保持规则本身无状态。
func CheckRate(intent order.Intent, recentTotal, recentSymbol int, refPrice float64, limits Limits) Result {
	if limits.MaxOrdersPerMinute > 0 && recentTotal >= limits.MaxOrdersPerMinute {
		return Block("rate", ErrTooFrequent,
			"%d orders in window, limit %d", recentTotal, limits.MaxOrdersPerMinute)
	}
	if limits.MaxOrdersPerSymbolPerMinute > 0 && recentSymbol >= limits.MaxOrdersPerSymbolPerMinute {
		return Block("rate", ErrTooFrequent,
			"%s: %d orders in window, limit %d", intent.Symbol, recentSymbol, limits.MaxOrdersPerSymbolPerMinute)
	}

	if limits.MaxPriceDeviationRatio > 0 && refPrice > 0 && !intent.IsMarket() {
		deviation := abs(intent.Price-refPrice) / refPrice
		if deviation > limits.MaxPriceDeviationRatio {
			return Block("rate", ErrPriceDeviation,
				"price %.2f vs ref %.2f, deviation %.2f%% > limit %.2f%%",
				intent.Price, refPrice, deviation*100, limits.MaxPriceDeviationRatio*100)
		}
	}

	return Pass()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
