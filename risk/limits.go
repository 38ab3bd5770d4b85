package risk

// Limits 会话级风控参数，开盘加载后不可变，改限额需要重建会话。
// 零值字段表示该项不限制。
type Limits struct {
	// 持仓限制
	MaxPositionPerSymbol  float64 `yaml:"max_position_per_symbol"`  // 单品种最大持仓手数
	MaxTotalPositions     int     `yaml:"max_total_positions"`      // 最大持仓品种数
	MaxPositionValueRatio float64 `yaml:"max_position_value_ratio"` // 单品种持仓价值占权益比例上限

	// 资金限制
	MaxOrderAmount    float64 `yaml:"max_order_amount"`     // 单笔订单最大金额
	MaxDailyLoss      float64 `yaml:"max_daily_loss"`       // 单日最大亏损金额
	MaxDailyLossRatio float64 `yaml:"max_daily_loss_ratio"` // 单日最大亏损占日初权益比例
	MinAvailableRatio float64 `yaml:"min_available_ratio"`  // 可用资金最低比例

	// 订单限制
	MaxOrdersPerMinute          int     `yaml:"max_orders_per_minute"`            // 每分钟最大下单数
	MaxOrdersPerSymbolPerMinute int     `yaml:"max_orders_per_symbol_per_minute"` // 单品种每分钟最大下单数
	MaxPriceDeviationRatio      float64 `yaml:"max_price_deviation_ratio"`        // 报价偏离参考价比例上限

	// 总开关
	EnableRiskControl bool `yaml:"enable_risk_control"`
}

// DefaultLimits 文档化的默认限额。
func DefaultLimits() Limits {
	return Limits{
		MaxPositionPerSymbol:        10,
		MaxTotalPositions:           5,
		MaxPositionValueRatio:       0.3,
		MaxOrderAmount:              100000,
		MaxDailyLoss:                50000,
		MaxDailyLossRatio:           0.1,
		MinAvailableRatio:           0.2,
		MaxOrdersPerMinute:          10,
		MaxOrdersPerSymbolPerMinute: 5,
		MaxPriceDeviationRatio:      0.05,
		EnableRiskControl:           true,
	}
}
