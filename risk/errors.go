package risk

import "errors"

var (
	ErrPositionExceed = errors.New("position limit exceed")
	ErrSymbolsExceed  = errors.New("total positions exceed")
	ErrValueRatio     = errors.New("position value ratio exceed")
	ErrOrderAmount    = errors.New("order amount exceed")
	ErrDailyLoss      = errors.New("daily loss exceed")
	ErrAvailableLow   = errors.New("available capital too low")
	ErrTooFrequent    = errors.New("order too frequent")
	ErrPriceDeviation = errors.New("price deviates from reference")
	ErrNoCloseablePos = errors.New("no position to close")
)
