package risk

import "time"

// Clock 抽象时间便于测试频控窗口。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NowUTC 默认时钟，使用 UTC。
var NowUTC Clock = realClock{}
