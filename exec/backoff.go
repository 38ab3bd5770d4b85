package exec

import (
	"context"
	"time"
)

// backoff 有界指数退避：initial 起步，翻倍到 max 封顶。
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if max < initial {
		max = 10 * time.Second
	}
	return &backoff{initial: initial, max: max}
}

// wait 睡一个退避周期，ctx 取消时提前返回 false。
func (b *backoff) wait(ctx context.Context) bool {
	if b.current == 0 {
		b.current = b.initial
	} else {
		b.current *= 2
		if b.current > b.max {
			b.current = b.max
		}
	}
	t := time.NewTimer(b.current)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
