package alert

import (
	"testing"
	"time"
)

type captureChannel struct {
	sent []Alert
}

func (c *captureChannel) Send(a Alert) error {
	c.sent = append(c.sent, a)
	return nil
}

func (c *captureChannel) Name() string { return "capture" }

func TestManagerThrottlesRepeats(t *testing.T) {
	cap := &captureChannel{}
	m := NewManager([]Channel{cap}, time.Minute)

	for i := 0; i < 5; i++ {
		if err := m.Warning("RiskRejected", "position limit", nil); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if len(cap.sent) != 1 {
		t.Fatalf("throttle failed: %d alerts delivered", len(cap.sent))
	}

	// 不同内容不共享限流 key
	if err := m.Warning("RiskRejected", "rate limit", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(cap.sent) != 2 {
		t.Fatalf("distinct message throttled: %d delivered", len(cap.sent))
	}
}

func TestManagerCriticalBypassesThrottle(t *testing.T) {
	cap := &captureChannel{}
	m := NewManager([]Channel{cap}, time.Hour)

	for i := 0; i < 3; i++ {
		if err := m.Critical("OrderUnknown", "manual intervention required", nil); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if len(cap.sent) != 3 {
		t.Fatalf("critical must never be throttled: %d delivered", len(cap.sent))
	}
	for _, a := range cap.sent {
		if a.Level != "CRITICAL" || a.Timestamp.IsZero() {
			t.Fatalf("bad alert: %+v", a)
		}
	}
}

func TestFeedChannelDropsOldest(t *testing.T) {
	feed := NewFeedChannel("feed", 2)
	for i := 0; i < 5; i++ {
		if err := feed.Send(Alert{Kind: "K", Message: string(rune('a' + i))}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	// 缓冲 2，保留最新两条
	got := make([]string, 0, 2)
	for len(got) < 2 {
		select {
		case a := <-feed.Subscribe():
			got = append(got, a.Message)
		default:
			t.Fatalf("expected 2 buffered alerts, got %v", got)
		}
	}
	if got[0] != "d" || got[1] != "e" {
		t.Fatalf("expected newest alerts, got %v", got)
	}
}
