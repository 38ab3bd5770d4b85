package alert

import (
	"fmt"
	"sync"
	"time"
)

// Alert 告警信息
type Alert struct {
	Level     string                 // "INFO", "WARNING", "ERROR", "CRITICAL"
	Kind      string                 // 告警类别，如 "RiskRejected" / "LedgerDivergence"
	Message   string                 // 告警消息
	Timestamp time.Time              // 告警时间
	Fields    map[string]interface{} // 附加字段
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 告警限流器，同一 key 在间隔内只放行一次。
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 检查是否允许发送
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	last, exists := t.lastSent[key]
	if !exists || now.Sub(last) >= t.interval {
		t.lastSent[key] = now
		return true
	}
	return false
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Manager 告警管理器：限流后扇出到所有通道。
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Send 发送告警，CRITICAL 级别不限流。
func (m *Manager) Send(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	key := fmt.Sprintf("%s:%s:%s", a.Level, a.Kind, a.Message)
	if a.Level != "CRITICAL" && !m.throttle.Allow(key) {
		return nil
	}

	m.mu.RLock()
	channels := m.channels
	m.mu.RUnlock()

	var lastErr error
	successCount := 0
	for _, ch := range channels {
		if err := ch.Send(a); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
		} else {
			successCount++
		}
	}
	if successCount == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// Warning 发送 WARNING 级别告警
func (m *Manager) Warning(kind, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: "WARNING", Kind: kind, Message: message, Fields: fields})
}

// Error 发送 ERROR 级别告警
func (m *Manager) Error(kind, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: "ERROR", Kind: kind, Message: message, Fields: fields})
}

// Critical 发送 CRITICAL 级别告警（不限流，用于状态脱节等必须上报的场景）。
func (m *Manager) Critical(kind, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: "CRITICAL", Kind: kind, Message: message, Fields: fields})
}
