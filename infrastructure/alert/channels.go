package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// LogChannel 日志告警通道
type LogChannel struct {
	logger *log.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, output *os.File) *LogChannel {
	if output == nil {
		output = os.Stdout
	}
	return &LogChannel{
		logger: log.New(output, "[ALERT] ", log.LstdFlags),
		name:   name,
	}
}

// Send 发送告警到日志
func (c *LogChannel) Send(a Alert) error {
	msg := fmt.Sprintf("[%s] %s: %s", a.Level, a.Kind, a.Message)
	if len(a.Fields) > 0 {
		msg += " |"
		for k, v := range a.Fields {
			msg += fmt.Sprintf(" %s=%v", k, v)
		}
	}
	c.logger.Println(msg)
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string { return c.name }

// WebhookChannel 将告警 POST 到运维侧 webhook。
type WebhookChannel struct {
	name    string
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewWebhookChannel 创建 webhook 告警通道
func NewWebhookChannel(name, url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{
		name:    name,
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Send 发送告警到 webhook
func (c *WebhookChannel) Send(a Alert) error {
	payload, err := json.Marshal(map[string]interface{}{
		"level":     a.Level,
		"kind":      a.Kind,
		"message":   a.Message,
		"timestamp": a.Timestamp.UTC().Format(time.RFC3339),
		"fields":    a.Fields,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	resp, err := c.client.Post(c.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// Name 返回通道名称
func (c *WebhookChannel) Name() string { return c.name }

// FeedChannel 内存订阅通道：监控方通过 Subscribe 消费告警流。
// 缓冲写满时丢弃最旧的告警，发送方永不阻塞。
type FeedChannel struct {
	name string
	ch   chan Alert
}

// NewFeedChannel 创建订阅通道
func NewFeedChannel(name string, buffer int) *FeedChannel {
	if buffer <= 0 {
		buffer = 128
	}
	return &FeedChannel{name: name, ch: make(chan Alert, buffer)}
}

// Send 推送告警到订阅缓冲
func (c *FeedChannel) Send(a Alert) error {
	for {
		select {
		case c.ch <- a:
			return nil
		default:
			select {
			case <-c.ch: // 丢最旧
			default:
			}
		}
	}
}

// Name 返回通道名称
func (c *FeedChannel) Name() string { return c.name }

// Subscribe 返回告警只读流
func (c *FeedChannel) Subscribe() <-chan Alert { return c.ch }
