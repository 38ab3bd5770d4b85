package order

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record 一条不可变的订单事件日志。
// Intent 非空表示登记记录，否则为状态转换记录。
type Record struct {
	Seq     uint64    `json:"seq"`
	OrderID string    `json:"order_id"`
	Intent  *Intent   `json:"intent,omitempty"`
	Event   *Event    `json:"event,omitempty"`
	Result  State     `json:"result"`
	Time    time.Time `json:"time"`
}

// EventLog 追加式 JSONL 订单事件日志，崩溃后可顺序重放重建注册表。
// 重放通过 Seq 去重，重复应用是幂等的。
type EventLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenEventLog 打开（或创建）事件日志文件。
func OpenEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventLog{path: path, file: f}, nil
}

// Append 序列化并追加一条记录，随后 fsync 保证落盘。
func (l *EventLog) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync event log: %w", err)
	}
	return nil
}

// Close 关闭日志文件。
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Replay 顺序读出全部记录并逐条交给 fn。
// path 单独传入，允许在注册表尚未挂接日志时重建状态。
func Replay(path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("decode line %d: %w", line, err)
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("replay line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan event log: %w", err)
	}
	return nil
}

// ReplayInto 从日志文件重建注册表状态。
func ReplayInto(path string, r *Registry) error {
	return Replay(path, r.Restore)
}
