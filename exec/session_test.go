package exec_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-exec-go/exec"
	"futures-exec-go/order"
	"futures-exec-go/risk"
)

// TestSessionJournalSurvivesRestart 验证事件日志跨会话重建订单状态
func TestSessionJournalSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.jsonl")
	cfg := exec.SessionConfig{
		JournalPath:  path,
		StartingCash: 1_000_000,
		Limits:       risk.DefaultLimits(),
	}

	s1, err := exec.NewSession(cfg, nil)
	require.NoError(t, err)

	intent := order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 3, 4000, "s1")
	id, err := s1.Registry.Register(intent)
	require.NoError(t, err)
	for _, ev := range []order.Event{
		{Type: order.EventSubmit},
		{Type: order.EventAck, BrokerID: "B-7"},
		{Type: order.EventFill, Quantity: 2, Price: 4001},
	} {
		_, err := s1.Registry.Transition(id, ev)
		require.NoError(t, err)
	}
	require.NoError(t, s1.Close())

	// 新会话重放同一份日志
	s2, err := exec.NewSession(cfg, nil)
	require.NoError(t, err)
	defer s2.Close()

	restored, ok := s2.Registry.Get(id)
	require.True(t, ok, "order must survive restart")
	assert.Equal(t, order.StatePartiallyFilled, restored.State)
	assert.Equal(t, 2.0, restored.FilledQty)
	assert.Equal(t, "B-7", restored.BrokerID)
	assert.Equal(t, intent.CorrelationID, restored.Intent.CorrelationID)

	// 重建后的注册表继续接受事件
	final, err := s2.Registry.Transition(id, order.Event{Type: order.EventFill, Quantity: 1, Price: 4003})
	require.NoError(t, err)
	assert.Equal(t, order.StateFilled, final.State)
}

// TestSessionLimitsImmutable 限额在会话创建后不可更换
func TestSessionLimitsImmutable(t *testing.T) {
	limits := risk.DefaultLimits()
	limits.MaxPositionPerSymbol = 7
	s, err := exec.NewSession(exec.SessionConfig{StartingCash: 1000, Limits: limits}, nil)
	require.NoError(t, err)
	defer s.Close()

	got := s.Gate.Limits()
	assert.Equal(t, 7.0, got.MaxPositionPerSymbol)

	// Limits 返回副本，改动不影响闸门
	got.MaxPositionPerSymbol = 99
	assert.Equal(t, 7.0, s.Gate.Limits().MaxPositionPerSymbol)
}
