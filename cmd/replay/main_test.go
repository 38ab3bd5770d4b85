package main

import (
	"strings"
	"testing"

	"futures-exec-go/order"
)

func TestFormatRecordRegistration(t *testing.T) {
	intent := order.NewIntent("IF2509", order.SideBuy, order.OffsetOpen, 3, 4000, "s1")
	line := formatRecord(1, order.Record{Seq: 1, OrderID: "O-1", Intent: &intent, Result: order.StateCreated})
	if !strings.Contains(line, "register") || !strings.Contains(line, "IF2509") {
		t.Fatalf("bad registration line: %s", line)
	}
}

func TestFormatRecordTransition(t *testing.T) {
	ev := order.Event{Type: order.EventFill, Quantity: 1, Price: 4000}
	line := formatRecord(2, order.Record{Seq: 2, OrderID: "O-1", Event: &ev, Result: order.StatePartiallyFilled})
	if !strings.Contains(line, "event=FILL") || !strings.Contains(line, "PARTIALLY_FILLED") {
		t.Fatalf("bad transition line: %s", line)
	}
}

func TestFormatRecordEmptyEvent(t *testing.T) {
	// 两个指针都为空的残缺记录也不 panic
	line := formatRecord(3, order.Record{Seq: 3, OrderID: "O-1", Result: order.StateCreated})
	if !strings.Contains(line, "event=?") {
		t.Fatalf("bad degenerate line: %s", line)
	}
}
