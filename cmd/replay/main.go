package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"futures-exec-go/order"
)

// replay 离线重放订单事件日志，输出重建后的订单与统计，
// 用于事后核对与故障排查。
func main() {
	path := flag.String("journal", "data/orders.jsonl", "订单事件日志路径")
	verbose := flag.Bool("v", false, "逐条打印事件")
	flag.Parse()

	if *verbose {
		var n int
		err := order.Replay(*path, func(rec order.Record) error {
			n++
			fmt.Println(formatRecord(n, rec))
			return nil
		})
		if err != nil {
			log.Fatalf("重放失败: %v", err)
		}
	}

	reg := order.NewRegistry(nil, nil)
	if err := order.ReplayInto(*path, reg); err != nil {
		log.Fatalf("重放失败: %v", err)
	}

	stats := reg.Statistics()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "orders\t%d\n", stats.Total)
	fmt.Fprintf(w, "fill rate\t%.2f%%\n", stats.FillRate*100)
	fmt.Fprintf(w, "total qty\t%.2f\n", stats.TotalQty)
	fmt.Fprintf(w, "filled qty\t%.2f\n", stats.FilledQty)
	for state, count := range stats.ByState {
		fmt.Fprintf(w, "state %s\t%d\n", state, count)
	}
	w.Flush()

	for o := range reg.Query(func(o order.Order) bool { return o.Active() }) {
		fmt.Printf("active: %s %s %s %.2f@%.2f state=%s filled=%.2f\n",
			o.ID, o.Intent.Symbol, o.Intent.Side, o.Intent.Quantity, o.Intent.Price, o.State, o.FilledQty)
	}
}

// formatRecord 渲染一行日志记录。登记记录带 Intent，其余为状态转换。
func formatRecord(n int, rec order.Record) string {
	if rec.Intent != nil {
		return fmt.Sprintf("#%d seq=%d order=%s register %s %s %s %.2f@%.2f",
			n, rec.Seq, rec.OrderID,
			rec.Intent.Symbol, rec.Intent.Side, rec.Intent.Offset,
			rec.Intent.Quantity, rec.Intent.Price)
	}
	event := "?"
	if rec.Event != nil {
		event = string(rec.Event.Type)
	}
	return fmt.Sprintf("#%d seq=%d order=%s event=%s result=%s",
		n, rec.Seq, rec.OrderID, event, rec.Result)
}
