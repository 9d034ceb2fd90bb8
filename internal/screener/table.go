package screener

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable 把筛选结果渲染为终端表格。
func RenderTable(w io.Writer, entries []Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Symbol", "Price", "Score", "Trend", "Osc", "Vol", "Signal", "State"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Price", Align: text.AlignRight},
		{Name: "Score", Align: text.AlignRight},
		{Name: "Trend", Align: text.AlignRight},
		{Name: "Osc", Align: text.AlignRight},
		{Name: "Vol", Align: text.AlignRight},
	})
	for i, e := range entries {
		t.AppendRow(table.Row{
			i + 1,
			e.Symbol,
			fmt.Sprintf("%.2f", e.Price),
			fmt.Sprintf("%.1f", e.TotalScore),
			fmt.Sprintf("%.1f", e.CategoryScores["trend"]),
			fmt.Sprintf("%.1f", e.CategoryScores["oscillator"]),
			fmt.Sprintf("%.1f", e.CategoryScores["volume"]),
			signalLabel(e.Signal),
			e.State,
		})
	}
	t.Render()
}

func signalLabel(sig int) string {
	switch {
	case sig > 0:
		return "BUY"
	case sig < 0:
		return "SELL"
	default:
		return "HOLD"
	}
}
