package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Bar 一根日线（收盘价必须为正）。
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series 按日期升序排列的日线序列。
type Series struct {
	Symbol string
	Bars   []Bar
}

// Source 统一对接外部日线行情供应商。
type Source interface {
	// DailyBars 拉取 [start, end] 区间内的日线并按日期升序返回。
	// start/end 为零值时由实现方选择默认区间。
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// NewSeries 校验并构造序列：日期严格递增、收盘价为正。
// 头尾的非法值（零价）会被剔除，中间出现则视为坏数据。
func NewSeries(symbol string, bars []Bar) (Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Series{}, WrapInvalidInput(symbol, "preprocess", fmt.Errorf("symbol is required"))
	}
	// 剥离首尾无效 bar
	lo, hi := 0, len(bars)
	for lo < hi && !validBar(bars[lo]) {
		lo++
	}
	for hi > lo && !validBar(bars[hi-1]) {
		hi--
	}
	bars = bars[lo:hi]

	for i, b := range bars {
		if b.Close <= 0 {
			return Series{}, WrapInvalidInput(symbol, "preprocess",
				fmt.Errorf("non-positive close %.4f at %s", b.Close, b.Date.Format("2006-01-02")))
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return Series{}, WrapInvalidInput(symbol, "preprocess",
				fmt.Errorf("dates not strictly increasing at %s", b.Date.Format("2006-01-02")))
		}
	}
	return Series{Symbol: symbol, Bars: bars}, nil
}

func validBar(b Bar) bool {
	return b.Close > 0 && !b.Date.IsZero()
}

// Len 序列长度。
func (s Series) Len() int { return len(s.Bars) }

// Closes 返回收盘价数组（拷贝）。
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Dates 返回日期数组（拷贝）。
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Date
	}
	return out
}

// LastDate 最后一根日线的日期；空序列返回零值。
func (s Series) LastDate() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date
}

// Tail 返回最后 n 根组成的子序列（共享底层数组，调用方只读）。
func (s Series) Tail(n int) Series {
	if n >= len(s.Bars) {
		return s
	}
	return Series{Symbol: s.Symbol, Bars: s.Bars[len(s.Bars)-n:]}
}

// NextBusinessDay 返回 d 之后的下一个交易日（跳过周六/周日）。
func NextBusinessDay(d time.Time) time.Time {
	d = d.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// AddBusinessDays 从 d 起前进 n 个交易日。
func AddBusinessDays(d time.Time, n int) time.Time {
	for i := 0; i < n; i++ {
		d = NextBusinessDay(d)
	}
	return d
}
