package lppl

import (
	"fmt"
	"math"
	"time"

	"bubblescope/internal/market"
)

// MinObservations 拟合所需的最少观测数。
const MinObservations = 30

// Window 一次拟合使用的预处理后的价格窗口。
// t 按观测序号取 0..N-1（忽略日历间隔），y = ln(close)。
type Window struct {
	Symbol string
	Dates  []time.Time
	T      []float64
	Y      []float64
}

// N 观测数。
func (w *Window) N() int { return len(w.Y) }

// Origin 窗口起始日期。
func (w *Window) Origin() time.Time { return w.Dates[0] }

// End 窗口结束日期（最后一个观测日）。
func (w *Window) End() time.Time { return w.Dates[len(w.Dates)-1] }

// NewWindow 把已校验的序列转换为拟合窗口。
// 序列必须满足 market.NewSeries 的约束；这里只追加长度下限检查。
func NewWindow(s market.Series) (*Window, error) {
	n := s.Len()
	if n < MinObservations {
		return nil, market.WrapInsufficientData(s.Symbol, "preprocess",
			fmt.Errorf("need at least %d observations, got %d", MinObservations, n))
	}
	w := &Window{
		Symbol: s.Symbol,
		Dates:  make([]time.Time, n),
		T:      make([]float64, n),
		Y:      make([]float64, n),
	}
	for i, b := range s.Bars {
		w.Dates[i] = b.Date
		w.T[i] = float64(i)
		// series 校验保证 close > 0
		w.Y[i] = math.Log(b.Close)
	}
	return w, nil
}
