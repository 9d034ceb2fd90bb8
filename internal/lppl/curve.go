package lppl

import (
	"math"
	"time"

	"bubblescope/internal/market"
)

// DefaultForecastDays 窗口末端之后投影的默认交易日数。
const DefaultForecastDays = 60

// Point 图表数据点：日期 + 价格（非对数）。
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// FittedCurve 用拟合参数重建窗口内的价格曲线 exp(ŷ(t))。
// dates 为窗口各观测对应的日期，t 取 0..len(dates)-1。
func FittedCurve(p Parameters, dates []time.Time) []Point {
	out := make([]Point, 0, len(dates))
	for i, d := range dates {
		y, ok := p.Evaluate(float64(i))
		if !ok {
			continue
		}
		out = append(out, Point{Date: d, Value: math.Exp(y)})
	}
	return out
}

// ForecastCurve 从窗口末端向后投影至多 days 个交易日。
// 模型在 t = tc 处发散，投影到 t = ⌊tc⌋-1 为止。
func ForecastCurve(p Parameters, windowSize int, lastDate time.Time, days int) []Point {
	if days <= 0 {
		days = DefaultForecastDays
	}
	limit := int(math.Floor(p.Tc)) // 仅发出 t < ⌊tc⌋ 的点
	out := make([]Point, 0, days)
	d := lastDate
	for i := 0; i < days; i++ {
		t := windowSize + i
		if t >= limit {
			break
		}
		y, ok := p.Evaluate(float64(t))
		if !ok {
			break
		}
		d = market.NextBusinessDay(d)
		out = append(out, Point{Date: d, Value: math.Exp(y)})
	}
	return out
}

// CriticalDate 把 tc（观测序号尺度）换算为日历日期：
// 从窗口末端按交易日前进 tc-(N-1) 个观测。
func CriticalDate(p Parameters, windowSize int, lastDate time.Time) time.Time {
	ahead := int(math.Round(p.Tc - float64(windowSize-1)))
	if ahead <= 0 {
		return lastDate
	}
	return market.AddBusinessDays(lastDate, ahead)
}
