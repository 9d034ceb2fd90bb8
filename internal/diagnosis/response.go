package diagnosis

import (
	"time"

	"bubblescope/internal/lppl"
	"bubblescope/internal/market"
	"bubblescope/internal/store"
)

const dateLayout = "2006-01-02"

// Response 诊断响应。数组字段总是存在（可能为空）。
type Response struct {
	Symbol              string             `json:"symbol"`
	State               string             `json:"state"`
	Message             string             `json:"message"`
	ConfidenceIndicator float64            `json:"confidence_indicator"`
	AnalysisPeriod      Period             `json:"analysis_period"`
	WindowRange         WindowRange        `json:"window_range"`
	Statistics          Statistics         `json:"statistics"`
	RepresentativeFit   *RepresentativeFit `json:"representative_fit,omitempty"`
	DetailedResults     []DetailEntry      `json:"detailed_results"`
	Cached              bool               `json:"cached"`
	CacheMissPersisted  bool               `json:"cache_miss_persisted"`
	TimedOut            bool               `json:"timed_out"`
	ComputationSeconds  float64            `json:"computation_seconds"`
	CachedAt            string             `json:"cached_at,omitempty"`
}

// Period 分析区间。
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// WindowRange 扫描窗口范围。
type WindowRange struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Step int `json:"step"`
}

// Statistics 扫描统计量。
type Statistics struct {
	TotalWindows   int     `json:"total_windows"`
	SuccessfulFits int     `json:"successful_fits"`
	BubbleWindows  int     `json:"bubble_windows"`
	SuccessRate    float64 `json:"success_rate"`
}

// RepresentativeFit 代表拟合：参数、临界日期与绘图点列。
type RepresentativeFit struct {
	Parameters     lppl.Parameters `json:"parameters"`
	WindowSize     int             `json:"window_size"`
	RMSE           float64         `json:"rmse"`
	CriticalDate   string          `json:"critical_date"`
	FittedPoints   []ChartPoint    `json:"fitted_points"`
	ForecastPoints []ChartPoint    `json:"forecast_points"`
}

// ChartPoint 图表点（日期字符串 + 价格）。
type ChartPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// DetailEntry 单窗口摘要。
type DetailEntry struct {
	WindowSize int  `json:"window_size"`
	Success    bool `json:"success"`
	IsBubble   bool `json:"is_bubble"`
}

// buildResponse 把持久化形态的分析组装为对外响应。
// 拟合曲线与预测点列在组装时由代表参数重建。
func (s *Service) buildResponse(series market.Series, a *store.Analysis, cached, persisted bool) *Response {
	rep := a.Report
	resp := &Response{
		Symbol:              a.Symbol,
		State:               rep.State,
		Message:             rep.Message,
		ConfidenceIndicator: rep.ConfidenceIndicator,
		AnalysisPeriod: Period{
			Start: series.Bars[0].Date.Format(dateLayout),
			End:   series.LastDate().Format(dateLayout),
			Days:  series.Len(),
		},
		WindowRange: WindowRange{Min: rep.WindowMin, Max: rep.WindowMax, Step: rep.Step},
		Statistics: Statistics{
			TotalWindows:   rep.TotalWindows,
			SuccessfulFits: rep.SuccessfulFits,
			BubbleWindows:  rep.BubbleWindows,
			SuccessRate:    rep.SuccessRate,
		},
		DetailedResults:    make([]DetailEntry, 0, len(rep.Windows)),
		Cached:             cached,
		CacheMissPersisted: persisted,
		TimedOut:           rep.TimedOut,
	}
	if cached && !a.CreatedAt.IsZero() {
		resp.CachedAt = a.CreatedAt.Format(time.RFC3339)
	}
	for _, w := range rep.Windows {
		resp.DetailedResults = append(resp.DetailedResults, DetailEntry{
			WindowSize: w.WindowSize,
			Success:    w.Success,
			IsBubble:   w.IsBubble,
		})
	}
	if rep.Representative != nil {
		resp.RepresentativeFit = s.buildRepresentative(series, rep.Representative)
	}
	return resp
}

func (s *Service) buildRepresentative(series market.Series, fr *lppl.FitResult) *RepresentativeFit {
	w := fr.WindowSize
	tail := series.Tail(w)
	dates := tail.Dates()
	lastDate := series.LastDate()

	fitted := lppl.FittedCurve(fr.Params, dates)
	forecast := lppl.ForecastCurve(fr.Params, w, lastDate, s.cfg.ForecastDays)

	out := &RepresentativeFit{
		Parameters:     fr.Params,
		WindowSize:     w,
		RMSE:           fr.RMSE,
		CriticalDate:   lppl.CriticalDate(fr.Params, w, lastDate).Format(dateLayout),
		FittedPoints:   make([]ChartPoint, 0, len(fitted)),
		ForecastPoints: make([]ChartPoint, 0, len(forecast)),
	}
	for _, p := range fitted {
		out.FittedPoints = append(out.FittedPoints, ChartPoint{Time: p.Date.Format(dateLayout), Value: p.Value})
	}
	for _, p := range forecast {
		out.ForecastPoints = append(out.ForecastPoints, ChartPoint{Time: p.Date.Format(dateLayout), Value: p.Value})
	}
	return out
}
