// Package chart 用 go-echarts 绘制价格、拟合曲线与预测段。
package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"bubblescope/internal/diagnosis"
	"bubblescope/internal/market"
)

// gap echarts 约定的缺失值占位。
const gap = "-"

// RenderDiagnosis 输出泡沫诊断图：收盘价、代表拟合曲线与
// 预测段画在同一时间轴上，标题携带状态与置信指标。
func RenderDiagnosis(w io.Writer, series market.Series, resp *diagnosis.Response) error {
	if resp == nil {
		return fmt.Errorf("response 不能为空")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s LPPL 泡沫诊断", resp.Symbol),
			Subtitle: fmt.Sprintf("state=%s  CI=%.1f  windows=%d/%d",
				resp.State, resp.ConfidenceIndicator,
				resp.Statistics.SuccessfulFits, resp.Statistics.TotalWindows),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1080px", Height: "560px"}),
	)

	fitted := make(map[string]float64)
	forecast := make(map[string]float64)
	var forecastDates []string
	if rf := resp.RepresentativeFit; rf != nil {
		for _, p := range rf.FittedPoints {
			fitted[p.Time] = p.Value
		}
		for _, p := range rf.ForecastPoints {
			forecast[p.Time] = p.Value
			forecastDates = append(forecastDates, p.Time)
		}
	}

	var xAxis []string
	var closeData, fitData, forecastData []opts.LineData
	for _, b := range series.Bars {
		day := b.Date.Format("2006-01-02")
		xAxis = append(xAxis, day)
		closeData = append(closeData, opts.LineData{Value: b.Close})
		if v, ok := fitted[day]; ok {
			fitData = append(fitData, opts.LineData{Value: v})
		} else {
			fitData = append(fitData, opts.LineData{Value: gap})
		}
		forecastData = append(forecastData, opts.LineData{Value: gap})
	}
	for _, day := range forecastDates {
		xAxis = append(xAxis, day)
		closeData = append(closeData, opts.LineData{Value: gap})
		fitData = append(fitData, opts.LineData{Value: gap})
		forecastData = append(forecastData, opts.LineData{Value: forecast[day]})
	}

	line.SetXAxis(xAxis).
		AddSeries("Close", closeData).
		AddSeries("LPPL Fit", fitData).
		AddSeries("Forecast", forecastData,
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	return line.Render(w)
}
