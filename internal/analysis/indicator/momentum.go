// Package indicator 动量因子综合评分：11 个技术指标加权合成
// 0-100 的复合动量分，并给出趋势/震荡/量能三类子分。
package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"bubblescope/internal/market"
)

// MinBars 可靠计算动量分所需的最少日线数。
const MinBars = 60

// Weight 单个指标的权重配置。
type Weight struct {
	Name     string
	Weight   float64
	Category string // trend / oscillator / volume
}

// DefaultWeights 默认权重（自动归一化）。
// 趋势 40%、震荡 35%、量能 25%。
var DefaultWeights = []Weight{
	{"RSI", 0.12, "trend"},
	{"MACD", 0.10, "trend"},
	{"ADX", 0.10, "trend"},
	{"ROC", 0.08, "trend"},
	{"Stochastic", 0.10, "oscillator"},
	{"CCI", 0.08, "oscillator"},
	{"WilliamsR", 0.08, "oscillator"},
	{"BollingerBands", 0.09, "oscillator"},
	{"MFI", 0.10, "volume"},
	{"OBV", 0.08, "volume"},
	{"VolumeMA", 0.07, "volume"},
}

// Score 综合动量评分结果。
type Score struct {
	TotalScore      float64            `json:"total_score"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	IndicatorScores map[string]float64 `json:"indicator_scores"`
	Signal          int                `json:"signal"` // 1 买入 / -1 卖出 / 0 观望
	State           string             `json:"state"`
}

// ComputeMomentum 计算综合动量评分。
// 单个指标计算失败时以中性分 50 计入，不影响整体。
func ComputeMomentum(bars []market.Bar, weights []Weight) (Score, error) {
	if len(bars) < MinBars {
		return Score{}, fmt.Errorf("动量评分至少需要 %d 根日线，当前 %d", MinBars, len(bars))
	}
	if len(weights) == 0 {
		weights = DefaultWeights
	}
	total := 0.0
	for _, w := range weights {
		total += w.Weight
	}
	if total <= 0 {
		return Score{}, fmt.Errorf("权重之和必须为正")
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	scores := map[string]float64{
		"RSI":            scoreRSI(closes),
		"MACD":           scoreMACD(closes),
		"ADX":            scoreADX(highs, lows, closes),
		"ROC":            scoreROC(closes),
		"Stochastic":     scoreStochastic(highs, lows, closes),
		"CCI":            scoreCCI(highs, lows, closes),
		"WilliamsR":      scoreWilliamsR(highs, lows, closes),
		"BollingerBands": scoreBollinger(closes),
		"MFI":            scoreMFI(highs, lows, closes, volumes),
		"OBV":            scoreOBV(closes, volumes),
		"VolumeMA":       scoreVolumeMA(volumes),
	}

	out := Score{
		CategoryScores:  make(map[string]float64, 3),
		IndicatorScores: make(map[string]float64, len(weights)),
	}
	catTotal := map[string]float64{}
	catWeight := map[string]float64{}
	for _, w := range weights {
		weight := w.Weight / total
		sc, ok := scores[w.Name]
		if !ok {
			sc = 50
		}
		out.IndicatorScores[w.Name] = round2(sc)
		out.TotalScore += sc * weight
		catTotal[w.Category] += sc * weight
		catWeight[w.Category] += weight
	}
	for _, cat := range []string{"trend", "oscillator", "volume"} {
		if catWeight[cat] > 0 {
			out.CategoryScores[cat] = round2(catTotal[cat] / catWeight[cat])
		} else {
			out.CategoryScores[cat] = 50
		}
	}
	out.TotalScore = round2(out.TotalScore)
	out.Signal, out.State = signalAndState(out.TotalScore)
	return out, nil
}

func signalAndState(score float64) (int, string) {
	switch {
	case score >= 80:
		return 1, "VERY_STRONG_BULLISH"
	case score >= 65:
		return 1, "BULLISH"
	case score >= 55:
		return 0, "SLIGHTLY_BULLISH"
	case score >= 45:
		return 0, "NEUTRAL"
	case score >= 35:
		return 0, "SLIGHTLY_BEARISH"
	case score >= 20:
		return -1, "BEARISH"
	default:
		return -1, "VERY_STRONG_BEARISH"
	}
}

// ScoreDescription 分数的人读说明。
func ScoreDescription(score float64) string {
	switch {
	case score >= 80:
		return "极强上涨动量"
	case score >= 65:
		return "上涨动量"
	case score >= 55:
		return "弱上涨动量"
	case score >= 45:
		return "中性"
	case score >= 35:
		return "弱下跌动量"
	case score >= 20:
		return "下跌动量"
	default:
		return "极强下跌动量"
	}
}

// ---- 各指标评分：统一输出 0-100，无效值回落中性 50 ----

func scoreRSI(closes []float64) float64 {
	return clampScore(lastValid(talib.Rsi(closes, 14)))
}

func scoreMACD(closes []float64) float64 {
	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	m, s := lastValid(macd), lastValid(signal)
	if math.IsNaN(m) || math.IsNaN(s) {
		return 50
	}
	base := 50.0
	if m > s {
		base = 60
	} else if m < s {
		base = 40
	}
	// 柱状图在近 50 根范围内归一化，最多调整 ±30 分
	recent := tailValid(hist, 50)
	if len(recent) > 0 {
		lo, hi := minMax(recent)
		if hi > lo {
			normalized := (recent[len(recent)-1] - lo) / (hi - lo)
			base += (normalized - 0.5) * 60
		}
	}
	return clampScore(base)
}

func scoreADX(highs, lows, closes []float64) float64 {
	adx := lastValid(talib.Adx(highs, lows, closes, 14))
	diPlus := lastValid(talib.PlusDI(highs, lows, closes, 14))
	diMinus := lastValid(talib.MinusDI(highs, lows, closes, 14))
	if math.IsNaN(adx) || math.IsNaN(diPlus) || math.IsNaN(diMinus) {
		return 50
	}
	strength := math.Min(1, adx/50)
	switch {
	case diPlus > diMinus:
		return clampScore(50 + strength*50)
	case diMinus > diPlus:
		return clampScore(50 - strength*50)
	default:
		return 50
	}
}

func scoreROC(closes []float64) float64 {
	roc := talib.Roc(closes, 12)
	last := lastValid(roc)
	if math.IsNaN(last) {
		return 50
	}
	recent := tailValid(roc, 50)
	if len(recent) > 1 {
		lo, hi := minMax(recent)
		if hi > lo {
			return clampScore((last - lo) / (hi - lo) * 100)
		}
	}
	// 兜底：按典型 ±20% 区间归一化
	return clampScore((last + 20) / 40 * 100)
}

func scoreStochastic(highs, lows, closes []float64) float64 {
	k, _ := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
	return clampScore(lastValid(k))
}

func scoreCCI(highs, lows, closes []float64) float64 {
	cci := lastValid(talib.Cci(highs, lows, closes, 20))
	if math.IsNaN(cci) {
		return 50
	}
	return clampScore((cci + 200) / 400 * 100)
}

func scoreWilliamsR(highs, lows, closes []float64) float64 {
	wr := lastValid(talib.WillR(highs, lows, closes, 14))
	if math.IsNaN(wr) {
		return 50
	}
	// [-100, 0] 映射到 [0, 100]
	return clampScore(wr + 100)
}

func scoreBollinger(closes []float64) float64 {
	upper, _, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	u, l := lastValid(upper), lastValid(lower)
	if math.IsNaN(u) || math.IsNaN(l) || u <= l {
		return 50
	}
	percentB := (closes[len(closes)-1] - l) / (u - l)
	return clampScore(percentB * 100)
}

func scoreMFI(highs, lows, closes, volumes []float64) float64 {
	return clampScore(lastValid(talib.Mfi(highs, lows, closes, volumes, 14)))
}

func scoreOBV(closes, volumes []float64) float64 {
	obv := talib.Obv(closes, volumes)
	if len(obv) < 21 {
		return 50
	}
	recent := obv[len(obv)-21:]
	lo, hi := minMax(recent)
	if hi <= lo {
		return 50
	}
	return clampScore((recent[len(recent)-1] - lo) / (hi - lo) * 100)
}

func scoreVolumeMA(volumes []float64) float64 {
	ma := lastValid(talib.Sma(volumes, 20))
	if math.IsNaN(ma) || ma <= 0 {
		return 50
	}
	ratio := volumes[len(volumes)-1] / ma
	// ratio 1.0 → 50 分，按比例线性映射，2.0 及以上封顶 100 分
	return clampScore(ratio / 2 * 100)
}

// ---- 工具 ----

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) && series[i] != 0 {
			return series[i]
		}
	}
	if len(series) > 0 {
		return series[len(series)-1]
	}
	return math.NaN()
}

func tailValid(series []float64, n int) []float64 {
	var out []float64
	for _, v := range series {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, v := range xs[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
