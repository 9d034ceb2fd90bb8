package lppl

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"bubblescope/internal/market"
)

// syntheticSeries 按给定参数生成 LPPL 价格序列，附加高斯噪声。
func syntheticSeries(t *testing.T, n int, p Parameters, sigma float64, seed int64) market.Series {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	bars := make([]market.Bar, n)
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		y, ok := p.Evaluate(float64(i))
		if !ok {
			t.Fatalf("合成序列在 t=%d 处无定义", i)
		}
		if sigma > 0 {
			y += rng.NormFloat64() * sigma
		}
		price := math.Exp(y)
		bars[i] = market.Bar{
			Date: day, Open: price, High: price * 1.01, Low: price * 0.99,
			Close: price, Volume: 1000,
		}
		day = market.NextBusinessDay(day)
	}
	s, err := market.NewSeries("SYN", bars)
	if err != nil {
		t.Fatalf("构造序列失败: %v", err)
	}
	return s
}

func TestFitRecoversKnownParameters(t *testing.T) {
	if testing.Short() {
		t.Skip("拟合耗时，short 模式跳过")
	}
	truth := Parameters{Tc: 430, M: 0.33, Omega: 8.5, A: 5.0, B: -0.25, C1: 0.03, C2: 0.02}
	series := syntheticSeries(t, 400, truth, 0.005, 7)

	win, err := NewWindow(series)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	fr := NewFitter(win.N()).Fit(win, FitConfig{Seed: 42})
	if !fr.Success {
		t.Fatalf("合成泡沫序列拟合失败: rmse=%v", fr.RMSE)
	}
	p := fr.Params
	if p.Tc < 420 || p.Tc > 440 {
		t.Errorf("tc = %.2f, 期望在 [420, 440]", p.Tc)
	}
	if math.Abs(p.M-truth.M)/truth.M > 0.2 {
		t.Errorf("m = %.4f, 偏离真值 %.4f 过多", p.M, truth.M)
	}
	if math.Abs(p.Omega-truth.Omega)/truth.Omega > 0.1 {
		t.Errorf("ω = %.4f, 偏离真值 %.4f 过多", p.Omega, truth.Omega)
	}
	if p.B >= 0 {
		t.Errorf("B = %.4f, 应为负", p.B)
	}
	if math.Abs(p.A-truth.A)/truth.A > 0.1 {
		t.Errorf("A = %.4f, 偏离真值 %.4f 过多", p.A, truth.A)
	}

	cls := Classify(fr)
	if !cls.IsBubble {
		t.Errorf("合成泡沫应满足全部四项条件: %+v", cls)
	}
}

func TestFitDeterministicWithSeed(t *testing.T) {
	if testing.Short() {
		t.Skip("拟合耗时，short 模式跳过")
	}
	truth := Parameters{Tc: 200, M: 0.4, Omega: 9, A: 4.5, B: -0.2, C1: 0.02, C2: 0.01}
	series := syntheticSeries(t, 150, truth, 0.004, 11)
	win, err := NewWindow(series)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	cfg := FitConfig{Seed: 99}
	a := NewFitter(win.N()).Fit(win, cfg)
	b := NewFitter(win.N()).Fit(win, cfg)
	if a.Params != b.Params || a.SSR != b.SSR {
		t.Fatalf("相同 (window, seed) 结果应逐位一致:\n%+v\n%+v", a.Params, b.Params)
	}
}

func TestFitBoundsHeldOnSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("拟合耗时，short 模式跳过")
	}
	truth := Parameters{Tc: 250, M: 0.5, Omega: 6, A: 5.2, B: -0.4, C1: 0.05, C2: -0.03}
	series := syntheticSeries(t, 200, truth, 0.003, 3)
	win, err := NewWindow(series)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	fr := NewFitter(win.N()).Fit(win, FitConfig{Seed: 1})
	if !fr.Success {
		t.Fatalf("拟合失败")
	}
	n := float64(fr.WindowSize)
	p := fr.Params
	if p.Tc < n-1+tcAheadMin || p.Tc > n-1+tcAheadMax {
		t.Errorf("tc=%v 越界", p.Tc)
	}
	if p.M < mLower || p.M > mUpper {
		t.Errorf("m=%v 越界", p.M)
	}
	if p.Omega < omegaLower || p.Omega > omegaUpper {
		t.Errorf("ω=%v 越界", p.Omega)
	}
	if p.B < bLower || p.B > bUpper {
		t.Errorf("B=%v 越界", p.B)
	}
	if math.Abs(p.C1) > cAbsBound || math.Abs(p.C2) > cAbsBound {
		t.Errorf("C1/C2 越界: %v %v", p.C1, p.C2)
	}
}

func TestFitConstantSeriesFails(t *testing.T) {
	bars := make([]market.Bar, 60)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = market.Bar{Date: day, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1}
		day = market.NextBusinessDay(day)
	}
	series, err := market.NewSeries("FLAT", bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	win, err := NewWindow(series)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	fr := NewFitter(win.N()).Fit(win, FitConfig{Seed: 5})
	if fr.Success {
		t.Fatalf("常数序列不应拟合成功")
	}
}
