package diagnosis

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"bubblescope/internal/lppl"
	"bubblescope/internal/market"
	"bubblescope/internal/store"
)

// fakeSource 返回预置日线的行情源。
type fakeSource struct {
	bars []market.Bar
	err  error
}

func (f *fakeSource) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]market.Bar, len(f.bars))
	copy(out, f.bars)
	return out, nil
}

// failingStore 写入永远失败的结果存储。
type failingStore struct{}

func (failingStore) GetLatest(ctx context.Context, symbol string) (*store.Analysis, error) {
	return nil, nil
}
func (failingStore) Put(ctx context.Context, a store.Analysis) error {
	return errors.New("disk full")
}

func bubbleBars(t *testing.T, n int) []market.Bar {
	t.Helper()
	truth := lppl.Parameters{Tc: float64(n) + 30, M: 0.33, Omega: 8.5, A: 5.0, B: -0.25, C1: 0.03, C2: 0.02}
	rng := rand.New(rand.NewSource(17))
	bars := make([]market.Bar, n)
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		y, ok := truth.Evaluate(float64(i))
		if !ok {
			t.Fatalf("合成数据在 t=%d 无定义", i)
		}
		price := math.Exp(y + rng.NormFloat64()*0.004)
		bars[i] = market.Bar{Date: day, Open: price, High: price, Low: price, Close: price, Volume: 1}
		day = market.NextBusinessDay(day)
	}
	return bars
}

func testConfig() Config {
	return Config{
		Sweep: lppl.SweepConfig{
			WindowMin:  60,
			WindowMax:  120,
			Step:       30,
			Workers:    2,
			Timeout:    5 * time.Minute,
			Seed:       42,
			RMSECeil:   0.05,
			MaxGenPerW: 120,
		},
		ForecastDays: 30,
	}
}

func TestDiagnoseCacheHit(t *testing.T) {
	if testing.Short() {
		t.Skip("扫描耗时，short 模式跳过")
	}
	src := &fakeSource{bars: bubbleBars(t, 200)}
	mem := store.NewMemoryStore()
	svc := New(src, mem, mem, testConfig())

	first, err := svc.Diagnose(context.Background(), "TEST", Options{})
	if err != nil {
		t.Fatalf("第一次诊断: %v", err)
	}
	if first.Cached {
		t.Fatalf("首次调用不应命中缓存")
	}
	if !first.CacheMissPersisted {
		t.Fatalf("写入成功时 cache_miss_persisted 应为 true")
	}

	second, err := svc.Diagnose(context.Background(), "TEST", Options{})
	if err != nil {
		t.Fatalf("第二次诊断: %v", err)
	}
	if !second.Cached {
		t.Fatalf("价格未变时第二次调用应命中缓存")
	}
	if second.ConfidenceIndicator != first.ConfidenceIndicator ||
		second.Statistics != first.Statistics ||
		second.State != first.State {
		t.Fatalf("缓存命中应返回一致内容:\n%+v\n%+v", first.Statistics, second.Statistics)
	}
	if len(second.DetailedResults) != len(first.DetailedResults) {
		t.Fatalf("明细长度不一致")
	}
}

func TestDiagnoseIncrementalRefresh(t *testing.T) {
	if testing.Short() {
		t.Skip("扫描耗时，short 模式跳过")
	}
	bars := bubbleBars(t, 200)
	src := &fakeSource{bars: bars[:199]}
	mem := store.NewMemoryStore()
	svc := New(src, mem, mem, testConfig())

	first, err := svc.Diagnose(context.Background(), "TEST", Options{})
	if err != nil {
		t.Fatalf("第一次诊断: %v", err)
	}

	// 追加一个交易日后应触发重算
	src.bars = bars
	second, err := svc.Diagnose(context.Background(), "TEST", Options{})
	if err != nil {
		t.Fatalf("第二次诊断: %v", err)
	}
	if second.Cached {
		t.Fatalf("新增价格日后不应命中缓存")
	}
	if second.AnalysisPeriod.End <= first.AnalysisPeriod.End {
		t.Fatalf("分析截止日应前进: %s -> %s", first.AnalysisPeriod.End, second.AnalysisPeriod.End)
	}

	latest, err := mem.GetLatest(context.Background(), "TEST")
	if err != nil || latest == nil {
		t.Fatalf("缓存应已更新: %v", err)
	}
	if latest.AnalysisDate.Format("2006-01-02") != second.AnalysisPeriod.End {
		t.Fatalf("缓存 analysis_date 应为最新价格日")
	}
}

func TestDiagnoseForce(t *testing.T) {
	if testing.Short() {
		t.Skip("扫描耗时，short 模式跳过")
	}
	src := &fakeSource{bars: bubbleBars(t, 200)}
	mem := store.NewMemoryStore()
	svc := New(src, mem, mem, testConfig())

	if _, err := svc.Diagnose(context.Background(), "TEST", Options{}); err != nil {
		t.Fatalf("预热: %v", err)
	}
	forced, err := svc.Diagnose(context.Background(), "TEST", Options{Force: true})
	if err != nil {
		t.Fatalf("强制重算: %v", err)
	}
	if forced.Cached {
		t.Fatalf("force=true 不应返回缓存")
	}
	if !forced.CacheMissPersisted {
		t.Fatalf("强制重算成功后仍应写缓存")
	}
}

func TestDiagnosePersistFailureNonFatal(t *testing.T) {
	if testing.Short() {
		t.Skip("扫描耗时，short 模式跳过")
	}
	src := &fakeSource{bars: bubbleBars(t, 200)}
	svc := New(src, failingStore{}, nil, testConfig())

	resp, err := svc.Diagnose(context.Background(), "TEST", Options{})
	if err != nil {
		t.Fatalf("写缓存失败不应使诊断失败: %v", err)
	}
	if resp.CacheMissPersisted {
		t.Fatalf("写入失败时 cache_miss_persisted 应为 false")
	}
	if resp.State == "" || len(resp.DetailedResults) == 0 {
		t.Fatalf("结果应照常返回")
	}
}

func TestDiagnosePriceSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	mem := store.NewMemoryStore()
	svc := New(src, mem, nil, testConfig())

	_, err := svc.Diagnose(context.Background(), "TEST", Options{})
	if !errors.Is(err, market.ErrPriceSource) {
		t.Fatalf("上游错误应标记为 ErrPriceSource, got %v", err)
	}
}

func TestDiagnoseInsufficientData(t *testing.T) {
	src := &fakeSource{bars: bubbleBars(t, 200)[:20]}
	mem := store.NewMemoryStore()
	svc := New(src, mem, nil, testConfig())

	_, err := svc.Diagnose(context.Background(), "TEST", Options{})
	if !errors.Is(err, market.ErrInsufficientData) {
		t.Fatalf("want ErrInsufficientData, got %v", err)
	}
}

func TestDiagnoseResponseShape(t *testing.T) {
	if testing.Short() {
		t.Skip("扫描耗时，short 模式跳过")
	}
	src := &fakeSource{bars: bubbleBars(t, 200)}
	mem := store.NewMemoryStore()
	svc := New(src, mem, mem, testConfig())

	resp, err := svc.Diagnose(context.Background(), "TEST", Options{})
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if resp.Symbol != "TEST" {
		t.Errorf("symbol = %s", resp.Symbol)
	}
	if resp.AnalysisPeriod.Days != 200 {
		t.Errorf("days = %d, want 200", resp.AnalysisPeriod.Days)
	}
	if resp.WindowRange.Min != 60 || resp.WindowRange.Max != 120 || resp.WindowRange.Step != 30 {
		t.Errorf("窗口范围不符: %+v", resp.WindowRange)
	}
	if resp.DetailedResults == nil {
		t.Errorf("detailed_results 应始终存在")
	}
	if rf := resp.RepresentativeFit; rf != nil {
		if len(rf.FittedPoints) != rf.WindowSize {
			t.Errorf("拟合点数 %d 应等于窗口大小 %d", len(rf.FittedPoints), rf.WindowSize)
		}
		for _, p := range rf.ForecastPoints {
			if p.Value <= 0 || math.IsInf(p.Value, 0) || math.IsNaN(p.Value) {
				t.Errorf("预测价格应为有限正数: %v", p.Value)
			}
		}
	}
}
