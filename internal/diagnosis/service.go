// Package diagnosis 对外提供单一入口 Diagnose：取价、多窗口
// LPPL 扫描、结果缓存与响应组装。
package diagnosis

import (
	"context"
	"time"

	"bubblescope/internal/logger"
	"bubblescope/internal/lppl"
	"bubblescope/internal/market"
	"bubblescope/internal/store"
)

// historyCalendarDays 取价回看的日历天数。最大窗口 750 个交易日
// 约三个日历年，留出节假日余量。
const historyCalendarDays = 1460

// Options 一次诊断调用的可选项。
type Options struct {
	// EndDate 分析截止日；零值表示取数据源的最新交易日。
	EndDate time.Time
	// Force 为 true 时绕过新鲜度检查强制重算（结果仍会写缓存）。
	Force bool
}

// Config 服务级配置（来自配置文件，映射到扫描参数）。
type Config struct {
	Sweep        lppl.SweepConfig
	ForecastDays int
}

// Service 诊断门面。除结果缓存外无共享可变状态，
// 不同 symbol 的调用可并发执行。
type Service struct {
	source  market.Source
	prices  store.PriceStore
	results store.ResultStore
	cfg     Config
}

// New 构造诊断服务。prices 可为 nil（不做日线缓存）。
func New(source market.Source, results store.ResultStore, prices store.PriceStore, cfg Config) *Service {
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = lppl.DefaultForecastDays
	}
	return &Service{source: source, prices: prices, results: results, cfg: cfg}
}

// Diagnose 诊断 symbol 是否处于投机泡沫状态。
//
// 读协议：先查缓存；缓存的 analysis_date 不早于最新价格日且未
// 强制重算时直接返回缓存，否则重算并写回。写失败不致命，
// 以 cache_miss_persisted=false 标记。
func (s *Service) Diagnose(ctx context.Context, symbol string, opts Options) (*Response, error) {
	start := time.Now()

	series, err := s.loadSeries(ctx, symbol, opts.EndDate)
	if err != nil {
		return nil, err
	}
	latest := series.LastDate()

	if !opts.Force {
		cached, err := s.results.GetLatest(ctx, series.Symbol)
		if err != nil {
			// 缓存读失败按未命中处理
			logger.Warnf("[diagnosis] %s 读缓存失败: %v", series.Symbol, err)
		} else if cached != nil && cached.Report != nil && !cached.AnalysisDate.Before(latest) {
			resp := s.buildResponse(series, cached, true, true)
			resp.ComputationSeconds = time.Since(start).Seconds()
			return resp, nil
		}
	}

	report, err := lppl.Analyze(ctx, series, s.cfg.Sweep)
	if err != nil {
		return nil, err
	}

	analysis := store.Analysis{
		Symbol:        series.Symbol,
		AnalysisDate:  latest,
		LastPriceDate: latest,
		Report:        report,
		CreatedAt:     time.Now(),
	}
	persisted := true
	if err := s.results.Put(ctx, analysis); err != nil {
		// 结果照常返回，只降级为未持久化
		persisted = false
		logger.Warnf("[diagnosis] %v", market.WrapDiag(series.Symbol, "cache", market.ErrCachePersist, err))
	}

	resp := s.buildResponse(series, &analysis, false, persisted)
	resp.ComputationSeconds = time.Since(start).Seconds()
	return resp, nil
}

// loadSeries 取诊断所需的日线序列：总是先向行情源拉取，成功后
// 写回本地缓存（失败仅告警）；只有行情源出错时才读取本地缓存。
func (s *Service) loadSeries(ctx context.Context, symbol string, end time.Time) (market.Series, error) {
	if end.IsZero() {
		end = time.Now()
	}
	startDate := end.AddDate(0, 0, -historyCalendarDays)

	bars, err := s.source.DailyBars(ctx, symbol, startDate, end)
	if err != nil {
		// 源不可用时退回本地缓存
		if s.prices != nil {
			if cached, cerr := s.prices.GetBars(ctx, symbol, startDate, end); cerr == nil && len(cached) > 0 {
				logger.Warnf("[diagnosis] %s 行情源不可用，使用本地缓存: %v", symbol, err)
				return market.NewSeries(symbol, cached)
			}
		}
		return market.Series{}, market.WrapPriceSource(symbol, err)
	}
	if s.prices != nil {
		if perr := s.prices.PutBars(ctx, symbol, bars); perr != nil {
			logger.Warnf("[diagnosis] %s 日线缓存写入失败: %v", symbol, perr)
		}
	}
	return market.NewSeries(symbol, bars)
}
