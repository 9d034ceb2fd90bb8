// Package screener 在多个标的上并行计算动量因子评分并支持筛选。
package screener

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bubblescope/internal/analysis/indicator"
	"bubblescope/internal/logger"
	"bubblescope/internal/market"
	"bubblescope/internal/store"
)

// historyDays 动量指标回看的日历天数。
const historyDays = 365

// Filter 筛选条件；nil 字段表示不过滤。
type Filter struct {
	Signal   *int
	MinScore *float64
	MaxScore *float64
	State    string
}

// Entry 单个标的的筛选结果。
type Entry struct {
	Symbol          string             `json:"symbol"`
	Price           float64            `json:"price"`
	TotalScore      float64            `json:"total_score"`
	Signal          int                `json:"signal"`
	State           string             `json:"state"`
	Description     string             `json:"description"`
	CategoryScores  map[string]float64 `json:"category_scores,omitempty"`
	IndicatorScores map[string]float64 `json:"indicator_scores,omitempty"`
	Cached          bool               `json:"cached"`
}

// Screener 动量筛选器。评分按天缓存，force 可绕过。
type Screener struct {
	source   market.Source
	momentum store.MomentumStore
	workers  int
}

func New(source market.Source, momentum store.MomentumStore, workers int) *Screener {
	if workers <= 0 {
		workers = 4
	}
	return &Screener{source: source, momentum: momentum, workers: workers}
}

// Run 对 symbols 并行评分，应用筛选并按总分降序返回。
// 单个标的失败只记日志并跳过，不影响整体。
func (s *Screener) Run(ctx context.Context, symbols []string, filter Filter, force bool) ([]Entry, error) {
	var (
		mu      sync.Mutex
		entries []Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, symbol := range symbols {
		g.Go(func() error {
			entry, err := s.scoreOne(gctx, symbol, force)
			if err != nil {
				logger.Debugf("[screener] 跳过 %s: %v", symbol, err)
				return nil
			}
			if !passes(entry, filter) {
				return nil
			}
			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	return entries, nil
}

// ScoreSymbol 单标的动量评分（带按天缓存）。
func (s *Screener) ScoreSymbol(ctx context.Context, symbol string, force bool) (Entry, error) {
	return s.scoreOne(ctx, symbol, force)
}

func (s *Screener) scoreOne(ctx context.Context, symbol string, force bool) (Entry, error) {
	today := truncateDay(time.Now())
	if !force && s.momentum != nil {
		if rec, err := s.momentum.GetMomentum(ctx, symbol, today); err == nil && rec != nil {
			return entryFromRecord(*rec), nil
		}
	}

	end := time.Now()
	bars, err := s.source.DailyBars(ctx, symbol, end.AddDate(0, 0, -historyDays), end)
	if err != nil {
		return Entry{}, market.WrapPriceSource(symbol, err)
	}
	series, err := market.NewSeries(symbol, bars)
	if err != nil {
		return Entry{}, err
	}
	score, err := indicator.ComputeMomentum(series.Bars, nil)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Symbol:          series.Symbol,
		Price:           series.Bars[series.Len()-1].Close,
		TotalScore:      score.TotalScore,
		Signal:          score.Signal,
		State:           score.State,
		Description:     indicator.ScoreDescription(score.TotalScore),
		CategoryScores:  score.CategoryScores,
		IndicatorScores: score.IndicatorScores,
	}
	if s.momentum != nil {
		detail, _ := json.Marshal(map[string]any{
			"category_scores":  score.CategoryScores,
			"indicator_scores": score.IndicatorScores,
		})
		rec := store.MomentumRecord{
			Symbol:       series.Symbol,
			AnalysisDate: today,
			TotalScore:   score.TotalScore,
			Signal:       score.Signal,
			State:        score.State,
			Detail:       string(detail),
			LatestPrice:  entry.Price,
		}
		if err := s.momentum.PutMomentum(ctx, rec); err != nil {
			logger.Warnf("[screener] %s 评分缓存写入失败: %v", series.Symbol, err)
		}
	}
	return entry, nil
}

func entryFromRecord(rec store.MomentumRecord) Entry {
	entry := Entry{
		Symbol:      rec.Symbol,
		Price:       rec.LatestPrice,
		TotalScore:  rec.TotalScore,
		Signal:      rec.Signal,
		State:       rec.State,
		Description: indicator.ScoreDescription(rec.TotalScore),
		Cached:      true,
	}
	if rec.Detail != "" {
		var detail struct {
			CategoryScores  map[string]float64 `json:"category_scores"`
			IndicatorScores map[string]float64 `json:"indicator_scores"`
		}
		if err := json.Unmarshal([]byte(rec.Detail), &detail); err == nil {
			entry.CategoryScores = detail.CategoryScores
			entry.IndicatorScores = detail.IndicatorScores
		}
	}
	return entry
}

func passes(e Entry, f Filter) bool {
	if f.Signal != nil && e.Signal != *f.Signal {
		return false
	}
	if f.MinScore != nil && e.TotalScore < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && e.TotalScore > *f.MaxScore {
		return false
	}
	if f.State != "" && !strings.EqualFold(f.State, e.State) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
