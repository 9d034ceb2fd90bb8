// Package store 持久化多窗口分析结果与日线缓存。
// 每个 symbol 只保留最新一条分析记录，聚合与明细作为一个
// 单元整体写入，读方不会观察到部分更新。
package store

import (
	"context"
	"time"

	"bubblescope/internal/lppl"
	"bubblescope/internal/market"
)

// Analysis 一次多窗口分析的持久化形态。
// 不变式：写入时 AnalysisDate == LastPriceDate。
type Analysis struct {
	Symbol        string       `json:"symbol"`
	AnalysisDate  time.Time    `json:"analysis_date"`
	LastPriceDate time.Time    `json:"last_price_date"`
	Report        *lppl.Report `json:"report"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ResultStore 抽象：按 symbol 读写最新分析结果。
type ResultStore interface {
	// GetLatest 返回 symbol 的最新分析；不存在时返回 (nil, nil)。
	GetLatest(ctx context.Context, symbol string) (*Analysis, error)
	// Put 原子替换 symbol 的最新分析。
	Put(ctx context.Context, a Analysis) error
}

// PriceStore 抽象：日线缓存，按 (symbol, date) 去重写入。
type PriceStore interface {
	PutBars(ctx context.Context, symbol string, bars []market.Bar) error
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error)
	// LastDate 返回已缓存的最后交易日；无数据时返回零值。
	LastDate(ctx context.Context, symbol string) (time.Time, error)
}

// MomentumRecord 动量因子评分缓存（按天）。
type MomentumRecord struct {
	Symbol       string    `json:"symbol"`
	AnalysisDate time.Time `json:"analysis_date"`
	TotalScore   float64   `json:"total_score"`
	Signal       int       `json:"signal"`
	State        string    `json:"state"`
	Detail       string    `json:"detail"` // JSON 编码的分项得分
	LatestPrice  float64   `json:"latest_price"`
}

// MomentumStore 抽象：动量评分的按天缓存。
type MomentumStore interface {
	GetMomentum(ctx context.Context, symbol string, day time.Time) (*MomentumRecord, error)
	PutMomentum(ctx context.Context, rec MomentumRecord) error
}
