// Package binance 基于 Binance 现货日线实现 market.Source。
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"bubblescope/internal/logger"
	"bubblescope/internal/market"
)

// 单次 klines 请求的条数上限（交易所限制）。
const pageLimit = 1000

// Source 实现 market.Source，按日线拉取历史收盘价。
type Source struct {
	cfg    Config
	client *binance.Client
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := binance.NewClient(final.APIKey, final.APISecret)
	if final.RESTBaseURL != "" {
		client.BaseURL = final.RESTBaseURL
	}
	client.HTTPClient.Timeout = final.HTTPTimeout
	return &Source{cfg: final, client: client}
}

// DailyBars 拉取 [start, end] 区间的日线并按日期升序返回。
// 区间超出单页限制时自动翻页。
func (s *Source) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}

	var out []market.Bar
	cursor := start
	for !cursor.After(end) {
		svc := s.client.NewKlinesService().
			Symbol(symbol).
			Interval("1d").
			StartTime(cursor.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(pageLimit)
		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			bar, err := toBar(k)
			if err != nil {
				logger.Warnf("[binance] %s 跳过损坏的 K 线 openTime=%d: %v", symbol, k.OpenTime, err)
				continue
			}
			out = append(out, bar)
		}
		last := klines[len(klines)-1]
		next := time.UnixMilli(last.CloseTime).Add(time.Millisecond)
		if !next.After(cursor) {
			break
		}
		cursor = next
		if len(klines) < pageLimit {
			break
		}
	}
	logger.Debugf("[binance] %s 日线 %d 根 (%s ~ %s)", symbol, len(out),
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	return out, nil
}

func toBar(k *binance.Kline) (market.Bar, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return market.Bar{}, fmt.Errorf("open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return market.Bar{}, fmt.Errorf("high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return market.Bar{}, fmt.Errorf("low: %w", err)
	}
	closePx, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return market.Bar{}, fmt.Errorf("close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return market.Bar{}, fmt.Errorf("volume: %w", err)
	}
	return market.Bar{
		Date:   time.UnixMilli(k.OpenTime).UTC().Truncate(24 * time.Hour),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: volume,
	}, nil
}
