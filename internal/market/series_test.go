package market

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewSeriesValidation(t *testing.T) {
	t.Run("正常序列", func(t *testing.T) {
		s, err := NewSeries("btcusdt", []Bar{
			{Date: day(2025, 1, 6), Close: 100},
			{Date: day(2025, 1, 7), Close: 101},
		})
		if err != nil {
			t.Fatalf("NewSeries: %v", err)
		}
		if s.Symbol != "BTCUSDT" {
			t.Fatalf("symbol 应归一为大写, got %s", s.Symbol)
		}
		if s.Len() != 2 {
			t.Fatalf("长度 %d, want 2", s.Len())
		}
	})

	t.Run("空 symbol", func(t *testing.T) {
		if _, err := NewSeries("  ", nil); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("want ErrInvalidInput, got %v", err)
		}
	})

	t.Run("中间出现非正价格", func(t *testing.T) {
		_, err := NewSeries("X", []Bar{
			{Date: day(2025, 1, 6), Close: 100},
			{Date: day(2025, 1, 7), Close: -1},
			{Date: day(2025, 1, 8), Close: 102},
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("want ErrInvalidInput, got %v", err)
		}
	})

	t.Run("日期乱序", func(t *testing.T) {
		_, err := NewSeries("X", []Bar{
			{Date: day(2025, 1, 7), Close: 100},
			{Date: day(2025, 1, 6), Close: 101},
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("want ErrInvalidInput, got %v", err)
		}
	})

	t.Run("日期重复", func(t *testing.T) {
		_, err := NewSeries("X", []Bar{
			{Date: day(2025, 1, 6), Close: 100},
			{Date: day(2025, 1, 6), Close: 101},
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("want ErrInvalidInput, got %v", err)
		}
	})

	t.Run("剥离首尾无效值", func(t *testing.T) {
		s, err := NewSeries("X", []Bar{
			{Date: day(2025, 1, 3), Close: 0},
			{Date: day(2025, 1, 6), Close: 100},
			{Date: day(2025, 1, 7), Close: 101},
			{Date: day(2025, 1, 8), Close: 0},
		})
		if err != nil {
			t.Fatalf("NewSeries: %v", err)
		}
		if s.Len() != 2 {
			t.Fatalf("首尾无效 bar 应被剥离, got %d", s.Len())
		}
	})
}

func TestSeriesTail(t *testing.T) {
	bars := []Bar{
		{Date: day(2025, 1, 6), Close: 1},
		{Date: day(2025, 1, 7), Close: 2},
		{Date: day(2025, 1, 8), Close: 3},
	}
	s, err := NewSeries("X", bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	tail := s.Tail(2)
	if tail.Len() != 2 || tail.Bars[0].Close != 2 {
		t.Fatalf("Tail(2) 应取最后两根")
	}
	if s.Tail(10).Len() != 3 {
		t.Fatalf("Tail 超长时应返回全量")
	}
}

func TestBusinessDayHelpers(t *testing.T) {
	fri := day(2025, 6, 6)
	if got := NextBusinessDay(fri); !got.Equal(day(2025, 6, 9)) {
		t.Fatalf("周五的下一交易日应为周一, got %s", got)
	}
	if got := AddBusinessDays(fri, 5); !got.Equal(day(2025, 6, 13)) {
		t.Fatalf("前进 5 个交易日应为下周五, got %s", got)
	}
}

func TestDiagErrorCarriesStage(t *testing.T) {
	err := WrapInsufficientData("005930", "preprocess", errors.New("n=12"))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("应可识别为 ErrInsufficientData")
	}
	var de *DiagError
	if !errors.As(err, &de) {
		t.Fatalf("应可取出 DiagError")
	}
	if de.Symbol != "005930" || de.Stage != "preprocess" {
		t.Fatalf("symbol/stage 丢失: %+v", de)
	}
}
