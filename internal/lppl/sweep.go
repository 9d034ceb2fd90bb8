package lppl

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"bubblescope/internal/logger"
	"bubblescope/internal/market"
)

// 扫描默认参数。
const (
	DefaultWindowMin  = 125
	DefaultWindowMax  = 750
	DefaultWindowStep = 5
	DefaultTimeout    = 60 * time.Second
	// minPartialFits 超时后允许返回部分结果所需的最少成功拟合数。
	minPartialFits = 10
)

// DefaultWorkers 拟合并行度。
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// SweepConfig 多窗口扫描配置。零值字段取默认。
type SweepConfig struct {
	WindowMin  int
	WindowMax  int
	Step       int
	Workers    int
	Timeout    time.Duration
	Seed       int64
	RMSECeil   float64
	MaxGenPerW int
}

func (c SweepConfig) withDefaults() SweepConfig {
	out := c
	if out.WindowMin <= 0 {
		out.WindowMin = DefaultWindowMin
	}
	if out.WindowMax <= 0 {
		out.WindowMax = DefaultWindowMax
	}
	if out.Step <= 0 {
		out.Step = DefaultWindowStep
	}
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers()
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return out
}

// WindowSummary 单个窗口的结果摘要，按窗口大小升序排列。
type WindowSummary struct {
	WindowSize int         `json:"window_size"`
	Success    bool        `json:"success"`
	IsBubble   bool        `json:"is_bubble"`
	Params     *Parameters `json:"params,omitempty"`
	RMSE       float64     `json:"rmse,omitempty"`
}

// Report 多窗口扫描的聚合结果（LPPLS 置信指标）。
type Report struct {
	TotalWindows        int             `json:"total_windows"`
	SuccessfulFits      int             `json:"successful_fits"`
	BubbleWindows       int             `json:"bubble_windows"`
	SuccessRate         float64         `json:"success_rate"`
	ConfidenceIndicator float64         `json:"confidence_indicator"`
	State               string          `json:"state"`
	Message             string          `json:"message"`
	TimedOut            bool            `json:"timed_out"`
	Windows             []WindowSummary `json:"windows"`
	// Representative 用于绘图与预测的代表拟合；全部失败时为 nil。
	Representative *FitResult `json:"representative,omitempty"`
	WindowMin      int        `json:"window_min"`
	WindowMax      int        `json:"window_max"`
	Step           int        `json:"step"`
}

// windowSizes 计算扫描窗口集合。短序列按规约缩减边界。
func windowSizes(n int, cfg SweepConfig) ([]int, int, int, error) {
	wMin, wMax, step := cfg.WindowMin, cfg.WindowMax, cfg.Step
	if n < MinObservations {
		return nil, 0, 0, fmt.Errorf("need at least %d observations, got %d", MinObservations, n)
	}
	if n < wMin {
		wMax = n
		wMin = n / 6
		if wMin < MinObservations {
			wMin = MinObservations
		}
	}
	if wMax > n {
		wMax = n
	}
	if wMin > wMax {
		wMin = wMax
	}
	var sizes []int
	for w := wMin; w <= wMax; w += step {
		sizes = append(sizes, w)
	}
	return sizes, wMin, wMax, nil
}

// Analyze 在序列尾部做多窗口 LPPL 扫描并聚合为置信指标。
// 各窗口相互独立，由有界 worker 池并行拟合；worker 在窗口边界
// 检查取消信号。超时后若成功拟合数已达下限则返回部分结果
// （TimedOut=true），否则报 AnalysisTimeout。
func Analyze(ctx context.Context, s market.Series, cfg SweepConfig) (*Report, error) {
	cfg = cfg.withDefaults()
	n := s.Len()
	sizes, wMin, wMax, err := windowSizes(n, cfg)
	if err != nil {
		return nil, market.WrapInsufficientData(s.Symbol, "aggregate", err)
	}

	sweepCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	results := make([]*FitResult, len(sizes))
	g, gctx := errgroup.WithContext(sweepCtx)
	g.SetLimit(cfg.Workers)

	start := time.Now()
	for i, w := range sizes {
		g.Go(func() error {
			// 窗口边界处的协作式取消
			if gctx.Err() != nil {
				return nil
			}
			fitter := fitterPoolGet(wMax)
			defer fitterPoolPut(fitter)

			win, err := NewWindow(s.Tail(w))
			if err != nil {
				return nil
			}
			fcfg := FitConfig{
				RMSECeiling:    cfg.RMSECeil,
				MaxGenerations: cfg.MaxGenPerW,
			}
			if cfg.Seed != 0 {
				// 每窗口独立派生种子，结果与调度顺序无关
				fcfg.Seed = cfg.Seed + int64(w)
			}
			fr := fitter.Fit(win, fcfg)
			results[i] = &fr
			return nil
		})
	}
	_ = g.Wait()

	timedOut := errors.Is(sweepCtx.Err(), context.DeadlineExceeded)
	if ctx.Err() != nil && !timedOut {
		return nil, ctx.Err()
	}

	rep := aggregate(sizes, results)
	rep.WindowMin, rep.WindowMax, rep.Step = wMin, wMax, cfg.Step
	rep.TimedOut = timedOut
	if timedOut && rep.SuccessfulFits < minPartialFits {
		return nil, market.WrapDiag(s.Symbol, "aggregate", market.ErrAnalysisTimeout,
			fmt.Errorf("only %d successful fits before deadline", rep.SuccessfulFits))
	}
	logger.Infof("[lppl] %s 扫描完成: windows=%d success=%d bubble=%d ci=%.1f state=%s elapsed=%s",
		s.Symbol, rep.TotalWindows, rep.SuccessfulFits, rep.BubbleWindows,
		rep.ConfidenceIndicator, rep.State, time.Since(start).Round(time.Millisecond))
	return rep, nil
}

// aggregate 汇总各窗口结果。输入与 sizes 对齐，未执行的窗口
// （超时丢弃）按失败计入 total。
func aggregate(sizes []int, results []*FitResult) *Report {
	rep := &Report{
		TotalWindows: len(sizes),
		Windows:      make([]WindowSummary, len(sizes)),
	}
	var successes []*FitResult
	for i, w := range sizes {
		sum := WindowSummary{WindowSize: w}
		fr := results[i]
		if fr != nil && fr.Success {
			cls := Classify(*fr)
			p := fr.Params
			sum.Success = true
			sum.IsBubble = cls.IsBubble
			sum.Params = &p
			sum.RMSE = fr.RMSE
			rep.SuccessfulFits++
			if cls.IsBubble {
				rep.BubbleWindows++
			}
			successes = append(successes, fr)
		}
		rep.Windows[i] = sum
	}
	if rep.TotalWindows > 0 {
		rep.SuccessRate = 100 * float64(rep.SuccessfulFits) / float64(rep.TotalWindows)
	}
	if rep.SuccessfulFits > 0 {
		rep.ConfidenceIndicator = 100 * float64(rep.BubbleWindows) / float64(rep.SuccessfulFits)
	}
	rep.State = StateFromCI(rep.ConfidenceIndicator)
	rep.Message = StateMessage(rep.State)
	rep.Representative = representative(successes)
	return rep
}

// representative 选代表拟合：泡沫窗口取中位窗口大小，
// 否则取整体 RMSE 最小者。
func representative(successes []*FitResult) *FitResult {
	if len(successes) == 0 {
		return nil
	}
	var bubbles []*FitResult
	for _, fr := range successes {
		if Classify(*fr).IsBubble {
			bubbles = append(bubbles, fr)
		}
	}
	if len(bubbles) > 0 {
		sort.Slice(bubbles, func(i, j int) bool {
			return bubbles[i].WindowSize < bubbles[j].WindowSize
		})
		return bubbles[len(bubbles)/2]
	}
	best := successes[0]
	for _, fr := range successes[1:] {
		if fr.RMSE < best.RMSE {
			best = fr
		}
	}
	return best
}

// fitter 池：worker 间复用预分配工作区，容量不足时重建。
var fitterPool = make(chan *Fitter, 8)

func fitterPoolGet(maxN int) *Fitter {
	select {
	case f := <-fitterPool:
		if f.cap >= maxN {
			return f
		}
	default:
	}
	return NewFitter(maxN)
}

func fitterPoolPut(f *Fitter) {
	select {
	case fitterPool <- f:
	default:
	}
}
