package market

import (
	"errors"
	"fmt"
)

// 结构性错误才向上传播；单窗口拟合失败不是错误（见 lppl 包）。
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAnalysisTimeout  = errors.New("analysis timeout")
	ErrCachePersist     = errors.New("cache persist failed")
	ErrPriceSource      = errors.New("price source error")
)

// DiagError 携带 symbol 与处理阶段（preprocess / fit / aggregate / cache）。
type DiagError struct {
	Symbol string
	Stage  string
	Err    error
}

func (e *DiagError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Symbol, e.Stage, e.Err)
}

func (e *DiagError) Unwrap() error { return e.Err }

// WrapDiag 把底层错误包装为带阶段信息的诊断错误。
func WrapDiag(symbol, stage string, kind, cause error) error {
	if cause == nil {
		return &DiagError{Symbol: symbol, Stage: stage, Err: kind}
	}
	return &DiagError{Symbol: symbol, Stage: stage, Err: fmt.Errorf("%w: %v", kind, cause)}
}

// WrapInsufficientData 数据量不足（N < 30）。
func WrapInsufficientData(symbol, stage string, cause error) error {
	return WrapDiag(symbol, stage, ErrInsufficientData, cause)
}

// WrapInvalidInput 非法输入（非正价格、日期乱序等）。
func WrapInvalidInput(symbol, stage string, cause error) error {
	return WrapDiag(symbol, stage, ErrInvalidInput, cause)
}

// WrapPriceSource 上游行情源错误，原样上抛。
func WrapPriceSource(symbol string, cause error) error {
	return WrapDiag(symbol, "preprocess", ErrPriceSource, cause)
}
