package chart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Snapshot 用无头浏览器把渲染好的图表 HTML 截成 PNG。
// 需要本机可用的 Chrome/Chromium。
func Snapshot(ctx context.Context, htmlPath, pngPath string, quality int) error {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("图表文件不存在: %w", err)
	}
	if quality <= 0 || quality > 100 {
		quality = 90
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var buf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("file://"+abs),
		// echarts 渲染是异步的，等一拍再截
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.FullScreenshot(&buf, quality),
	)
	if err != nil {
		return fmt.Errorf("截图失败: %w", err)
	}
	return os.WriteFile(pngPath, buf, 0o644)
}
