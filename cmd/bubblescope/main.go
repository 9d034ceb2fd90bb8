package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bubblescope/internal/chart"
	"bubblescope/internal/config"
	"bubblescope/internal/diagnosis"
	"bubblescope/internal/gateway/binance"
	"bubblescope/internal/logger"
	"bubblescope/internal/market"
	"bubblescope/internal/screener"
	"bubblescope/internal/store"
	transport "bubblescope/internal/transport/http"
)

func main() {
	var (
		cfgPath   = flag.String("config", "bubblescope.toml", "配置文件路径")
		mode      = flag.String("mode", "serve", "运行模式: serve / diagnose / screen")
		symbol    = flag.String("symbol", "", "diagnose 模式下的标的")
		force     = flag.Bool("force", false, "绕过缓存强制重算")
		chartPath = flag.String("chart", "", "diagnose 模式下输出图表文件（.html 或 .png）")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Setup(logger.Config(cfg.Log)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	db, err := store.OpenSQLite(cfg.Data.DBPath)
	if err != nil {
		logger.Errorf("打开数据库失败: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	source := binance.New(binance.Config{
		APIKey:      cfg.Data.APIKey,
		APISecret:   cfg.Data.APISecret,
		RESTBaseURL: cfg.Data.RESTBaseURL,
	})
	diag := diagnosis.New(source, db, db, diagnosis.Config{
		Sweep:        cfg.SweepConfig(),
		ForecastDays: cfg.LPPL.ForecastDays,
	})
	scr := screener.New(source, db, cfg.LPPL.Workers)

	switch *mode {
	case "serve":
		srv, err := transport.NewServer(transport.ServerConfig{
			Addr:      cfg.Server.Addr,
			Diagnosis: diag,
			Screener:  scr,
			Source:    source,
			Watchlist: cfg.Data.Watchlist,
		})
		if err != nil {
			logger.Errorf("初始化 HTTP 服务失败: %v", err)
			os.Exit(1)
		}
		if err := srv.Run(); err != nil {
			logger.Errorf("HTTP 服务退出: %v", err)
			os.Exit(1)
		}
	case "diagnose":
		if *symbol == "" {
			fmt.Fprintln(os.Stderr, "diagnose 模式需要 -symbol")
			os.Exit(2)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		resp, err := diag.Diagnose(ctx, *symbol, diagnosis.Options{Force: *force})
		if err != nil {
			logger.Errorf("诊断失败: %v", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			logger.Errorf("输出失败: %v", err)
			os.Exit(1)
		}
		if *chartPath != "" {
			if err := writeChart(ctx, source, *symbol, resp, *chartPath); err != nil {
				logger.Errorf("输出图表失败: %v", err)
				os.Exit(1)
			}
			logger.Infof("图表已写入 %s", *chartPath)
		}
	case "screen":
		if len(cfg.Data.Watchlist) == 0 {
			fmt.Fprintln(os.Stderr, "watchlist 为空，请在配置文件中设置 data.watchlist")
			os.Exit(2)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		entries, err := scr.Run(ctx, cfg.Data.Watchlist, screener.Filter{}, *force)
		if err != nil {
			logger.Errorf("筛选失败: %v", err)
			os.Exit(1)
		}
		screener.RenderTable(os.Stdout, entries)
	default:
		fmt.Fprintf(os.Stderr, "未知模式 %q\n", *mode)
		os.Exit(2)
	}
}

// writeChart 把诊断图表写到 path。扩展名为 .png 时先渲染 HTML
// 临时文件，再用无头浏览器截图。
func writeChart(ctx context.Context, source market.Source, symbol string, resp *diagnosis.Response, path string) error {
	end := time.Now()
	bars, err := source.DailyBars(ctx, symbol, end.AddDate(-4, 0, 0), end)
	if err != nil {
		return market.WrapPriceSource(symbol, err)
	}
	series, err := market.NewSeries(symbol, bars)
	if err != nil {
		return err
	}

	if !strings.EqualFold(filepath.Ext(path), ".png") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := chart.RenderDiagnosis(f, series, resp); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	dir, err := os.MkdirTemp("", "bubblescope-chart-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	htmlPath := filepath.Join(dir, "chart.html")
	f, err := os.Create(htmlPath)
	if err != nil {
		return err
	}
	if err := chart.RenderDiagnosis(f, series, resp); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return chart.Snapshot(ctx, htmlPath, path, 90)
}
