// Package config 加载 TOML 配置文件并填充默认值。
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"bubblescope/internal/lppl"
)

// Config 顶层配置。
type Config struct {
	Server ServerConfig `toml:"server"`
	Data   DataConfig   `toml:"data"`
	LPPL   LPPLConfig   `toml:"lppl"`
	Log    LogConfig    `toml:"log"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DataConfig struct {
	DBPath      string   `toml:"db_path"`
	APIKey      string   `toml:"api_key"`
	APISecret   string   `toml:"api_secret"`
	RESTBaseURL string   `toml:"rest_base_url"`
	Watchlist   []string `toml:"watchlist"`
}

// LPPLConfig 多窗口扫描与拟合参数。
type LPPLConfig struct {
	WindowMin      int     `toml:"window_min"`
	WindowMax      int     `toml:"window_max"`
	WindowStep     int     `toml:"window_step"`
	ForecastDays   int     `toml:"forecast_days"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Workers        int     `toml:"workers"`
	RNGSeed        int64   `toml:"rng_seed"`
	RMSECeiling    float64 `toml:"rmse_ceiling"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// Default 返回全默认配置。
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Data:   DataConfig{DBPath: "bubblescope.db"},
		LPPL: LPPLConfig{
			WindowMin:      lppl.DefaultWindowMin,
			WindowMax:      lppl.DefaultWindowMax,
			WindowStep:     lppl.DefaultWindowStep,
			ForecastDays:   lppl.DefaultForecastDays,
			TimeoutSeconds: int(lppl.DefaultTimeout / time.Second),
			Workers:        lppl.DefaultWorkers(),
			RMSECeiling:    lppl.DefaultRMSECeiling,
		},
		Log: LogConfig{Level: "info", Format: "console", Output: "stderr"},
	}
}

// Load 读取配置文件；path 为空或文件不存在时返回默认配置。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("读取配置失败: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	l := &c.LPPL
	if l.WindowMin < lppl.MinObservations {
		return fmt.Errorf("lppl.window_min 不能小于 %d", lppl.MinObservations)
	}
	if l.WindowMax < l.WindowMin {
		return fmt.Errorf("lppl.window_max 不能小于 window_min")
	}
	if l.WindowStep <= 0 {
		return fmt.Errorf("lppl.window_step 必须为正")
	}
	if l.RMSECeiling <= 0 {
		return fmt.Errorf("lppl.rmse_ceiling 必须为正")
	}
	return nil
}

// SweepConfig 把配置映射为扫描参数。
func (c *Config) SweepConfig() lppl.SweepConfig {
	l := c.LPPL
	return lppl.SweepConfig{
		WindowMin: l.WindowMin,
		WindowMax: l.WindowMax,
		Step:      l.WindowStep,
		Workers:   l.Workers,
		Timeout:   time.Duration(l.TimeoutSeconds) * time.Second,
		Seed:      l.RNGSeed,
		RMSECeil:  l.RMSECeiling,
	}
}
