// Package http 提供 Gin 接口，暴露泡沫诊断与动量筛选能力。
package http

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bubblescope/internal/chart"
	"bubblescope/internal/diagnosis"
	"bubblescope/internal/logger"
	"bubblescope/internal/market"
	"bubblescope/internal/screener"
)

const dateLayout = "2006-01-02"

// Server HTTP 服务。
type Server struct {
	addr      string
	diag      *diagnosis.Service
	scr       *screener.Screener
	source    market.Source
	watchlist []string
	router    *gin.Engine
}

// ServerConfig 构造参数。
type ServerConfig struct {
	Addr      string
	Diagnosis *diagnosis.Service
	Screener  *screener.Screener
	Source    market.Source
	Watchlist []string
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Diagnosis == nil {
		return nil, errors.New("diagnosis service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID())

	s := &Server{
		addr:      cfg.Addr,
		diag:      cfg.Diagnosis,
		scr:       cfg.Screener,
		source:    cfg.Source,
		watchlist: cfg.Watchlist,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

// requestID 为每个请求附加 trace id，便于日志串联。
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/bubble/:symbol", s.handleBubble)
	api.GET("/bubble/:symbol/chart", s.handleBubbleChart)
	api.GET("/momentum/:symbol", s.handleMomentum)
	api.GET("/screener/momentum", s.handleScreener)
	api.GET("/ohlcv/:symbol", s.handleOHLCV)
}

// Run 阻塞运行。
func (s *Server) Run() error {
	logger.Infof("[http] listening on %s", s.addr)
	return s.router.Run(s.addr)
}

// Handler 暴露底层 handler（测试用）。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleBubble(c *gin.Context) {
	symbol := c.Param("symbol")
	opts := diagnosis.Options{Force: parseBool(c.Query("force"))}
	if endStr := c.Query("end"); endStr != "" {
		end, err := time.Parse(dateLayout, endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end 需为 YYYY-MM-DD 格式"})
			return
		}
		opts.EndDate = end
	}
	resp, err := s.diag.Diagnose(c.Request.Context(), symbol, opts)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBubbleChart(c *gin.Context) {
	symbol := c.Param("symbol")
	resp, err := s.diag.Diagnose(c.Request.Context(), symbol, diagnosis.Options{})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	series, err := s.loadSeries(c, symbol)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "png" {
		s.serveChartPNG(c, series, resp)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := chart.RenderDiagnosis(c.Writer, series, resp); err != nil {
		logger.Errorf("[http] 渲染图表失败 %s: %v", symbol, err)
	}
}

// serveChartPNG 把图表渲染为 HTML 临时文件后用无头浏览器截成
// PNG 返回。需要本机可用的 Chrome。
func (s *Server) serveChartPNG(c *gin.Context, series market.Series, resp *diagnosis.Response) {
	dir, err := os.MkdirTemp("", "bubblescope-chart-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.RemoveAll(dir)

	htmlPath := filepath.Join(dir, "chart.html")
	pngPath := filepath.Join(dir, "chart.png")
	f, err := os.Create(htmlPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := chart.RenderDiagnosis(f, series, resp); err != nil {
		f.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := f.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := chart.Snapshot(c.Request.Context(), htmlPath, pngPath, 90); err != nil {
		logger.Errorf("[http] 图表截图失败 %s: %v", resp.Symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.File(pngPath)
}

func (s *Server) handleMomentum(c *gin.Context) {
	if s.scr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "screener 未启用"})
		return
	}
	entry, err := s.scr.ScoreSymbol(c.Request.Context(), c.Param("symbol"), parseBool(c.Query("force")))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleScreener(c *gin.Context) {
	if s.scr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "screener 未启用"})
		return
	}
	symbols := s.watchlist
	if q := c.Query("symbols"); q != "" {
		symbols = strings.Split(q, ",")
	}
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "watchlist 为空且未指定 symbols"})
		return
	}
	var filter screener.Filter
	if v := c.Query("signal"); v != "" {
		sig, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "signal 需为整数"})
			return
		}
		filter.Signal = &sig
	}
	if v := c.Query("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_score 需为数字"})
			return
		}
		filter.MinScore = &f
	}
	if v := c.Query("max_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_score 需为数字"})
			return
		}
		filter.MaxScore = &f
	}
	filter.State = c.Query("state")

	entries, err := s.scr.Run(c.Request.Context(), symbols, filter, parseBool(c.Query("force")))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "results": entries})
}

func (s *Server) handleOHLCV(c *gin.Context) {
	symbol := c.Param("symbol")
	series, err := s.loadSeries(c, symbol)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	type point struct {
		Time   string  `json:"time"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	}
	data := make([]point, 0, series.Len())
	for _, b := range series.Bars {
		data = append(data, point{
			Time: b.Date.Format(dateLayout),
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		})
	}
	c.JSON(http.StatusOK, gin.H{"symbol": series.Symbol, "data": data})
}

func (s *Server) loadSeries(c *gin.Context, symbol string) (market.Series, error) {
	end := time.Now()
	start := end.AddDate(-4, 0, 0)
	if v := c.Query("start"); v != "" {
		if d, err := time.Parse(dateLayout, v); err == nil {
			start = d
		}
	}
	if v := c.Query("end"); v != "" {
		if d, err := time.Parse(dateLayout, v); err == nil {
			end = d
		}
	}
	bars, err := s.source.DailyBars(c.Request.Context(), symbol, start, end)
	if err != nil {
		return market.Series{}, market.WrapPriceSource(symbol, err)
	}
	return market.NewSeries(symbol, bars)
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

// statusFor 把领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrInsufficientData), errors.Is(err, market.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrAnalysisTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, market.ErrPriceSource):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
