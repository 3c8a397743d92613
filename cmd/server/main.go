// Command server exposes the backtest engine over HTTP: submit a run,
// fetch its summary, scrape Prometheus metrics.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"smcengine/services/candles"
	"smcengine/services/config"
	"smcengine/services/replay"
)

type metrics struct {
	runs    prometheus.Counter
	signals prometheus.Counter
	trades  prometheus.Counter
	dropped *prometheus.CounterVec
}

func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_runs_total",
			Help: "Completed backtest runs.",
		}),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_signals_total",
			Help: "Signals produced across all runs, traded or dropped.",
		}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_trades_total",
			Help: "Completed trades across all runs.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_dropped_signals_total",
			Help: "Dropped signals by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.runs, m.signals, m.trades, m.dropped)
	return m
}

// runView is the JSON shape of a finished run. Decimal money renders as
// strings to keep exactness on the wire.
type runView struct {
	RunID          string                             `json:"run_id"`
	InitialBalance string                             `json:"initial_balance"`
	FinalBalance   string                             `json:"final_balance"`
	Trades         []tradeView                        `json:"trades"`
	WinRate        float64                            `json:"win_rate"`
	ProfitFactor   float64                            `json:"profit_factor"`
	MaxDrawdown    float64                            `json:"max_drawdown"`
	RiskAdjusted   float64                            `json:"risk_adjusted"`
	Dropped        map[string]map[replay.DropKind]int `json:"dropped,omitempty"`
}

type tradeView struct {
	ID         string  `json:"id"`
	Instrument string  `json:"instrument"`
	Direction  string  `json:"direction"`
	Entry      float64 `json:"entry"`
	Exit       float64 `json:"exit"`
	Size       string  `json:"size"`
	Pnl        string  `json:"pnl"`
	OpenTime   int64   `json:"open_time_ms"`
	CloseTime  int64   `json:"close_time_ms"`
	ExitReason string  `json:"exit_reason"`
	Confidence float64 `json:"confidence"`
}

func viewOf(s *replay.RunSummary) runView {
	v := runView{
		RunID:          s.RunID.String(),
		InitialBalance: s.InitialBalance.String(),
		FinalBalance:   s.FinalBalance.String(),
		WinRate:        s.WinRate,
		ProfitFactor:   s.ProfitFactor,
		MaxDrawdown:    s.MaxDrawdown,
		RiskAdjusted:   s.RiskAdjusted,
		Dropped:        s.Dropped,
	}
	for _, t := range s.Trades {
		v.Trades = append(v.Trades, tradeView{
			ID:         t.ID.String(),
			Instrument: t.Instrument,
			Direction:  t.Direction.String(),
			Entry:      t.Entry,
			Exit:       t.Exit,
			Size:       t.Size.String(),
			Pnl:        t.Pnl.String(),
			OpenTime:   t.OpenTime,
			CloseTime:  t.CloseTime,
			ExitReason: string(t.ExitReason),
			Confidence: t.Confidence,
		})
	}
	return v
}

type server struct {
	cfg    config.Config
	log    *zap.Logger
	loader *candles.ClickHouseLoader
	m      *metrics

	mu   sync.RWMutex
	runs map[uuid.UUID]runView
}

type runRequest struct {
	Symbols []string `json:"symbols" binding:"required"`
	FromMs  int64    `json:"from_ms" binding:"required"`
	ToMs    int64    `json:"to_ms" binding:"required"`
}

func (s *server) handleCreateRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ToMs <= req.FromMs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to_ms must be after from_ms"})
		return
	}

	data := make(map[string]*candles.Series, len(req.Symbols))
	for _, sym := range req.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		series, err := s.loader.Load(c.Request.Context(), sym, s.cfg.Replay.ExecutionTF, req.FromMs, req.ToMs)
		if err != nil {
			s.log.Error("load candles", zap.String("symbol", sym), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("load %s: %v", sym, err)})
			return
		}
		if series.Len() == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no candles for %s in range", sym)})
			return
		}
		data[sym] = series
	}

	eng := replay.NewEngine(s.cfg, nil, s.log)
	summary, err := eng.Run(data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.m.runs.Inc()
	s.m.trades.Add(float64(len(summary.Trades)))
	signals := len(summary.Trades)
	for _, kinds := range summary.Dropped {
		for kind, n := range kinds {
			s.m.dropped.WithLabelValues(string(kind)).Add(float64(n))
			signals += n
		}
	}
	s.m.signals.Add(float64(signals))

	view := viewOf(summary)
	s.mu.Lock()
	s.runs[summary.RunID] = view
	s.mu.Unlock()

	c.JSON(http.StatusCreated, view)
}

func (s *server) handleGetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	s.mu.RLock()
	view, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML config path (defaults when empty)")
		addr       = flag.String("addr", ":8080", "listen address")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal("config", zap.Error(err))
		}
	}

	loader, err := candles.NewClickHouseLoader(cfg.ClickHouse)
	if err != nil {
		logger.Fatal("clickhouse", zap.Error(err))
	}
	defer loader.Close()

	reg := prometheus.NewRegistry()
	srv := &server{
		cfg:    cfg,
		log:    logger,
		loader: loader,
		m:      newMetrics(reg),
		runs:   make(map[uuid.UUID]runView),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	{
		api.POST("/backtests", srv.handleCreateRun)
		api.GET("/backtests/:id", srv.handleGetRun)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().Unix()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	logger.Info("listening", zap.String("addr", *addr))
	if err := r.Run(*addr); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}
