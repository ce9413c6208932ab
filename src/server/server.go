package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"coin-observer/src/aggregation"
	"coin-observer/src/history"
	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"
	"coin-observer/src/scheduler"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	DB         interfaces.IDatabase
	Scheduler  *scheduler.Scheduler
	Detector   *history.GapDetector
	Backfiller *history.Backfiller
	engine     *gin.Engine

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MLatestData
	register   chan *Client
	unregister chan *Client

	// Local cache
	latestState *models.MLatestData
	stateMutex  sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(
	cfg *models.MConfig,
	db interfaces.IDatabase,
	sched *scheduler.Scheduler,
	detector *history.GapDetector,
	backfiller *history.Backfiller,
	log *logger.Logger,
) *APIServer {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:     cfg,
		Logger:     log,
		DB:         db,
		Scheduler:  sched,
		Detector:   detector,
		Backfiller: backfiller,
		engine:     gin.Default(),
		clients:    make(map[*Client]struct{}),
		// Buffered so a burst of update cycles never blocks the producer
		broadcast:  make(chan *models.MLatestData, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		latestState: &models.MLatestData{
			Type:    "INITIAL",
			Prices:  make(map[string]models.MCoin),
			Tickers: make(map[string][]models.MTicker),
		},
	}

	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	s.engine.GET("/api/coins", s.getCoins)
	s.engine.GET("/api/coins/:symbol", s.getCoin)
	s.engine.GET("/api/chart/:symbol", s.getChart)
	s.engine.GET("/api/health", s.getHealth)

	admin := s.engine.Group("/api/admin")
	admin.GET("/gaps", s.getGaps)
	admin.POST("/backfill", s.postBackfill)
	admin.POST("/fill-gaps", s.postFillGaps)
	admin.GET("/backfill/status", s.getBackfillStatus)
	admin.GET("/scheduler/status", s.getSchedulerStatus)
	admin.POST("/scheduler/pause", s.postSchedulerPause)
	admin.POST("/scheduler/resume", s.postSchedulerResume)

	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleWebsockets()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------
// Coin Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getCoins(c *gin.Context) {
	coins, err := s.DB.ListCoins()
	if err != nil {
		s.Logger.Error("Listing coins failed: %v", err)
		c.JSON(500, gin.H{"error": "storage error"})
		return
	}
	c.JSON(200, gin.H{"count": len(coins), "coins": coins})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getCoin(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	coin, ok, err := s.DB.GetCoin(symbol)
	if err != nil {
		s.Logger.Error("Loading coin %s failed: %v", symbol, err)
		c.JSON(500, gin.H{"error": "storage error"})
		return
	}
	if !ok {
		c.JSON(404, gin.H{"error": fmt.Sprintf("unknown symbol '%s'", symbol)})
		return
	}
	c.JSON(200, coin)
}

// -----------------------------------------------------------------------------
// Chart Handler
// -----------------------------------------------------------------------------

const (
	defaultChartLimit = 300
	maxChartLimit     = 1000
)

// getChart serves /api/chart/:symbol?resolution=5m&exchange=average&limit=300.
// The raw tier returns close-only points; candle tiers return full OHLC.
func (s *APIServer) getChart(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	resolution := c.DefaultQuery("resolution", models.Tier1h)
	exch := c.DefaultQuery("exchange", models.ExchangeAverage)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultChartLimit)))
	if err != nil || limit <= 0 {
		limit = defaultChartLimit
	}
	if limit > maxChartLimit {
		limit = maxChartLimit
	}

	var chart []models.MChartPoint

	if resolution == models.TierRaw {
		points, err := s.DB.ChartPricePoints(symbol, exch, limit)
		if err != nil {
			s.Logger.Error("Chart query failed for %s/%s: %v", symbol, resolution, err)
			c.JSON(500, gin.H{"error": "storage error"})
			return
		}
		chart = chartFromTicks(points)
	} else {
		res, err := aggregation.ResolutionByName(resolution)
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		candles, err := s.DB.ChartCandles(res.Name, symbol, exch, limit)
		if err != nil {
			s.Logger.Error("Chart query failed for %s/%s: %v", symbol, resolution, err)
			c.JSON(500, gin.H{"error": "storage error"})
			return
		}
		chart = chartFromCandles(candles)
	}

	c.JSON(200, gin.H{
		"symbol":     symbol,
		"exchange":   exch,
		"resolution": resolution,
		"count":      len(chart),
		"data":       chart,
	})
}

// -----------------------------------------------------------------------------

func chartFromTicks(points []models.MPricePoint) []models.MChartPoint {
	chart := make([]models.MChartPoint, 0, len(points))
	for _, p := range points {
		price, _ := p.Price.Float64()
		volume, _ := p.Volume.Float64()
		chart = append(chart, models.MChartPoint{
			Timestamp: p.Timestamp.Unix(),
			Close:     price,
			Volume:    volume,
		})
	}
	return chart
}

// -----------------------------------------------------------------------------

func chartFromCandles(candles []models.MCandle) []models.MChartPoint {
	chart := make([]models.MChartPoint, 0, len(candles))
	for _, candle := range candles {
		open, _ := candle.Open.Float64()
		high, _ := candle.High.Float64()
		low, _ := candle.Low.Float64()
		closePrice, _ := candle.Close.Float64()
		volume, _ := candle.VolumeSum.Float64()
		chart = append(chart, models.MChartPoint{
			Timestamp: candle.WindowStart.Unix(),
			Open:      &open,
			High:      &high,
			Low:       &low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return chart
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	timestamp := s.latestState.Timestamp
	s.stateMutex.RUnlock()

	c.JSON(200, gin.H{
		"status":        "ok",
		"scheduler":     s.Scheduler.State(),
		"connections":   connections,
		"latest_update": timestamp,
	})
}

// -----------------------------------------------------------------------------
// Admin: gaps and backfill
// -----------------------------------------------------------------------------

func (s *APIServer) getGaps(c *gin.Context) {
	report, err := s.Detector.DetectAll(s.Config.History.MaxGapHours)
	if err != nil {
		s.Logger.Error("Gap detection failed: %v", err)
		c.JSON(500, gin.H{"error": "gap detection failed"})
		return
	}
	c.JSON(200, report)
}

// -----------------------------------------------------------------------------

type backfillRequest struct {
	Symbol string `json:"symbol"`
	Days   int    `json:"days"`
}

// postBackfill triggers a backfill. With a symbol it runs inline for that one
// coin; without it the bulk run is started in the background and tracked via
// the status endpoint.
func (s *APIServer) postBackfill(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid request body"})
		return
	}
	if req.Days <= 0 || req.Days > models.MaxBackfillDays {
		c.JSON(400, gin.H{"error": fmt.Sprintf("days must be in 1..%d", models.MaxBackfillDays)})
		return
	}

	if req.Symbol != "" {
		inserted, err := s.Backfiller.Backfill(strings.ToUpper(req.Symbol), req.Days)
		if err != nil {
			s.Logger.Error("Backfill failed for %s: %v", req.Symbol, err)
			c.JSON(500, gin.H{"error": "backfill failed"})
			return
		}
		c.JSON(200, gin.H{"symbol": strings.ToUpper(req.Symbol), "points_inserted": inserted})
		return
	}

	running, _ := s.Backfiller.Status()
	if running {
		c.JSON(409, gin.H{"error": "backfill already in progress"})
		return
	}

	go s.Backfiller.BackfillAll(req.Days, true)
	c.JSON(202, gin.H{"status": "started", "days": req.Days})
}

// -----------------------------------------------------------------------------

func (s *APIServer) postFillGaps(c *gin.Context) {
	running, _ := s.Backfiller.Status()
	if running {
		c.JSON(409, gin.H{"error": "backfill already in progress"})
		return
	}

	go s.Backfiller.FillGaps(s.Config.History.MaxGapHours, true)
	c.JSON(202, gin.H{"status": "started"})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getBackfillStatus(c *gin.Context) {
	running, last := s.Backfiller.Status()
	resp := gin.H{"in_progress": running}
	if last != nil {
		resp["last_run"] = last
	}
	c.JSON(200, resp)
}

// -----------------------------------------------------------------------------
// Admin: scheduler control
// -----------------------------------------------------------------------------

func (s *APIServer) getSchedulerStatus(c *gin.Context) {
	c.JSON(200, s.Scheduler.Status())
}

func (s *APIServer) postSchedulerPause(c *gin.Context) {
	s.Scheduler.Pause()
	c.JSON(200, gin.H{"state": s.Scheduler.State()})
}

func (s *APIServer) postSchedulerResume(c *gin.Context) {
	s.Scheduler.Resume()
	c.JSON(200, gin.H{"state": s.Scheduler.State()})
}

// -----------------------------------------------------------------------------
// Broadcast entry point
// -----------------------------------------------------------------------------

// PublishUpdate pushes the latest cycle snapshot to websocket clients.
func (s *APIServer) PublishUpdate(prices map[string]models.MCoin, tickers map[string][]models.MTicker) {
	state := &models.MLatestData{
		Type:      "UPDATE",
		Prices:    prices,
		Tickers:   tickers,
		Timestamp: time.Now().Unix(),
	}

	select {
	case s.broadcast <- state:
	default:
		s.Logger.Warning("Broadcast queue full, dropping update")
	}
}
