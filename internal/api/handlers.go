package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"liquidity-hunter/internal/engine"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/store"
)

var errUnknownSymbol = errors.New("unknown symbol")

// AnalyzeRequest is the body of POST /analyze/:symbol
type AnalyzeRequest struct {
	Candles []liquidity.Candle `json:"candles" binding:"required"`
	RSI     []float64          `json:"rsi,omitempty"`
}

func symbolParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
}

func limitQuery(c *gin.Context, def int) int {
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// withEngine runs fn on the engine of an already known symbol
func (s *Server) withEngine(c *gin.Context, fn func(*engine.Engine) error) bool {
	symbol := symbolParam(c)
	if !s.registry.Has(symbol) {
		errorResponse(c, http.StatusNotFound, errUnknownSymbol.Error()+": "+symbol)
		return false
	}
	if err := s.registry.With(symbol, fn); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return false
	}
	return true
}

// ============================================================================
// ANALYSIS HANDLERS
// ============================================================================

// handleAnalyze runs the engine of a symbol over the posted candles
func (s *Server) handleAnalyze(c *gin.Context) {
	symbol := symbolParam(c)
	if symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := liquidity.ValidateCandles(req.Candles); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.registry.Analyze(symbol, req.Candles, req.RSI)
	if err != nil {
		_ = c.Error(err)
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, result)
}

// handleSymbols lists the symbols with an engine
func (s *Server) handleSymbols(c *gin.Context) {
	successResponse(c, s.registry.Symbols())
}

// ============================================================================
// STORE HANDLERS
// ============================================================================

func (s *Server) handleState(c *gin.Context) {
	var state store.State
	if s.withEngine(c, func(e *engine.Engine) error {
		state = e.Store().GetState()
		return nil
	}) {
		successResponse(c, state)
	}
}

func (s *Server) handleActivePools(c *gin.Context) {
	var pools []liquidity.Pool
	if s.withEngine(c, func(e *engine.Engine) error {
		pools = e.Store().GetActivePools()
		return nil
	}) {
		if pools == nil {
			pools = []liquidity.Pool{}
		}
		successResponse(c, pools)
	}
}

func (s *Server) handleRecentSignals(c *gin.Context) {
	limit := limitQuery(c, 10)
	var signals []liquidity.TradingSignal
	if s.withEngine(c, func(e *engine.Engine) error {
		signals = e.Store().GetRecentSignals(limit)
		return nil
	}) {
		if signals == nil {
			signals = []liquidity.TradingSignal{}
		}
		successResponse(c, signals)
	}
}

func (s *Server) handleStatistics(c *gin.Context) {
	var stats store.Statistics
	if s.withEngine(c, func(e *engine.Engine) error {
		stats = e.Store().Statistics()
		return nil
	}) {
		successResponse(c, stats)
	}
}

// handleExport returns the raw store snapshot
func (s *Server) handleExport(c *gin.Context) {
	var data []byte
	if s.withEngine(c, func(e *engine.Engine) (err error) {
		data, err = e.Store().ExportJSON()
		return err
	}) {
		c.Header("Content-Disposition", "attachment; filename="+symbolParam(c)+".json")
		c.Data(http.StatusOK, "application/json", data)
	}
}

// handleImport replaces the store of a symbol with a snapshot, creating the
// engine when needed
func (s *Server) handleImport(c *gin.Context) {
	symbol := symbolParam(c)
	if symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, 32<<20))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "failed to read body")
		return
	}

	var stats store.Statistics
	err = s.registry.With(symbol, func(e *engine.Engine) error {
		if err := e.Store().ImportJSON(data); err != nil {
			return err
		}
		stats = e.Store().Statistics()
		return nil
	})
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid snapshot: "+err.Error())
		return
	}
	successResponse(c, stats)
}

// ============================================================================
// HISTORY HANDLERS
// ============================================================================

func (s *Server) handleSignalHistory(c *gin.Context) {
	if s.history == nil {
		errorResponse(c, http.StatusNotImplemented, "signal history is not configured")
		return
	}
	symbol := strings.ToUpper(c.Query("symbol"))
	signals, err := s.history.RecentSignals(c.Request.Context(), symbol, limitQuery(c, 50))
	if err != nil {
		_ = c.Error(err)
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch signal history")
		return
	}
	successResponse(c, signals)
}

func (s *Server) handleRunHistory(c *gin.Context) {
	if s.runs == nil {
		errorResponse(c, http.StatusNotImplemented, "run journal is not configured")
		return
	}
	symbol := strings.ToUpper(c.Query("symbol"))
	runs, err := s.runs.ListRuns(c.Request.Context(), symbol, limitQuery(c, 50))
	if err != nil {
		_ = c.Error(err)
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}
	successResponse(c, runs)
}

// ============================================================================
// MONITOR HANDLERS
// ============================================================================

func (s *Server) handleMonitorStatus(c *gin.Context) {
	if s.monitor == nil {
		successResponse(c, gin.H{"enabled": false})
		return
	}
	successResponse(c, gin.H{
		"enabled":  true,
		"running":  s.monitor.IsRunning(),
		"runs":     s.monitor.Runs(),
		"breakers": s.monitor.BreakerStats(),
	})
}
