package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-hunter/config"
	"liquidity-hunter/internal/auth"
	"liquidity-hunter/internal/engine"
	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/liquidity/liquiditytest"
	"liquidity-hunter/internal/store"
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *events.EventBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := events.NewEventBus()
	reg, err := engine.NewRegistry(liquidity.DefaultConfig(),
		engine.WithClock(liquiditytest.ClockAt(14)),
		engine.WithEventBus(bus),
	)
	require.NoError(t, err)
	return NewServer(config.Default().ServerConfig, reg, bus, opts...), bus
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	degraded, _ := newTestServer(t,
		WithHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
		WithHealthCheck("postgres", func(context.Context) error { return nil }),
	)
	w = do(t, degraded.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, "ok", components["postgres"])
	assert.Equal(t, "connection refused", components["redis"])
}

func TestAnalyzeAndReadBack(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodPost, "/api/v1/analyze/btcusdt", AnalyzeRequest{Candles: liquiditytest.ReversalWithSweep()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[liquidity.AnalysisResult](t, w).Data
	assert.Equal(t, "BTCUSDT", result.Symbol)
	require.NotNil(t, result.Signal)
	assert.Equal(t, liquidity.Bearish, result.Signal.Direction)

	w = do(t, h, http.MethodGet, "/api/v1/symbols", nil)
	assert.Equal(t, []string{"BTCUSDT"}, decode[[]string](t, w).Data)

	w = do(t, h, http.MethodGet, "/api/v1/state/BTCUSDT", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[store.State](t, w).Data
	assert.Len(t, state.Signals, 1)
	assert.Len(t, state.Candles, len(liquiditytest.ReversalWithSweep()))

	w = do(t, h, http.MethodGet, "/api/v1/pools/BTCUSDT/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, p := range decode[[]liquidity.Pool](t, w).Data {
		assert.Equal(t, liquidity.PoolActive, p.Status)
	}

	w = do(t, h, http.MethodGet, "/api/v1/signals/BTCUSDT/recent?limit=5", nil)
	signals := decode[[]liquidity.TradingSignal](t, w).Data
	require.Len(t, signals, 1)
	assert.Equal(t, result.Signal.ID, signals[0].ID)

	w = do(t, h, http.MethodGet, "/api/v1/statistics/BTCUSDT", nil)
	stats := decode[store.Statistics](t, w).Data
	assert.Equal(t, 1, stats.TotalSignals)
	assert.Equal(t, 1, stats.BearishSignals)
}

func TestAnalyze_Rejects(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodPost, "/api/v1/analyze/BTCUSDT", []byte(`{"candles":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/analyze/BTCUSDT", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := liquiditytest.FlatCandles(3)
	bad[1].Low = bad[1].High + 1
	w = do(t, h, http.MethodPost, "/api/v1/analyze/BTCUSDT", AnalyzeRequest{Candles: bad})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[any](t, w).Message, "candle 1")

	assert.False(t, s.registry.Has("BTCUSDT"))
}

func TestUnknownSymbol(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{
		"/api/v1/state/NOPE",
		"/api/v1/pools/NOPE/active",
		"/api/v1/signals/NOPE/recent",
		"/api/v1/statistics/NOPE",
		"/api/v1/export/NOPE",
	} {
		w := do(t, s.Router(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	assert.Empty(t, s.registry.Symbols())
}

func TestExportImport(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	w := do(t, h, http.MethodPost, "/api/v1/analyze/BTCUSDT", AnalyzeRequest{Candles: liquiditytest.ReversalWithSweep()})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/export/BTCUSDT", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snapshot := w.Body.Bytes()

	w = do(t, h, http.MethodPost, "/api/v1/import/BTCBACKUP", snapshot)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[store.Statistics](t, w).Data.TotalSignals)

	w = do(t, h, http.MethodPost, "/api/v1/import/BTCBACKUP", []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubHistory struct {
	symbol string
	limit  int
}

func (h *stubHistory) RecentSignals(_ context.Context, symbol string, limit int) ([]liquidity.TradingSignal, error) {
	h.symbol, h.limit = symbol, limit
	return []liquidity.TradingSignal{{ID: "s1", Symbol: symbol}}, nil
}

func TestSignalHistory(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/api/v1/history/signals", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	hist := &stubHistory{}
	s, _ = newTestServer(t, WithSignalHistory(HistoryFunc(hist.RecentSignals)))
	w = do(t, s.Router(), http.MethodGet, "/api/v1/history/signals?symbol=ethusdt&limit=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ETHUSDT", hist.symbol)
	assert.Equal(t, 7, hist.limit)
	assert.Len(t, decode[[]liquidity.TradingSignal](t, w).Data, 1)
}

func TestMonitorStatus_Disabled(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/api/v1/monitor/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]interface{}](t, w).Data["enabled"])
}

func TestAuth(t *testing.T) {
	m := auth.NewJWTManager("0123456789abcdef0123", "")
	reader, err := m.GenerateToken("dashboard", []string{auth.ScopeRead}, time.Hour)
	require.NoError(t, err)
	writer, err := m.GenerateToken("ingest", []string{auth.ScopeWrite}, time.Hour)
	require.NoError(t, err)

	s, _ := newTestServer(t, WithAuth(m))
	h := s.Router()
	body := AnalyzeRequest{Candles: liquiditytest.FlatCandles(60)}

	w := do(t, h, http.MethodGet, "/api/v1/symbols", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/symbols", nil, "Authorization", "Bearer "+reader)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/analyze/BTCUSDT", body, "Authorization", "Bearer "+reader)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/analyze/BTCUSDT", body, "Authorization", "Bearer "+writer)
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays public
	w = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, WithRateLimit(1, time.Minute))
	body := AnalyzeRequest{Candles: liquiditytest.FlatCandles(60)}

	w := do(t, s.Router(), http.MethodPost, "/api/v1/analyze/BTCUSDT", body)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, s.Router(), http.MethodPost, "/api/v1/analyze/BTCUSDT", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// reads are not limited
	w = do(t, s.Router(), http.MethodGet, "/api/v1/state/BTCUSDT", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_Window(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/symbols", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocket_StreamsFilteredEvents(t *testing.T) {
	s, bus := newTestServer(t)
	s.Hub().Start(bus)
	defer s.Hub().Stop()

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?symbol=btcusdt&types=signal_added"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "CONNECTED", hello["type"])

	require.Eventually(t, func() bool { return s.Hub().GetClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	// another symbol's signal must not reach the client
	bus.Publish(events.Event{Type: events.EventSignalAdded, Symbol: "ETHUSDT"})

	w := do(t, s.Router(), http.MethodPost, "/api/v1/analyze/BTCUSDT", AnalyzeRequest{Candles: liquiditytest.ReversalWithSweep()})
	require.Equal(t, http.StatusOK, w.Code)

	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventSignalAdded, ev.Type)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.Contains(t, ev.Data, "signal")
}

func TestWebSocket_RequiresToken(t *testing.T) {
	m := auth.NewJWTManager("0123456789abcdef0123", "")
	s, bus := newTestServer(t, WithAuth(m))
	s.Hub().Start(bus)
	defer s.Hub().Stop()

	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := m.GenerateToken("dashboard", []string{auth.ScopeRead}, time.Hour)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	require.NoError(t, err)
	conn.Close()
}
