package notification

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/liquidity"
)

type recordingNotifier struct {
	name    string
	enabled bool
	fail    error
	sent    []*Notification
}

func (r *recordingNotifier) Send(n *Notification) error {
	r.sent = append(r.sent, n)
	return r.fail
}

func (r *recordingNotifier) Name() string    { return r.name }
func (r *recordingNotifier) IsEnabled() bool { return r.enabled }

func testSignal(score float64) liquidity.TradingSignal {
	return liquidity.TradingSignal{
		ID:         "sig",
		Symbol:     "BTCUSDT",
		Direction:  liquidity.Bearish,
		Score:      liquidity.SignalScore{Total: score, Grade: "C"},
		CreatedAt:  time.Date(2026, 1, 8, 14, 0, 0, 0, time.UTC),
		Entry:      115.2,
		StopLoss:   117,
		TakeProfit: 111.6,
		RiskReward: 2,
		Session:    liquidity.SessionOverlap,
		Reasoning:  "Change of character down",
	}
}

func TestManager_SendCollectsEveryFailure(t *testing.T) {
	m := NewManager()
	ok := &recordingNotifier{name: "ok", enabled: true}
	bad := &recordingNotifier{name: "bad", enabled: true, fail: errors.New("down")}
	off := &recordingNotifier{name: "off"}
	m.AddNotifier(ok)
	m.AddNotifier(bad)
	m.AddNotifier(off)

	err := m.SendSignal(testSignal(60))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, ok.sent, 1)
	assert.Empty(t, off.sent)
	assert.Contains(t, ok.sent[0].Title, "Bearish Signal")
	assert.Equal(t, colorRed, ok.sent[0].Color)

	m.SetEnabled(false)
	assert.NoError(t, m.SendError("x", "y"))
	assert.Len(t, ok.sent, 1)
}

func TestManager_MinScore(t *testing.T) {
	m := NewManager()
	rec := &recordingNotifier{name: "rec", enabled: true}
	m.AddNotifier(rec)
	m.SetMinScore(70)

	require.NoError(t, m.SendSignal(testSignal(60)))
	assert.Empty(t, rec.sent)
	require.NoError(t, m.SendSignal(testSignal(75)))
	assert.Len(t, rec.sent, 1)
}

func TestManager_AttachForwardsBusEvents(t *testing.T) {
	m := NewManager()
	rec := &recordingNotifier{name: "rec", enabled: true}
	m.AddNotifier(rec)

	bus := events.NewEventBus()
	detach := m.Attach(bus, nil)
	require.NoError(t, m.Start(context.Background()))

	bus.Publish(events.Event{Type: events.EventSignalAdded, Data: map[string]interface{}{"signal": testSignal(80)}})
	bus.Publish(events.Event{Type: events.EventSweepAdded, Symbol: "BTCUSDT", Data: map[string]interface{}{
		"sweep": liquidity.Sweep{PoolType: liquidity.PoolEqualHighs, PoolPrice: 115.5, Price: 120, Direction: liquidity.DirectionUp},
	}})
	bus.PublishError("BTCUSDT", "monitor", errors.New("fetch failed"))
	require.NoError(t, m.Stop())

	require.Len(t, rec.sent, 3)
	assert.Equal(t, NotifySignal, rec.sent[0].Type)
	assert.Contains(t, rec.sent[1].Message, "Equal Highs at 115.5000")
	assert.Equal(t, NotifyError, rec.sent[2].Type)
	assert.Contains(t, rec.sent[2].Title, "BTCUSDT monitor")

	detach()
	bus.Publish(events.Event{Type: events.EventSignalAdded, Data: map[string]interface{}{"signal": testSignal(80)}})
	assert.Len(t, rec.sent, 3)
}

type slowNotifier struct {
	recordingNotifier
	delay time.Duration
}

func (s *slowNotifier) Send(n *Notification) error {
	time.Sleep(s.delay)
	return s.recordingNotifier.Send(n)
}

func TestManager_PublishDoesNotWaitForDelivery(t *testing.T) {
	m := NewManager()
	slow := &slowNotifier{recordingNotifier: recordingNotifier{name: "slow", enabled: true}, delay: 200 * time.Millisecond}
	m.AddNotifier(slow)

	var failures []error
	bus := events.NewEventBus()
	m.Attach(bus, func(err error) { failures = append(failures, err) })
	require.NoError(t, m.Start(context.Background()))

	began := time.Now()
	bus.Publish(events.Event{Type: events.EventSignalAdded, Data: map[string]interface{}{"signal": testSignal(80)}})
	bus.Publish(events.Event{Type: events.EventSignalAdded, Data: map[string]interface{}{"signal": testSignal(81)}})
	assert.Less(t, time.Since(began), 100*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.Len(t, slow.sent, 2)
	assert.Empty(t, failures)
	assert.Zero(t, m.Dropped())
}

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(TelegramConfig{BotToken: "TOKEN", ChatID: "42", Enabled: true, BaseURL: srv.URL})
	require.True(t, tg.IsEnabled())
	require.NoError(t, tg.Send(&Notification{Title: "T", Message: "M"}))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "<b>T</b>\n\nM", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])

	assert.False(t, NewTelegramNotifier(TelegramConfig{Enabled: true}).IsEnabled())
}

func TestTelegramNotifier_SignalTextIsEscaped(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager()
	m.AddNotifier(NewTelegramNotifier(TelegramConfig{BotToken: "TOKEN", ChatID: "42", Enabled: true, BaseURL: srv.URL}))

	signal := testSignal(80)
	signal.Session = liquidity.SessionNewYork
	signal.Reasoning = "Swept equal_highs at 115.5 <wick> & close back *inside*"
	require.NoError(t, m.SendSignal(signal))

	text, _ := got["text"].(string)
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Contains(t, text, "equal_highs")
	assert.Contains(t, text, "new_york session")
	assert.Contains(t, text, "&lt;wick&gt; &amp; close")
	assert.NotContains(t, text, "<wick>")
	assert.True(t, strings.HasPrefix(text, "<b>"))
}

func TestDiscordNotifier_Send(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		body = buf.String()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true})
	require.NoError(t, d.Send(&Notification{Title: "T", Symbol: "BTCUSDT", Price: 1, Color: colorGreen, Extra: map[string]interface{}{"score": 70.0}}))
	assert.Contains(t, body, `"Score"`)
	assert.Contains(t, body, `"color":2533018`)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer failing.Close()
	assert.Error(t, NewDiscordNotifier(DiscordConfig{WebhookURL: failing.URL, Enabled: true}).Send(&Notification{}))
}

func TestStyles(t *testing.T) {
	for _, pt := range liquidity.AllPoolTypes {
		s := PoolStyle(pt)
		assert.NotEmpty(t, s.Label, pt)
		assert.NotZero(t, s.Color, pt)
	}
	assert.Equal(t, "CHOCH down", StructureStyle(liquidity.CHOCH, liquidity.DirectionDown).Label)
	assert.Equal(t, colorGreen, SignalStyle(liquidity.Bullish).Color)
}
