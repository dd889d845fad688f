package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/liquidity"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifySignal    NotificationType = "signal"
	NotifySweep     NotificationType = "sweep"
	NotifyStructure NotificationType = "structure"
	NotifyError     NotificationType = "error"
	NotifyInfo      NotificationType = "info"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Price     float64
	Color     int
	Timestamp time.Time
	Extra     map[string]interface{}
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

const queueSize = 256

// Manager fans notifications out to every enabled provider. It is constructed
// explicitly and owned by the caller; there is no process-wide instance.
// Events from an attached bus are delivered by a worker between Start and Stop.
type Manager struct {
	mu        sync.RWMutex
	notifiers []Notifier
	enabled   bool
	minScore  float64
	now       func() time.Time
	onError   func(error)
	queue     *events.Queue
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	m := &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
		now:       time.Now,
	}
	m.queue = events.NewQueue(queueSize, m.deliver)
	return m
}

// Start runs the delivery worker for attached buses
func (m *Manager) Start(ctx context.Context) error {
	return m.queue.Start(ctx)
}

// Stop delivers what is already queued and stops the worker
func (m *Manager) Stop() error {
	return m.queue.Stop()
}

// Dropped returns how many bus events were lost to a full queue
func (m *Manager) Dropped() int64 {
	return m.queue.Dropped()
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// SetEnabled turns all delivery on or off
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// SetMinScore suppresses signal notifications scoring below score
func (m *Manager) SetMinScore(score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minScore = score
}

// Send sends a notification to all enabled providers and reports every failure
func (m *Manager) Send(notification *Notification) error {
	m.mu.RLock()
	enabled := m.enabled
	notifiers := append([]Notifier(nil), m.notifiers...)
	m.mu.RUnlock()

	if !enabled {
		return nil
	}

	var result *multierror.Error
	for _, n := range notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(notification); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return result.ErrorOrNil()
}

// SendSignal sends a trading signal notification
func (m *Manager) SendSignal(signal liquidity.TradingSignal) error {
	m.mu.RLock()
	minScore := m.minScore
	m.mu.RUnlock()
	if signal.Score.Total < minScore {
		return nil
	}

	style := SignalStyle(signal.Direction)
	return m.Send(&Notification{
		Type:  NotifySignal,
		Title: fmt.Sprintf("%s %s: %s", style.Icon, style.Label, signal.Symbol),
		Message: fmt.Sprintf("Entry %.4f | SL %.4f | TP %.4f (R:R %.1f)\nScore %.1f (%s) in %s session\n%s",
			signal.Entry, signal.StopLoss, signal.TakeProfit, signal.RiskReward,
			signal.Score.Total, signal.Score.Grade, signal.Session, signal.Reasoning),
		Symbol:    signal.Symbol,
		Price:     signal.Entry,
		Color:     style.Color,
		Timestamp: signal.CreatedAt,
		Extra: map[string]interface{}{
			"direction":   signal.Direction,
			"stop_loss":   signal.StopLoss,
			"take_profit": signal.TakeProfit,
			"score":       signal.Score.Total,
		},
	})
}

// SendSweep sends a liquidity sweep notification
func (m *Manager) SendSweep(symbol string, sweep liquidity.Sweep) error {
	style := SweepStyle(sweep.Direction)
	pool := PoolStyle(sweep.PoolType)
	return m.Send(&Notification{
		Type:  NotifySweep,
		Title: fmt.Sprintf("%s %s: %s", style.Icon, style.Label, symbol),
		Message: fmt.Sprintf("%s at %.4f swept to %.4f\nWick %.0f%% | Rejection %.0f%%",
			pool.Label, sweep.PoolPrice, sweep.Price, sweep.WickRatio*100, sweep.RejectionStrength*100),
		Symbol:    symbol,
		Price:     sweep.Price,
		Color:     style.Color,
		Timestamp: sweep.Time,
	})
}

// SendStructure sends a CHOCH/BOS notification
func (m *Manager) SendStructure(symbol string, change liquidity.StructureChange) error {
	style := StructureStyle(change.Kind, change.Direction)
	return m.Send(&Notification{
		Type:  NotifyStructure,
		Title: fmt.Sprintf("%s %s: %s", style.Icon, style.Label, symbol),
		Message: fmt.Sprintf("%s -> %s at %.4f (significance %.2f)",
			change.PreviousTrend, change.NewTrend, change.Price, change.Significance),
		Symbol:    symbol,
		Price:     change.Price,
		Color:     style.Color,
		Timestamp: change.Time,
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Color:     colorRed,
		Timestamp: m.now(),
	})
}

// Attach forwards signal, sweep and error events from bus to the providers and
// returns a function that detaches it again. The bus callback only queues the
// event, so publishers never wait on the network. Delivery errors are reported
// to onError when it is not nil.
func (m *Manager) Attach(bus *events.EventBus, onError func(error)) func() {
	m.mu.Lock()
	m.onError = onError
	m.mu.Unlock()
	return m.queue.Subscribe(bus, events.EventSignalAdded, events.EventSweepAdded, events.EventError)
}

func (m *Manager) deliver(_ context.Context, e events.Event) {
	var err error
	switch e.Type {
	case events.EventSignalAdded:
		if signal, ok := e.Data["signal"].(liquidity.TradingSignal); ok {
			err = m.SendSignal(signal)
		}
	case events.EventSweepAdded:
		if sweep, ok := e.Data["sweep"].(liquidity.Sweep); ok {
			err = m.SendSweep(e.Symbol, sweep)
		}
	case events.EventError:
		source, _ := e.Data["source"].(string)
		msg, _ := e.Data["error"].(string)
		err = m.SendError(strings.TrimSpace(e.Symbol+" "+source), msg)
	}

	m.mu.RLock()
	onError := m.onError
	m.mu.RUnlock()
	if err != nil && onError != nil {
		onError(err)
	}
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

const defaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultTelegramURL
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	// in HTML parse mode only <, > and & are special
	message := fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(notification.Title), html.EscapeString(notification.Message))

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := notification.Color
	if color == 0 {
		color = colorGray
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	// Add fields if available
	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.4f", notification.Price), "inline": true,
			})
		}
		if score, ok := notification.Extra["score"].(float64); ok {
			fields = append(fields, map[string]interface{}{
				"name": "Score", "value": fmt.Sprintf("%.1f", score), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
