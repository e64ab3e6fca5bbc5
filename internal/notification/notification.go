package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyEntry    NotificationType = "entry"
	NotifyExit     NotificationType = "exit"
	NotifyBreaker  NotificationType = "breaker"
	NotifyMismatch NotificationType = "mismatch"
	NotifyRejected NotificationType = "rejected"
	NotifySummary  NotificationType = "summary"
	NotifyError    NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Ticker     string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
	Extra      map[string]interface{}
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendEntry sends an entry fill notification
func (m *Manager) SendEntry(ticker string, price, quantity, notional float64) error {
	return m.Send(&Notification{
		Type:      NotifyEntry,
		Title:     fmt.Sprintf("📈 Entry: %s", ticker),
		Message:   fmt.Sprintf("BUY %s\nPrice: %.2f\nQuantity: %.4f\nNotional: $%.2f", ticker, price, quantity, notional),
		Ticker:    ticker,
		Price:     price,
		Timestamp: time.Now(),
	})
}

// SendExit sends an exit fill notification with its reason
func (m *Manager) SendExit(ticker, reason string, entryPrice, exitPrice, pnl, pnlPercent float64) error {
	emoji := "✅"
	if pnl < 0 {
		emoji = "❌"
	}

	return m.Send(&Notification{
		Type:       NotifyExit,
		Title:      fmt.Sprintf("%s Exit: %s (%s)", emoji, ticker, reason),
		Message:    fmt.Sprintf("Entry: %.2f → Exit: %.2f\nP&L: %.2f (%.2f%%)\nReason: %s", entryPrice, exitPrice, pnl, pnlPercent, reason),
		Ticker:     ticker,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Timestamp:  time.Now(),
		Extra:      map[string]interface{}{"reason": reason},
	})
}

// SendBreakerTransition sends a circuit breaker state change
func (m *Manager) SendBreakerTransition(from, to, reason string) error {
	return m.Send(&Notification{
		Type:      NotifyBreaker,
		Title:     fmt.Sprintf("🚨 Circuit Breaker: %s → %s", from, to),
		Message:   fmt.Sprintf("Reason: %s", reason),
		Timestamp: time.Now(),
		Extra:     map[string]interface{}{"from": from, "to": to},
	})
}

// SendMismatch sends a reconciliation mismatch alert
func (m *Manager) SendMismatch(ticker string, localQty, brokerQty float64) error {
	return m.Send(&Notification{
		Type:      NotifyMismatch,
		Title:     fmt.Sprintf("⚠️ Reconciliation Mismatch: %s", ticker),
		Message:   fmt.Sprintf("Ledger: %.4f shares\nBroker: %.4f shares\n%s quarantined until cleared", localQty, brokerQty, ticker),
		Ticker:    ticker,
		Timestamp: time.Now(),
	})
}

// SendRejection sends an order rejection alert
func (m *Manager) SendRejection(ticker, side, reason, detail string) error {
	return m.Send(&Notification{
		Type:      NotifyRejected,
		Title:     fmt.Sprintf("⛔ Order Rejected: %s", ticker),
		Message:   fmt.Sprintf("%s %s\nReason: %s\n%s", side, ticker, reason, detail),
		Ticker:    ticker,
		Timestamp: time.Now(),
	})
}

// SendSessionSummary sends the end-of-session report
func (m *Manager) SendSessionSummary(trades int, winRate, realizedPnL, maxDrawdown float64) error {
	emoji := "📊"
	if realizedPnL < 0 {
		emoji = "📉"
	}

	return m.Send(&Notification{
		Type: NotifySummary,
		Title: fmt.Sprintf("%s Session Summary", emoji),
		Message: fmt.Sprintf("Trades: %d\nWin rate: %.1f%%\nRealized P&L: $%.2f\nMax drawdown: %.2f%%",
			trades, winRate, realizedPnL, maxDrawdown),
		PnL:       realizedPnL,
		Timestamp: time.Now(),
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
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

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
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
	WebhookURL string
	Enabled    bool
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

	// Create Discord embed
	color := 0x00FF00 // Green
	switch {
	case notification.Type == NotifyError || notification.Type == NotifyMismatch || notification.Type == NotifyBreaker:
		color = 0xFF0000 // Red
	case notification.Type == NotifyRejected:
		color = 0xFFA500 // Orange
	case notification.Type == NotifyExit && notification.PnL < 0:
		color = 0xFF0000 // Red
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	// Add fields if available
	if notification.Ticker != "" {
		fields := []map[string]interface{}{
			{"name": "Ticker", "value": notification.Ticker, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.2f", notification.Price), "inline": true,
			})
		}
		if notification.PnL != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.2f (%.2f%%)", notification.PnL, notification.PnLPercent), "inline": true,
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
