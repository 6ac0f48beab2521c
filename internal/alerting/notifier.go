package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification describes a quantity that has been stale for too long, or
// one that recovered after an alert.
type Notification struct {
	At          time.Time
	Quantity    string
	Label       string
	Failures    int
	LastGood    decimal.Decimal
	LastUpdated time.Time
	LastError   string
	Recovered   bool
	Channels    []string
}

// Notifier defines alert delivery.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes alerts to the log only.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the notification at warn level, or info for recoveries.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	event := n.logger.Warn()
	if note.Recovered {
		event = n.logger.Info()
	}
	event.Str("quantity", note.Quantity).
		Int("failures", note.Failures).
		Str("last_good", note.LastGood.String()).
		Time("last_updated", note.LastUpdated).
		Str("last_error", note.LastError).
		Bool("recovered", note.Recovered).
		Msg("staleness alert")
	return nil
}

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("quantity", note.Quantity).
		Bool("recovered", note.Recovered).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("alert sent")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	if note.Recovered {
		builder.WriteString("[QI/QUAI Recovered]\n")
	} else {
		builder.WriteString("[QI/QUAI Stale Data]\n")
	}
	name := note.Quantity
	if note.Label != "" {
		name = fmt.Sprintf("%s (%s)", note.Label, note.Quantity)
	}
	builder.WriteString(fmt.Sprintf("Quantity: %s\n", name))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	if !note.Recovered {
		builder.WriteString(fmt.Sprintf("Failed refreshes: %d\n", note.Failures))
	}
	if note.LastUpdated.IsZero() {
		builder.WriteString("Last good value: never observed\n")
	} else {
		builder.WriteString(fmt.Sprintf("Last good value: %s (%s UTC)\n", note.LastGood.String(), note.LastUpdated.UTC().Format(time.RFC3339)))
	}
	if note.LastError != "" {
		builder.WriteString(fmt.Sprintf("Last error: %s\n", note.LastError))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	return builder.String()
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify delivers to every notifier and returns the first error.
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
