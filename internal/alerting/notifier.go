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

// Notification carries the context of a degraded sweep run.
type Notification struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Scanned     int
	Funded      int
	SweptAmount decimal.Decimal
	Failures    int
	TxIDs       []string
}

// Notifier delivers ops alerts.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram alerter.
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

// Notify sends the rendered text via the sendMessage API.
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
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Int("failures", note.Failures).
		Int("funded", note.Funded).
		Msg("sweep alert delivered (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[hostpay sweep]\n")
	builder.WriteString(fmt.Sprintf("Started: %s UTC\n", note.StartedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Scanned: %d addresses\n", note.Scanned))
	builder.WriteString(fmt.Sprintf("Funded: %d\n", note.Funded))
	builder.WriteString(fmt.Sprintf("Swept: %s units\n", note.SweptAmount.String()))
	builder.WriteString(fmt.Sprintf("Failures: %d\n", note.Failures))
	if len(note.TxIDs) > 0 {
		builder.WriteString(fmt.Sprintf("TxIDs: %s\n", strings.Join(note.TxIDs, ",")))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
