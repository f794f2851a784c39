package notify

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

// AlertKind identifies the notification template upstream consumers apply.
type AlertKind string

const (
	KindNewAirdrop   AlertKind = "new_airdrop"
	KindSnapshotSoon AlertKind = "snapshot_soon"
	KindClaimable    AlertKind = "claimable"
	KindReminder     AlertKind = "reminder"
)

// Alert 封装告警上下文。
type Alert struct {
	Kind           AlertKind
	Token          string
	Name           string
	ScheduledAt    time.Time
	Points         int
	DeductPoints   int
	Amount         decimal.Decimal
	EstimatedValue decimal.Decimal
	Chain          string
	Status         string
	Channels       []string
	AdditionalMsg  string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
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
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("kind", string(alert.Kind)).
		Str("token", alert.Token).
		Str("channels", strings.Join(alert.Channels, ",")).
		Msg("告警已发送 (Telegram)")
	return nil
}

var alertTitles = map[AlertKind]string{
	KindNewAirdrop:   "New Alpha Airdrop",
	KindSnapshotSoon: "Snapshot Approaching",
	KindClaimable:    "Claim Window Open",
	KindReminder:     "Airdrop Reminder",
}

func renderMessage(alert Alert) string {
	title := alertTitles[alert.Kind]
	if title == "" {
		title = "Alpha Alert"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", title, alert.Token))
	if alert.Name != "" && alert.Name != alert.Token {
		builder.WriteString(fmt.Sprintf("Name: %s\n", alert.Name))
	}
	if !alert.ScheduledAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Scheduled: %s UTC\n", alert.ScheduledAt.UTC().Format(time.RFC3339)))
	}
	if alert.Points > 0 {
		builder.WriteString(fmt.Sprintf("Points: %d (deduct %d)\n", alert.Points, alert.DeductPoints))
	}
	if !alert.Amount.IsZero() {
		builder.WriteString(fmt.Sprintf("Amount: %s\n", alert.Amount.String()))
	}
	if !alert.EstimatedValue.IsZero() {
		builder.WriteString(fmt.Sprintf("Est. Value: $%s\n", alert.EstimatedValue.StringFixed(2)))
	}
	if alert.Chain != "" {
		builder.WriteString(fmt.Sprintf("Chain: %s\n", alert.Chain))
	}
	if alert.Status != "" {
		builder.WriteString(fmt.Sprintf("Status: %s\n", alert.Status))
	}
	if len(alert.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(alert.Channels, ",")))
	}
	if alert.AdditionalMsg != "" {
		builder.WriteString(alert.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
