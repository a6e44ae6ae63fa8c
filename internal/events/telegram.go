package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramNotifier 通过 Telegram Bot API 向操作员推送事件。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 通知器。
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
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, ev Event) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(ev),
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

	n.logger.Info().Str("kind", string(ev.Kind)).Msg("通知已发送 (Telegram)")
	return nil
}

func renderMessage(ev Event) string {
	builder := strings.Builder{}
	switch ev.Kind {
	case KindRareItemFound:
		builder.WriteString("[Rare Item Found]\n")
		if ev.Profile != nil {
			builder.WriteString(fmt.Sprintf("Source: %d  Message: %d\n", ev.Profile.SourceChatID, ev.Profile.MessageID))
		}
		for _, item := range ev.Items {
			builder.WriteString(fmt.Sprintf("- %s (tier %d, conf %.2f)\n", item.Name, item.RarityTier, item.Confidence))
		}
	case KindGoodPrice:
		builder.WriteString("[Good Price]\n")
		if ev.Profile != nil {
			builder.WriteString(fmt.Sprintf("Source: %d  Message: %d\n", ev.Profile.SourceChatID, ev.Profile.MessageID))
			builder.WriteString(fmt.Sprintf("Items: %d\n", len(ev.Profile.Items)))
		}
		if ev.Estimate != nil {
			builder.WriteString(fmt.Sprintf("Estimate: %s (%s - %s)\n",
				ev.Estimate.Point.StringFixed(2), ev.Estimate.Low.StringFixed(2), ev.Estimate.High.StringFixed(2)))
		}
	case KindSourceRemoved:
		builder.WriteString("[Source Removed]\n")
		builder.WriteString(fmt.Sprintf("Chat: %d %s\n", ev.SourceChatID, ev.SourceTitle))
	default:
		builder.WriteString(fmt.Sprintf("[%s]\n", ev.Kind))
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC", ev.At.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
