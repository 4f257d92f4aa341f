package notify

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// eventMarker prefixes each message so an operator can tell money-at-risk
// alerts from routine ones at a glance.
func eventMarker(event string) string {
	switch event {
	case EventSettled:
		return "✅" // check mark
	case EventStranded:
		return "\U0001F6A8" // rotating light
	case EventReconcile:
		return "⚠️" // warning sign
	case EventFeedError:
		return "\U0001F4E1" // satellite antenna
	default:
		return "ℹ️" // information
	}
}

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiBase: telegramAPIBase,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one sendMessage call. Title and body are HTML-escaped: failure
// reasons carry raw venue error strings that would otherwise break parsing.
func (t *TelegramSender) Send(ctx context.Context, event, title, message string) error {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("parse_mode", "HTML")
	form.Set("text", fmt.Sprintf("%s <b>%s</b>\n%s",
		eventMarker(event), html.EscapeString(title), html.EscapeString(message)))

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
