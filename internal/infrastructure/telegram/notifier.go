package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"CoinAggregator/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	maxMessageLen  = 4096
)

// Notifier sends run summaries to a Telegram chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// PublishDigest posts a plain-text message, truncated to Telegram's limit.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  truncate(digest, maxMessageLen),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(n.apiBase, "/"), n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body apiResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil && body.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, body.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
