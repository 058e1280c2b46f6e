// Package telegram provides a minimal Telegram Bot API client, long polling
// and update types.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aimd54/judge-helpdesk-bot/internal/config"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

const requestTimeout = 10 * time.Second

// Client calls the Bot API over HTTPS.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Bot API client.
func NewClient(cfg *config.TelegramConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("%s/bot%s", strings.TrimRight(cfg.APIURL, "/"), cfg.Token),
		httpClient: &http.Client{},
		log:        log,
	}
}

// apiResponse is the envelope of every Bot API response.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// SendMessage sends an HTML formatted message, optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) error {
	body := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}
	return c.call(ctx, "sendMessage", body, nil, requestTimeout)
}

// EditMessageText replaces the text and inline keyboard of a message the bot sent.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *InlineKeyboardMarkup) error {
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}
	return c.call(ctx, "editMessageText", body, nil, requestTimeout)
}

// AnswerCallbackQuery acknowledges an inline button press, optionally showing text.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	body := map[string]any{"callback_query_id": callbackQueryID}
	if text != "" {
		body["text"] = text
	}
	if showAlert {
		body["show_alert"] = true
	}
	return c.call(ctx, "answerCallbackQuery", body, nil, requestTimeout)
}

// Notify sends a plain notification to a user's private chat.
func (c *Client) Notify(ctx context.Context, userID int64, text string) error {
	return c.SendMessage(ctx, userID, text, nil)
}

// GetUpdates long polls for updates starting at offset.
// timeout is the server side wait in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	body := map[string]any{
		"timeout":         timeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		body["offset"] = offset
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", body, &updates, time.Duration(timeout+10)*time.Second); err != nil {
		return nil, err
	}
	return updates, nil
}

// SetWebhook registers url for update delivery; secret is echoed back in the
// X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	body := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", body, nil, requestTimeout)
}

// DeleteWebhook removes the webhook so long polling can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{}, nil, requestTimeout)
}

// SetMyCommands sets the list of bot commands shown in the command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return c.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil, requestTimeout)
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", map[string]any{}, &me, requestTimeout); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) call(ctx context.Context, method string, body map[string]any, result any, timeout time.Duration) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s response (status %d): %w", method, resp.StatusCode, err)
	}

	if !envelope.OK {
		apiErr := &APIError{Method: method, ErrorCode: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.ErrorCode == 0 {
			apiErr.ErrorCode = resp.StatusCode
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		return apiErr
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	c.log.Debug().Str("method", method).Msg("Telegram API call succeeded")
	return nil
}
