// Package mattermost mirrors ticket activity to a staff channel through an incoming webhook.
package mattermost

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

const botUsername = "Judge Helpdesk"

// Client handles Mattermost webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Mattermost client.
func NewClient(cfg *config.MattermostConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: http.DefaultClient,
		log:        log,
	}
}

// Message represents a Mattermost message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// Event kinds mirrored to the channel.
const (
	EventCreated    = "created"
	EventClaimed    = "claimed"
	EventClosed     = "closed"
	EventAutoClosed = "auto_closed"
)

// TicketEvent describes one ticket transition for the staff channel.
type TicketEvent struct {
	Kind        string
	TicketID    uint
	TicketType  string
	Owner       string
	Actor       string // empty for system actions
	Description string
}

// SendMessage sends a message to Mattermost. A disabled client drops it silently.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Mattermost is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	if msg.Username == "" {
		msg.Username = botUsername
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mattermost returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to Mattermost")

	return nil
}

// SendTicketEvent posts a ticket transition.
func (c *Client) SendTicketEvent(ctx context.Context, ev TicketEvent) error {
	title, color := eventTitle(ev.Kind)

	fields := []Field{
		{Short: true, Title: "Type", Value: ev.TicketType},
		{Short: true, Title: "Player", Value: ev.Owner},
	}
	if ev.Actor != "" {
		fields = append(fields, Field{Short: true, Title: "Judge", Value: ev.Actor})
	}

	attachment := Attachment{
		Fallback: fmt.Sprintf("%s #%d", title, ev.TicketID),
		Color:    color,
		Title:    fmt.Sprintf("%s #%d", title, ev.TicketID),
		Fields:   fields,
	}
	if ev.Kind == EventCreated {
		attachment.Text = truncate(ev.Description, 300)
	}

	return c.SendMessage(ctx, &Message{Attachments: []Attachment{attachment}})
}

// SendSweepSummary posts the result of an auto-close run. Nothing is sent when no ticket was closed.
func (c *Client) SendSweepSummary(ctx context.Context, days int, ticketIDs []uint) error {
	if len(ticketIDs) == 0 {
		return nil
	}

	ids := make([]string, len(ticketIDs))
	for i, id := range ticketIDs {
		ids[i] = fmt.Sprintf("#%d", id)
	}

	text := fmt.Sprintf("### 🧹 Stale ticket sweep\n\nClosed **%d** ticket(s) older than %d days: %s",
		len(ticketIDs), days, strings.Join(ids, ", "))
	return c.SendMessage(ctx, &Message{Text: text})
}

func eventTitle(kind string) (title, color string) {
	switch kind {
	case EventCreated:
		return "🆕 New ticket", "#2eb886"
	case EventClaimed:
		return "🛠 Ticket taken", "#daa038"
	case EventClosed:
		return "✅ Ticket closed", "#808080"
	case EventAutoClosed:
		return "⏰ Ticket auto-closed", "#808080"
	default:
		return "Ticket " + kind, ""
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
