// Package notify предоставляет клиент вебхука, в который публикуются новые заказы.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/900f/Phantom/internal/model"
	"github.com/900f/Phantom/internal/pricing"
)

const (
	embedTitle  = "🚀 New Order Received"
	embedColor  = 0x6755f0
	embedFooter = "Phantom Services"
)

// Client инкапсулирует HTTP-взаимодействие с вебхуком Discord.
type Client struct {
	webhookURL string
	httpClient *http.Client
	now        func() time.Time
}

// Field описывает поле карточки заказа.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Footer описывает подпись карточки.
type Footer struct {
	Text string `json:"text"`
}

// Embed описывает карточку сообщения в формате Discord.
type Embed struct {
	Title     string  `json:"title"`
	Color     int     `json:"color"`
	Fields    []Field `json:"fields"`
	Timestamp string  `json:"timestamp"`
	Footer    Footer  `json:"footer"`
}

// Payload описывает тело запроса к вебхуку.
type Payload struct {
	Embeds []Embed `json:"embeds"`
}

// NewClient создаёт клиент вебхука по указанному адресу.
func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: strings.TrimSpace(webhookURL),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		now: time.Now,
	}
}

// NotifyOrder отправляет карточку нового заказа.
func (c *Client) NotifyOrder(ctx context.Context, o model.Order) error {
	if c == nil || c.webhookURL == "" {
		return fmt.Errorf("webhook client not configured")
	}

	body, err := json.Marshal(Payload{Embeds: []Embed{c.orderEmbed(o)}})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) orderEmbed(o model.Order) Embed {
	priority := "No"
	if o.Priority {
		priority = "Yes (+£" + pricing.PrioritySurcharge.String() + ")"
	}

	addons := "None"
	if len(o.Addons) > 0 {
		addons = strings.Join(o.Addons, ", ")
	}

	return Embed{
		Title: embedTitle,
		Color: embedColor,
		Fields: []Field{
			{Name: "📋 Order ID", Value: o.ID, Inline: true},
			{Name: "🎮 Username", Value: o.Username, Inline: true},
			{Name: "💬 Discord", Value: o.Discord, Inline: true},
			{Name: "📈 Current Rank", Value: o.CurrentRank, Inline: true},
			{Name: "🏆 Desired Rank", Value: o.DesiredRank, Inline: true},
			{Name: "👤 Booster", Value: o.Booster, Inline: true},
			{Name: "💰 Total Price", Value: "£" + o.TotalPrice.String(), Inline: true},
			{Name: "⚡ Priority", Value: priority, Inline: true},
			{Name: "🧾 Invoice ID", Value: o.InvoiceID, Inline: true},
			{Name: "➕ Add-ons", Value: addons, Inline: false},
		},
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Footer:    Footer{Text: embedFooter},
	}
}
