package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed   = 16711680
	colorGreen = 65280
)

// Discord posts run outcomes to webhooks. Empty URLs disable the matching
// notification.
type Discord struct {
	SuccessURL string
	ErrorURL   string
	Client     *http.Client
}

func NewDiscord(successURL, errorURL string) *Discord {
	return &Discord{
		SuccessURL: successURL,
		ErrorURL:   errorURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether at least one webhook is set.
func (d *Discord) Enabled() bool {
	return d != nil && (d.SuccessURL != "" || d.ErrorURL != "")
}

func (d *Discord) SendError(ctx context.Context, errorMessage string) error {
	if d == nil {
		return nil
	}
	return d.send(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Ricemap run failed",
		Description: fmt.Sprintf("An error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

func (d *Discord) SendSuccess(ctx context.Context, successMessage string) error {
	if d == nil {
		return nil
	}
	return d.send(ctx, d.SuccessURL, DiscordEmbed{
		Title:       "✅ Ricemap run finished",
		Description: successMessage,
		Color:       colorGreen,
	})
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return eris.Wrap(err, "notification: marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return eris.Wrap(err, "notification: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notification: post webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return eris.Errorf("notification: failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
