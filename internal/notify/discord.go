package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const embedColorGreen = 5814783

// Discord delivers alerts to a Discord webhook as embeds.
type Discord struct {
	webhookURL string
	http       *resty.Client
}

// NewDiscord creates a Discord webhook notifier.
func NewDiscord(webhookURL string) *Discord {
	client := resty.New().SetTimeout(10 * time.Second)
	return &Discord{webhookURL: webhookURL, http: client}
}

type discordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	URL         string             `json:"url,omitempty"`
	Footer      *discordFooter     `json:"footer,omitempty"`
	Thumbnail   *discordAttachment `json:"thumbnail,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordAttachment struct {
	URL string `json:"url"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Send posts the alert to the webhook.
func (d *Discord) Send(ctx context.Context, a Alert) error {
	embed := discordEmbed{
		Title:       a.Title,
		Description: a.Description,
		Color:       embedColorGreen,
		URL:         a.URL,
	}
	if a.Source != "" {
		embed.Footer = &discordFooter{Text: "Source: " + a.Source}
	}
	if a.Image != "" {
		embed.Thumbnail = &discordAttachment{URL: a.Image}
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(discordPayload{Embeds: []discordEmbed{embed}}).
		Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("webhook status %d", resp.StatusCode())
	}
	return nil
}
