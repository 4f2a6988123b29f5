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

	"golang.org/x/time/rate"
)

// DefaultDiscordAPI is the Discord REST base URL.
const DefaultDiscordAPI = "https://discord.com/api/v10"

// DiscordConfig holds the bot credential and the two destinations.
type DiscordConfig struct {
	BaseURL     string
	Token       string
	RecipientID string // user id for private messages
	ChannelID   string // broadcast channel id
	Timeout     time.Duration
	// RequestsPerSecond paces outgoing requests; 0 uses a conservative default.
	RequestsPerSecond float64
}

// Discord implements Transport over the Discord bot REST API.
type Discord struct {
	cfg     DiscordConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDiscordAPI
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Discord{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 2),
	}
}

// Private opens (or reuses) the DM channel with the recipient and posts text.
func (d *Discord) Private(ctx context.Context, text string) error {
	if d.cfg.Token == "" || d.cfg.RecipientID == "" {
		return ErrNotConfigured
	}
	var ch struct {
		ID string `json:"id"`
	}
	if err := d.post(ctx, "/users/@me/channels", map[string]string{"recipient_id": d.cfg.RecipientID}, &ch); err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if ch.ID == "" {
		return fmt.Errorf("open dm channel: empty channel id")
	}
	return d.postMessage(ctx, ch.ID, text)
}

// Broadcast posts text to the configured channel.
func (d *Discord) Broadcast(ctx context.Context, text string) error {
	if d.cfg.Token == "" || d.cfg.ChannelID == "" {
		return ErrNotConfigured
	}
	return d.postMessage(ctx, d.cfg.ChannelID, text)
}

func (d *Discord) postMessage(ctx context.Context, channelID, text string) error {
	body := map[string]string{"content": Truncate(text)}
	if err := d.post(ctx, "/channels/"+channelID+"/messages", body, nil); err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

func (d *Discord) post(ctx context.Context, path string, body any, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+d.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
