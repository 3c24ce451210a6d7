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

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"steem-patron-bot/internal/observability"
)

// DefaultDiscordBaseURL is the Discord REST API root.
const DefaultDiscordBaseURL = "https://discord.com/api/v10"

// maxMessageLength is Discord's limit on message content.
const maxMessageLength = 2000

// DiscordOptions configures Discord.
type DiscordOptions struct {
	BaseURL    string // Default: DefaultDiscordBaseURL
	Token      string // bot token
	GuildID    string
	MaxRetries int           // Default: 3
	Timeout    time.Duration // Default: 10s per request
	Logger     zerolog.Logger
}

// Discord implements Notifier and MembershipGranter over the Discord REST API.
// 429 and 5xx responses are retried with backoff, honouring Retry-After.
type Discord struct {
	baseURL string
	token   string
	guildID string
	client  *retryablehttp.Client
	logger  zerolog.Logger
}

// NewDiscord creates a Discord sink.
func NewDiscord(opts DiscordOptions) (*Discord, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	if _, err := snowflake.ParseString(opts.GuildID); err != nil {
		return nil, fmt.Errorf("invalid guild id %q: %w", opts.GuildID, err)
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultDiscordBaseURL
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	return &Discord{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.Token,
		guildID: opts.GuildID,
		client:  client,
		logger:  opts.Logger,
	}, nil
}

var (
	_ Notifier          = (*Discord)(nil)
	_ MembershipGranter = (*Discord)(nil)
)

// Notify posts message to channelID, truncated to Discord's length limit.
func (d *Discord) Notify(ctx context.Context, channelID, message string) error {
	if _, err := snowflake.ParseString(channelID); err != nil {
		observability.RecordNotificationError("message")
		return fmt.Errorf("invalid channel id %q: %w", channelID, err)
	}
	if len(message) > maxMessageLength {
		message = message[:maxMessageLength]
	}

	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := d.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body); err != nil {
		observability.RecordNotificationError("message")
		return fmt.Errorf("post message to %s: %w", channelID, err)
	}
	return nil
}

// GrantRole adds roleID to userID in the configured guild.
func (d *Discord) GrantRole(ctx context.Context, userID, roleID string) error {
	for _, id := range []string{userID, roleID} {
		if _, err := snowflake.ParseString(id); err != nil {
			observability.RecordNotificationError("role")
			return fmt.Errorf("invalid snowflake %q: %w", id, err)
		}
	}

	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", d.guildID, userID, roleID)
	if err := d.do(ctx, http.MethodPut, path, nil); err != nil {
		observability.RecordNotificationError("role")
		return fmt.Errorf("grant role %s to %s: %w", roleID, userID, err)
	}
	d.logger.Debug().Str("user_id", userID).Str("role_id", roleID).Msg("role granted")
	return nil
}

func (d *Discord) do(ctx context.Context, method, path string, body []byte) error {
	var payload interface{}
	if body != nil {
		payload = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, d.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+d.token)
	req.Header.Set("User-Agent", "steem-patron-bot")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
