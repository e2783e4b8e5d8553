// Package line adapts the LINE Messaging API to the attendance interfaces:
// webhook parsing with signature checks, replies and profile lookups.
package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/celerix-dev/celerix-attendance/internal/attendance"
)

// Client implements attendance.EventSource, attendance.Replier and
// attendance.ProfileLookup.
type Client struct {
	bot *linebot.Client
}

var (
	_ attendance.EventSource   = (*Client)(nil)
	_ attendance.Replier       = (*Client)(nil)
	_ attendance.ProfileLookup = (*Client)(nil)
)

// Option configures the underlying SDK client.
type Option = linebot.ClientOption

// WithEndpoint points the client at a different API base URL.
func WithEndpoint(base string) Option {
	return linebot.WithEndpointBase(base)
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return linebot.WithHTTPClient(c)
}

// New creates a client for one channel.
func New(channelSecret, channelAccessToken string, opts ...Option) (*Client, error) {
	bot, err := linebot.New(channelSecret, channelAccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("line: %w", err)
	}
	return &Client{bot: bot}, nil
}

// ParseRequest verifies the X-Line-Signature header and decodes the events.
func (c *Client) ParseRequest(r *http.Request) ([]attendance.Event, error) {
	events, err := c.bot.ParseRequest(r)
	if errors.Is(err, linebot.ErrInvalidSignature) {
		return nil, attendance.ErrInvalidSignature
	}
	if err != nil {
		return nil, fmt.Errorf("line: %w", err)
	}

	out := make([]attendance.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, convert(ev))
	}
	return out, nil
}

func convert(ev *linebot.Event) attendance.Event {
	e := attendance.Event{
		Type:       string(ev.Type),
		ReplyToken: ev.ReplyToken,
	}
	if ev.Source != nil {
		e.UserID = ev.Source.UserID
	}
	switch m := ev.Message.(type) {
	case nil:
	case *linebot.TextMessage:
		e.MessageType = "text"
		e.Text = m.Text
	default:
		e.MessageType = "unsupported"
	}
	return e
}

// Reply sends a single text message for a reply token.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	_, err := c.bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	if err != nil {
		return fmt.Errorf("line: reply: %w", err)
	}
	return nil
}

// DisplayName fetches the user's profile name.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	profile, err := c.bot.GetProfile(userID).WithContext(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("line: profile: %w", err)
	}
	return profile.DisplayName, nil
}
