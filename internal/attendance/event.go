package attendance

import (
	"context"
	"errors"
	"net/http"
)

// ErrInvalidSignature is returned by an EventSource when a webhook request
// was not signed with the channel secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is one inbound webhook event, reduced to what attendance needs.
type Event struct {
	Type        string // "message", "follow", ...
	UserID      string
	ReplyToken  string
	MessageType string // "text", "image", ... ; empty for non-message events
	Text        string
}

// IsText reports whether the event is a text message, the only kind that is
// handled.
func (e Event) IsText() bool {
	return e.Type == "message" && e.MessageType == "text"
}

// EventSource verifies and decodes a webhook delivery.
type EventSource interface {
	ParseRequest(r *http.Request) ([]Event, error)
}

// Replier delivers a reply to a single event.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}
