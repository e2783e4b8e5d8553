// Package engine holds the attendance session store and the user directory,
// together with their durable backends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

var (
	// ErrInvalidTransition is returned when a mutation does not fit the
	// user's current state. Callers match it with errors.Is.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSessionOpen is returned by AppendOpenSession when the last session is still open.
	ErrSessionOpen = fmt.Errorf("%w: session already open", ErrInvalidTransition)
	// ErrNoOpenSession is returned by CloseLastSession when there is nothing to close.
	ErrNoOpenSession = fmt.Errorf("%w: no open session", ErrInvalidTransition)

	// ErrCorruptState is returned when durable state exists but cannot be
	// decoded or violates the session invariant.
	ErrCorruptState = errors.New("corrupt state")
)

// SessionReader exposes the read side of a session store.
type SessionReader interface {
	// Get returns a copy of the user's sessions, oldest first. Unknown users
	// have no sessions.
	Get(ctx context.Context, userID string) ([]schema.Session, error)
	// AllUsers returns every user's sessions in first-seen user order.
	AllUsers(ctx context.Context) ([]schema.UserSessions, error)
}

// SessionWriter exposes the conditional mutations of a session store.
// Each mutation is flushed to durable storage before it returns.
type SessionWriter interface {
	// AppendOpenSession opens a new session unless the last one is still open.
	AppendOpenSession(ctx context.Context, userID string, startedAt time.Time, display string) (schema.Session, error)
	// CloseLastSession closes the last session if it is open.
	CloseLastSession(ctx context.Context, userID string, endedAt time.Time, display string) (schema.Session, error)
}

// SessionStore is the full session store contract. Both the file backed
// MemStore and RedisStore implement it.
type SessionStore interface {
	SessionReader
	SessionWriter
}

// Directory maps user identifiers to display names.
type Directory interface {
	// Name returns the stored display name and whether one exists.
	Name(ctx context.Context, userID string) (string, bool, error)
	// Remember stores a name for a user that has none. Existing names are
	// never replaced.
	Remember(ctx context.Context, userID, name string) error
	// Names returns a copy of the whole directory.
	Names(ctx context.Context) (map[string]string, error)
}

// CheckSessions verifies that at most one session is open and that an open
// session can only be the last one.
func CheckSessions(sessions []schema.Session) error {
	for i, s := range sessions {
		if s.IsOpen() && i != len(sessions)-1 {
			return fmt.Errorf("session %d of %d is open but not last", i+1, len(sessions))
		}
	}
	return nil
}

func appendOpen(sessions []schema.Session, startedAt time.Time, display string) ([]schema.Session, schema.Session, error) {
	if n := len(sessions); n > 0 && sessions[n-1].IsOpen() {
		return nil, schema.Session{}, ErrSessionOpen
	}
	s := schema.Session{
		StartedAt:        startedAt.UTC(),
		StartedAtDisplay: display,
	}
	next := make([]schema.Session, len(sessions), len(sessions)+1)
	copy(next, sessions)
	return append(next, s), s, nil
}

func closeLast(sessions []schema.Session, endedAt time.Time, display string) ([]schema.Session, schema.Session, error) {
	n := len(sessions)
	if n == 0 || !sessions[n-1].IsOpen() {
		return nil, schema.Session{}, ErrNoOpenSession
	}
	end := endedAt.UTC()
	next := make([]schema.Session, n)
	copy(next, sessions)
	next[n-1].EndedAt = &end
	next[n-1].EndedAtDisplay = &display
	return next, next[n-1], nil
}
