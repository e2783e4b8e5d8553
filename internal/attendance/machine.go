// Package attendance implements the clock-in/clock-out state machine.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celerix-dev/celerix-attendance/internal/engine"
	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// Location is the single fixed zone attendance is displayed in (Asia/Tokyo,
// which has no daylight saving time).
var Location = time.FixedZone("JST", 9*60*60)

// FormatDisplay renders t for chat replies and reports as Y/M/D H:MM:SS.
// Month, day and hour are not padded; time.Format has no unpadded hour.
func FormatDisplay(t time.Time) string {
	t = t.In(Location)
	return fmt.Sprintf("%d/%d/%d %d:%02d:%02d",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// State is derived from a user's last session.
type State int

const (
	StateNone State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "NONE"
	}
}

// DeriveState classifies a session sequence.
func DeriveState(sessions []schema.Session) State {
	if len(sessions) == 0 {
		return StateNone
	}
	if sessions[len(sessions)-1].IsOpen() {
		return StateOpen
	}
	return StateClosed
}

// Result describes how one message was handled.
type Result struct {
	UserID  string
	Command Command
	Outcome Outcome
	Reply   string
	Name    Resolution
	// Session is the opened or closed session on a successful transition.
	Session *schema.Session
}

// Machine applies chat commands to the session store.
type Machine struct {
	sessions engine.SessionStore
	names    *NameResolver
	now      func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a state machine over sessions. names may be nil.
func NewMachine(sessions engine.SessionStore, names *NameResolver, opts ...Option) *Machine {
	m := &Machine{
		sessions: sessions,
		names:    names,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle processes one text message from userID.
//
// Rejections are ordinary results. A non-nil error means the store failed;
// the result then carries OutcomeStorageFailed and a reply saying so, and
// nothing was recorded.
func (m *Machine) Handle(ctx context.Context, userID, text string) (Result, error) {
	res := Result{UserID: userID, Command: ParseCommand(text)}
	if m.names != nil {
		res.Name = m.names.Resolve(ctx, userID)
	}

	now := m.now()
	var err error
	switch res.Command {
	case CommandClockIn:
		err = m.clockIn(ctx, &res, now)
	case CommandClockOut:
		err = m.clockOut(ctx, &res, now)
	case CommandHistory:
		err = m.history(ctx, &res)
	case CommandHelp:
		res.Outcome, res.Reply = OutcomeHelp, msgHelp
	default:
		res.Outcome, res.Reply = OutcomeFallback, msgFallback
	}
	if err != nil {
		res.Outcome, res.Reply, res.Session = OutcomeStorageFailed, msgStorageFailed, nil
		return res, err
	}
	return res, nil
}

func (m *Machine) clockIn(ctx context.Context, res *Result, now time.Time) error {
	display := FormatDisplay(now)
	s, err := m.sessions.AppendOpenSession(ctx, res.UserID, now, display)
	switch {
	case errors.Is(err, engine.ErrSessionOpen):
		res.Outcome, res.Reply = OutcomeAlreadyClockedIn, msgAlreadyClockedIn
		return nil
	case err != nil:
		return err
	}
	res.Outcome, res.Reply, res.Session = OutcomeClockedIn, clockedInMessage(display), &s
	return nil
}

func (m *Machine) clockOut(ctx context.Context, res *Result, now time.Time) error {
	s, err := m.sessions.CloseLastSession(ctx, res.UserID, now, FormatDisplay(now))
	switch {
	case errors.Is(err, engine.ErrNoOpenSession):
		res.Outcome, res.Reply = OutcomeNotClockedIn, msgNotClockedIn
		return nil
	case err != nil:
		return err
	}
	res.Outcome, res.Reply, res.Session = OutcomeClockedOut, clockedOutMessage(s), &s
	return nil
}

func (m *Machine) history(ctx context.Context, res *Result) error {
	sessions, err := m.sessions.Get(ctx, res.UserID)
	if err != nil {
		return err
	}
	res.Outcome, res.Reply = OutcomeHistory, historyMessage(sessions)
	return nil
}
