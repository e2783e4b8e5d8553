// Package schema defines the data structures shared by the attendance daemon,
// its storage backends and the SDK.
package schema

import "time"

// Session is one clock-in/clock-out interval for a user.
//
// The JSON names match the attendance_data.json document written by earlier
// releases, so existing data directories load unchanged.
type Session struct {
	StartedAt        time.Time  `json:"clockInTime"`
	StartedAtDisplay string     `json:"clockIn"`
	EndedAt          *time.Time `json:"clockOutTime,omitempty"`
	EndedAtDisplay   *string    `json:"clockOut"`
}

// IsOpen reports whether the session has not been clocked out yet.
func (s Session) IsOpen() bool {
	return s.EndedAt == nil
}

// UserSessions pairs a user identifier with that user's ordered sessions.
type UserSessions struct {
	UserID   string    `json:"userId"`
	Sessions []Session `json:"sessions"`
}
