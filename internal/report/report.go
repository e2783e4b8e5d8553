// Package report flattens the session store into rows for external reporting.
package report

import (
	"context"
	"fmt"
	"slices"

	"github.com/celerix-dev/celerix-attendance/internal/attendance"
	"github.com/celerix-dev/celerix-attendance/internal/engine"
	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// Build returns one row per session across all users.
//
// Rows are concatenated user by user in store order (first-seen user
// order), then the whole list is reversed. The most recently inserted rows
// tend to come first, but this is insertion order, not a chronological sort
// across users: a user first seen early keeps their newest sessions behind
// every session of users seen later.
func Build(ctx context.Context, sessions engine.SessionReader, names engine.Directory) ([]schema.ReportRow, error) {
	users, err := sessions.AllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: failed to list sessions: %w", err)
	}
	directory, err := names.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: failed to list names: %w", err)
	}

	rows := []schema.ReportRow{}
	for _, u := range users {
		name, ok := directory[u.UserID]
		if !ok {
			name = attendance.FallbackName(u.UserID)
		}
		for _, s := range u.Sessions {
			row := schema.ReportRow{
				UserID:   u.UserID,
				UserName: name,
				ClockIn:  s.StartedAtDisplay,
				ClockOut: attendance.NotClockedOut,
				WorkTime: attendance.WorkTime(s),
			}
			if !s.IsOpen() {
				row.ClockOut = *s.EndedAtDisplay
			}
			rows = append(rows, row)
		}
	}
	slices.Reverse(rows)
	return rows, nil
}
