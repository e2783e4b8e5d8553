package sdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// ErrUnavailable is returned when the daemon cannot be reached or reports
// itself unhealthy.
var ErrUnavailable = errors.New("attendance daemon unavailable")

// StatusError is returned for any non-200 answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sdk: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("sdk: unexpected status %d: %s", e.Code, e.Body)
}

// AttendanceReader is the read-only view of a daemon.
type AttendanceReader interface {
	Report(ctx context.Context) ([]schema.ReportRow, error)
	Health(ctx context.Context) error
}
