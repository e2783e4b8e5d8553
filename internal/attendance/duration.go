package attendance

import (
	"fmt"
	"time"
)

// DurationUnavailable is rendered when a duration cannot be computed.
const DurationUnavailable = "算出不可"

// Duration is an elapsed working time truncated to whole minutes.
type Duration struct {
	Hours   int64
	Minutes int64 // always in [0, 59]
}

func (d Duration) String() string {
	return fmt.Sprintf("%d時間%d分", d.Hours, d.Minutes)
}

// Elapsed returns the floored hours and minutes between start and end.
// It reports false when either instant is unset or end precedes start.
func Elapsed(start, end time.Time) (Duration, bool) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return Duration{}, false
	}
	ms := end.Sub(start).Milliseconds()
	const (
		msPerMinute = int64(time.Minute / time.Millisecond)
		msPerHour   = int64(time.Hour / time.Millisecond)
	)
	return Duration{
		Hours:   ms / msPerHour,
		Minutes: (ms % msPerHour) / msPerMinute,
	}, true
}

// FormatElapsed renders Elapsed for display, falling back to
// DurationUnavailable. It never fails.
func FormatElapsed(start, end time.Time) string {
	d, ok := Elapsed(start, end)
	if !ok {
		return DurationUnavailable
	}
	return d.String()
}
