package schema

// ReportRow is one flattened session as served by GET /api/attendance.
type ReportRow struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	ClockIn  string `json:"clockIn"`
	ClockOut string `json:"clockOut"`
	WorkTime string `json:"workTime"`
}

// EventResult is the per-event element of a webhook response.
// A nil *EventResult marks an event that was skipped.
type EventResult struct {
	UserID  string `json:"userId"`
	Command string `json:"command"`
	Outcome string `json:"outcome"`
}
