package types

import "time"

// UnknownEmployee is the sentinel employee id for cards that are not
// bound to anyone in the registry.
const UnknownEmployee = "unknown"

type Action string

const (
	ActionIn    Action = "IN"
	ActionOut   Action = "OUT"
	ActionError Action = "ERROR"
)

// Stale-presence error codes emitted by the presence engine.
const (
	CodeDayRollover = "day_rollover"
	CodeTimeout15h  = "timeout_15h"
)

// Tap is a single card presentation resolved against the registry.
// It is transient; only the attendance events derived from it persist.
type Tap struct {
	CardID     string
	At         time.Time
	EmployeeID string
}

// AttendanceEvent is one line of the append-only event log.  Immutable
// once created.  The JSON field names are the on-disk wire format and
// must not change; existing month partitions are read with them.
type AttendanceEvent struct {
	ID         string    `json:"id"`
	At         time.Time `json:"ts"`
	CardID     string    `json:"uid"`
	EmployeeID string    `json:"emp"`
	Action     Action    `json:"act"`
	ErrorCode  string    `json:"code,omitempty"` // set iff Action == ActionError
}

// Profile is what the employee registry knows about one employee.
type Profile struct {
	DisplayName      string
	HourlyYen        int
	RoundUnitMinutes int
}
