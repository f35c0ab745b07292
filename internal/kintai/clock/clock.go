package clock

import (
	"fmt"
	"time"
)

// DefaultOffsetMinutes is JST (+09:00), the deployment's local calendar.
const DefaultOffsetMinutes = 540

// Clock pins the whole system to one fixed UTC offset.  Every calendar
// decision (day rollover, month partitioning, payroll buckets) goes
// through it so that "today" means the same thing everywhere.
type Clock struct {
	loc *time.Location
}

func New(offsetMinutes int) *Clock {
	name := fmt.Sprintf("UTC%+03d:%02d", offsetMinutes/60, abs(offsetMinutes%60))
	return &Clock{loc: time.FixedZone(name, offsetMinutes*60)}
}

// Now returns the current local time at second precision.  Events are
// persisted at second precision, so everything downstream sees the same
// truncation.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc).Truncate(time.Second)
}

// In converts t into the local offset.
func (c *Clock) In(t time.Time) time.Time {
	return t.In(c.loc)
}

// DateOf returns the local calendar date of t as YYYY-MM-DD.
func (c *Clock) DateOf(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// MonthKeyOf returns the event-log partition key for t, YYYY-MM.
func (c *Clock) MonthKeyOf(t time.Time) string {
	return t.In(c.loc).Format("2006-01")
}

// PrevMonthKey returns the partition key one month before ym.
// Malformed input is returned unchanged.
func PrevMonthKey(ym string) string {
	t, err := time.Parse("2006-01", ym)
	if err != nil {
		return ym
	}
	return t.AddDate(0, -1, 0).Format("2006-01")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
