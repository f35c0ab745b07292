// Package payroll turns one month of attendance events into
// per-employee-per-day worked minutes and pay.  Anomalies (double taps,
// orphan exits, day-spanning shifts, missing rates) are never rejected
// or auto-corrected; they surface as flags on the affected bucket so a
// human reviews them before money moves.
package payroll

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/clock"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

// Bucket flags.
const (
	FlagDoubleIn         = "double_in"
	FlagOrphanOut        = "orphan_out"
	FlagNegativeDuration = "negative_duration"
	FlagCrossDay         = "cross_day"
	FlagMissingOut       = "missing_out"
	FlagMissingHourlyYen = "missing_hourly_yen"
)

// ProfileSource resolves employee pay parameters.  A missing employee
// yields zero-value defaults, never an error.
type ProfileSource interface {
	Lookup(employeeID string) types.Profile
}

type bucketKey struct {
	employee string
	date     string
}

// Build derives payroll records from a month's events.  Input order does
// not matter; events are re-sorted by timestamp globally, because
// pairing is employee-scoped but time-global; one employee must never
// hold two concurrent open entries on different cards.
func Build(events []types.AttendanceEvent, profiles ProfileSource, clk *clock.Clock) ([]types.PayrollRecord, types.Summary) {
	type parsedEvent struct {
		at       time.Time
		employee string
		action   types.Action
		code     string
	}

	var parsed []parsedEvent
	unknown := 0
	for _, ev := range events {
		if ev.EmployeeID == types.UnknownEmployee {
			unknown++
			continue
		}
		if ev.At.IsZero() {
			continue
		}
		parsed = append(parsed, parsedEvent{at: ev.At, employee: ev.EmployeeID, action: ev.Action, code: ev.ErrorCode})
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].at.Before(parsed[j].at) })

	openIn := make(map[string]time.Time)
	minutes := make(map[bucketKey]int)
	flags := make(map[bucketKey]map[string]struct{})

	addFlag := func(k bucketKey, f string) {
		set, ok := flags[k]
		if !ok {
			set = make(map[string]struct{})
			flags[k] = set
		}
		set[f] = struct{}{}
	}

	for _, ev := range parsed {
		key := bucketKey{employee: ev.employee, date: clk.DateOf(ev.at)}

		switch ev.action {
		case types.ActionIn:
			if _, open := openIn[ev.employee]; open {
				// The older open entry is superseded and earns nothing.
				addFlag(key, FlagDoubleIn)
			}
			openIn[ev.employee] = ev.at

		case types.ActionOut:
			t0, open := openIn[ev.employee]
			if !open {
				addFlag(key, FlagOrphanOut)
				continue
			}
			delete(openIn, ev.employee)

			entryKey := bucketKey{employee: ev.employee, date: clk.DateOf(t0)}
			if ev.at.Before(t0) {
				addFlag(entryKey, FlagNegativeDuration)
				continue
			}
			minutes[entryKey] += int(ev.at.Sub(t0) / time.Minute)
			if entryKey.date != key.date {
				// Minutes are attributed entirely to the entry day.
				addFlag(entryKey, FlagCrossDay)
			}

		case types.ActionError:
			code := ev.code
			if code == "" {
				code = "error"
			}
			addFlag(key, "error:"+code)
			if t0, open := openIn[ev.employee]; open {
				addFlag(bucketKey{employee: ev.employee, date: clk.DateOf(t0)}, FlagMissingOut)
				delete(openIn, ev.employee)
			}
		}
		// Unknown actions are ignored.
	}

	for employee, t0 := range openIn {
		addFlag(bucketKey{employee: employee, date: clk.DateOf(t0)}, FlagMissingOut)
	}

	keySet := make(map[bucketKey]struct{}, len(minutes)+len(flags))
	for k := range minutes {
		keySet[k] = struct{}{}
	}
	for k := range flags {
		keySet[k] = struct{}{}
	}
	keys := make([]bucketKey, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].employee < keys[j].employee
	})

	var records []types.PayrollRecord
	flagged := 0

	for _, k := range keys {
		raw := minutes[k]
		set := flags[k]
		if raw == 0 && len(set) == 0 {
			continue
		}

		prof := profiles.Lookup(k.employee)
		unit := prof.RoundUnitMinutes
		if unit <= 0 {
			unit = 1
		}
		if prof.HourlyYen <= 0 {
			if set == nil {
				set = make(map[string]struct{})
			}
			set[FlagMissingHourlyYen] = struct{}{}
		}

		rounded := raw / unit * unit
		pay := rounded * prof.HourlyYen / 60

		if len(set) > 0 {
			flagged++
		}

		records = append(records, types.PayrollRecord{
			ID:             RecordID(k.date, k.employee),
			Date:           k.date,
			EmployeeID:     k.employee,
			DisplayName:    prof.DisplayName,
			MinutesRaw:     raw,
			MinutesRounded: rounded,
			HourlyYen:      prof.HourlyYen,
			Pay:            pay,
			Flags:          sortedFlags(set),
		})
	}

	return records, types.Summary{
		Events:           len(events),
		EventsUnknownEmp: unknown,
		Buckets:          len(records),
		FlaggedBuckets:   flagged,
	}
}

// RecordID is the stable identity of a payroll bucket: the SHA-1 of
// "date|employee".  It must stay byte-compatible across runs; the
// ingestion side keys its idempotent upserts on it.
func RecordID(date, employeeID string) string {
	sum := sha1.Sum([]byte(date + "|" + employeeID))
	return hex.EncodeToString(sum[:])
}

func sortedFlags(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
