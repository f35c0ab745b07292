package payroll_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/clock"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/payroll"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

var jst = time.FixedZone("JST", 9*3600)

func at(day, hour, min int) time.Time {
	return time.Date(2026, 8, day, hour, min, 0, 0, jst)
}

func ev(t time.Time, emp string, action types.Action, code string) types.AttendanceEvent {
	return types.AttendanceEvent{ID: "x", At: t, CardID: "CARD", EmployeeID: emp, Action: action, ErrorCode: code}
}

type profileMap map[string]types.Profile

func (m profileMap) Lookup(employeeID string) types.Profile {
	if p, ok := m[employeeID]; ok {
		return p
	}
	return types.Profile{RoundUnitMinutes: 5}
}

var testProfiles = profileMap{
	"tanaka": {DisplayName: "田中", HourlyYen: 1500, RoundUnitMinutes: 5},
	"suzuki": {DisplayName: "鈴木", HourlyYen: 1200, RoundUnitMinutes: 15},
}

func build(t *testing.T, events []types.AttendanceEvent, profiles payroll.ProfileSource) ([]types.PayrollRecord, types.Summary) {
	t.Helper()
	return payroll.Build(events, profiles, clock.New(clock.DefaultOffsetMinutes))
}

// ── Pairing ──────────────────────────────────────────────────────────────────

func TestBuild_SimplePair(t *testing.T) {
	records, summary := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 17, 0), "tanaka", types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Date != "2026-08-10" {
		t.Errorf("expected date 2026-08-10, got %q", rec.Date)
	}
	if rec.MinutesRaw != 540 {
		t.Errorf("expected 540 raw minutes, got %d", rec.MinutesRaw)
	}
	if rec.MinutesRounded != 540 {
		t.Errorf("expected 540 rounded minutes, got %d", rec.MinutesRounded)
	}
	if rec.Pay != 13500 {
		t.Errorf("expected pay 13500, got %d", rec.Pay)
	}
	if rec.DisplayName != "田中" {
		t.Errorf("expected display name from profile, got %q", rec.DisplayName)
	}
	if len(rec.Flags) != 0 {
		t.Errorf("expected no flags, got %v", rec.Flags)
	}
	if summary.Buckets != 1 || summary.FlaggedBuckets != 0 || summary.Events != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestBuild_InputOrderDoesNotMatter(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 17, 0), "tanaka", types.ActionOut, ""),
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
	}, testProfiles)

	if len(records) != 1 || records[0].MinutesRaw != 540 {
		t.Fatalf("expected the same pairing after re-sort, got %+v", records)
	}
}

func TestBuild_CrossDayAttributedToEntryDay(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 23, 50), "tanaka", types.ActionIn, ""),
		ev(at(11, 0, 10), "tanaka", types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %+v", records)
	}
	rec := records[0]
	if rec.Date != "2026-08-10" {
		t.Errorf("expected bucket on entry day, got %q", rec.Date)
	}
	if rec.MinutesRaw != 20 {
		t.Errorf("expected 20 minutes, got %d", rec.MinutesRaw)
	}
	if !reflect.DeepEqual(rec.Flags, []string{payroll.FlagCrossDay}) {
		t.Errorf("expected [cross_day], got %v", rec.Flags)
	}
}

func TestBuild_DoubleInSupersedesOpenEntry(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 9, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 10, 0), "tanaka", types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %+v", records)
	}
	rec := records[0]
	// Only the second IN earns minutes; the first is discarded outright.
	if rec.MinutesRaw != 60 {
		t.Errorf("expected 60 minutes from the second IN, got %d", rec.MinutesRaw)
	}
	if !reflect.DeepEqual(rec.Flags, []string{payroll.FlagDoubleIn}) {
		t.Errorf("expected [double_in], got %v", rec.Flags)
	}
}

func TestBuild_OrphanOutFlagsWithoutMinutes(t *testing.T) {
	records, summary := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), "tanaka", types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 1 {
		t.Fatalf("flags alone must force a record, got %+v", records)
	}
	rec := records[0]
	if rec.MinutesRaw != 0 || rec.Pay != 0 {
		t.Errorf("expected zero minutes and pay, got %d/%d", rec.MinutesRaw, rec.Pay)
	}
	if !reflect.DeepEqual(rec.Flags, []string{payroll.FlagOrphanOut}) {
		t.Errorf("expected [orphan_out], got %v", rec.Flags)
	}
	if summary.FlaggedBuckets != 1 {
		t.Errorf("expected 1 flagged bucket, got %d", summary.FlaggedBuckets)
	}
}

func TestBuild_ErrorClosesOpenEntryWithoutCredit(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 9, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 12, 0), "tanaka", types.ActionError, "timeout_15h"),
	}, testProfiles)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %+v", records)
	}
	rec := records[0]
	if rec.MinutesRaw != 0 {
		t.Errorf("expected no minutes credited, got %d", rec.MinutesRaw)
	}
	want := []string{"error:timeout_15h", payroll.FlagMissingOut}
	if !reflect.DeepEqual(rec.Flags, want) {
		t.Errorf("expected %v, got %v", want, rec.Flags)
	}
}

func TestBuild_ErrorWithoutCodeUsesGenericFlag(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 12, 0), "tanaka", types.ActionError, ""),
	}, testProfiles)

	if len(records) != 1 || !reflect.DeepEqual(records[0].Flags, []string{"error:error"}) {
		t.Fatalf("expected [error:error], got %+v", records)
	}
}

func TestBuild_OpenEntryAtEndFlagsMissingOut(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 9, 0), "tanaka", types.ActionIn, ""),
	}, testProfiles)

	if len(records) != 1 || !reflect.DeepEqual(records[0].Flags, []string{payroll.FlagMissingOut}) {
		t.Fatalf("expected [missing_out], got %+v", records)
	}
}

func TestBuild_PairingIsEmployeeScoped(t *testing.T) {
	// tanaka's OUT must not close suzuki's entry even though suzuki's
	// IN is more recent in the global order.
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 9, 0), "suzuki", types.ActionIn, ""),
		ev(at(10, 10, 0), "tanaka", types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %+v", records)
	}
	byEmp := map[string]types.PayrollRecord{}
	for _, r := range records {
		byEmp[r.EmployeeID] = r
	}
	if rec := byEmp["tanaka"]; rec.MinutesRaw != 120 || len(rec.Flags) != 0 {
		t.Errorf("tanaka: expected clean 120 minutes, got %+v", rec)
	}
	if rec := byEmp["suzuki"]; rec.MinutesRaw != 0 || !reflect.DeepEqual(rec.Flags, []string{payroll.FlagMissingOut}) {
		t.Errorf("suzuki: expected missing_out, got %+v", rec)
	}
}

// ── Unknown employees and malformed input ────────────────────────────────────

func TestBuild_UnknownEmployeesCountedAndDropped(t *testing.T) {
	records, summary := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), types.UnknownEmployee, types.ActionIn, ""),
		ev(at(10, 9, 0), types.UnknownEmployee, types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 0 {
		t.Fatalf("expected no records, got %+v", records)
	}
	if summary.Events != 2 || summary.EventsUnknownEmp != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestBuild_UnknownActionIgnored(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 9, 0), "tanaka", types.Action("PING"), ""),
		ev(at(10, 10, 0), "tanaka", types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 1 || records[0].MinutesRaw != 120 {
		t.Fatalf("expected the pair to survive an unknown action, got %+v", records)
	}
}

// ── Rounding and pay ─────────────────────────────────────────────────────────

func TestBuild_RoundingFloorsToUnit(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 9, 3), "tanaka", types.ActionOut, ""), // 63 minutes
	}, testProfiles)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %+v", records)
	}
	rec := records[0]
	if rec.MinutesRaw != 63 || rec.MinutesRounded != 60 {
		t.Errorf("expected 63 -> 60 with unit 5, got %d -> %d", rec.MinutesRaw, rec.MinutesRounded)
	}
	if rec.Pay != 1500 {
		t.Errorf("expected pay 1500, got %d", rec.Pay)
	}
}

func TestBuild_NonPositiveUnitClampsToOne(t *testing.T) {
	profiles := profileMap{
		"tanaka": {HourlyYen: 600, RoundUnitMinutes: -5},
	}
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 9, 3), "tanaka", types.ActionOut, ""),
	}, profiles)

	if len(records) != 1 || records[0].MinutesRounded != 63 {
		t.Fatalf("expected unit clamped to 1 (no rounding), got %+v", records)
	}
}

func TestBuild_MissingRateFlagged(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(10, 8, 0), "ghost", types.ActionIn, ""),
		ev(at(10, 9, 0), "ghost", types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %+v", records)
	}
	rec := records[0]
	if rec.Pay != 0 {
		t.Errorf("expected zero pay, got %d", rec.Pay)
	}
	if !reflect.DeepEqual(rec.Flags, []string{payroll.FlagMissingHourlyYen}) {
		t.Errorf("expected [missing_hourly_yen], got %v", rec.Flags)
	}
}

// ── Output shape ─────────────────────────────────────────────────────────────

func TestBuild_RecordsSortedByDateThenEmployee(t *testing.T) {
	records, _ := build(t, []types.AttendanceEvent{
		ev(at(11, 8, 0), "suzuki", types.ActionIn, ""),
		ev(at(11, 9, 0), "suzuki", types.ActionOut, ""),
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 9, 0), "tanaka", types.ActionOut, ""),
		ev(at(10, 8, 30), "suzuki", types.ActionIn, ""),
		ev(at(10, 9, 30), "suzuki", types.ActionOut, ""),
	}, testProfiles)

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	var got []string
	for _, r := range records {
		got = append(got, r.Date+"/"+r.EmployeeID)
	}
	want := []string{"2026-08-10/suzuki", "2026-08-10/tanaka", "2026-08-11/suzuki"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected order %v, got %v", want, got)
	}
}

func TestRecordID_Deterministic(t *testing.T) {
	a := payroll.RecordID("2026-08-10", "tanaka")
	b := payroll.RecordID("2026-08-10", "tanaka")
	if a != b {
		t.Fatalf("same inputs produced %q and %q", a, b)
	}
	if len(a) != 40 {
		t.Errorf("expected a 40-char sha1 hex digest, got %q", a)
	}
	if payroll.RecordID("2026-08-11", "tanaka") == a {
		t.Error("different dates must not collide")
	}
	if payroll.RecordID("2026-08-10", "suzuki") == a {
		t.Error("different employees must not collide")
	}
}

func TestBuild_SameIDAcrossRuns(t *testing.T) {
	events := []types.AttendanceEvent{
		ev(at(10, 8, 0), "tanaka", types.ActionIn, ""),
		ev(at(10, 17, 0), "tanaka", types.ActionOut, ""),
	}
	first, _ := build(t, events, testProfiles)
	second, _ := build(t, events, testProfiles)
	if first[0].ID != second[0].ID {
		t.Fatalf("record id changed between runs: %q vs %q", first[0].ID, second[0].ID)
	}
}
