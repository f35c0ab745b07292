package types

// PayrollRecord is one employee-day of worked time.  Records are
// recomputed wholesale on every payroll run; ID is a pure function of
// (Date, EmployeeID) so downstream consumers can upsert idempotently.
// JSON field names match the ingestion endpoint's expected payload.
type PayrollRecord struct {
	ID             string   `json:"id"`
	Date           string   `json:"date"`
	EmployeeID     string   `json:"emp"`
	DisplayName    string   `json:"name"`
	MinutesRaw     int      `json:"min_raw"`
	MinutesRounded int      `json:"min"`
	HourlyYen      int      `json:"yen_h"`
	Pay            int      `json:"yen"`
	Flags          []string `json:"flags"`
}

// Summary describes one aggregation run over a month of events.
type Summary struct {
	Events           int `json:"events"`
	EventsUnknownEmp int `json:"events_unknown_emp"`
	Buckets          int `json:"days_emps"`
	FlaggedBuckets   int `json:"flags_days"`
}
