package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	dbpkg "github.com/yktsnet/nfc-attendance-kit/internal/db"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

type PayrollStore struct {
	conn   *sql.DB
	writer *dbpkg.Worker
}

func NewPayrollStore(conn *sql.DB, writer *dbpkg.Worker) *PayrollStore {
	return &PayrollStore{conn: conn, writer: writer}
}

// ReplaceMonth deletes the month's rows and inserts the new set in one
// transaction, so readers never observe a partially-written month.
func (s *PayrollStore) ReplaceMonth(ctx context.Context, monthKey string, records []types.PayrollRecord) error {
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM payroll_records WHERE month = ?;
`, monthKey); err != nil {
			return fmt.Errorf("ReplaceMonth delete %s: %w", monthKey, err)
		}

		for _, rec := range records {
			flags, err := json.Marshal(rec.Flags)
			if err != nil {
				return fmt.Errorf("ReplaceMonth marshal flags %s: %w", rec.ID, err)
			}
			if rec.Flags == nil {
				flags = []byte("[]")
			}

			if _, err := tx.ExecContext(ctx, `
INSERT INTO payroll_records(
  record_id, month, date, employee_id, display_name,
  minutes_raw, minutes_rounded, hourly_yen, pay_yen, flags, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
				rec.ID, monthKey, rec.Date, rec.EmployeeID, rec.DisplayName,
				rec.MinutesRaw, rec.MinutesRounded, rec.HourlyYen, rec.Pay, string(flags), nowMs,
			); err != nil {
				return fmt.Errorf("ReplaceMonth insert %s: %w", rec.ID, err)
			}
		}

		return nil
	})
}
