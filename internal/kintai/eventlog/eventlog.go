package eventlog

import (
	"context"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

// Log is the append-only, month-partitioned attendance event log.
// Append must preserve write order within a partition; ReadAll must
// return events in that same order.
type Log interface {
	Append(ctx context.Context, monthKey string, ev types.AttendanceEvent) error
	ReadAll(ctx context.Context, monthKey string) ([]types.AttendanceEvent, error)
}
