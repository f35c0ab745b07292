package store

import (
	"context"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

// PayrollStore persists the output of one aggregation run.  A month is
// always replaced wholesale; records carry deterministic ids, so
// rewriting the same month is idempotent and never patches in place.
type PayrollStore interface {
	ReplaceMonth(ctx context.Context, monthKey string, records []types.PayrollRecord) error
}
