// Package memory is an in-memory event log for tests and dev runs.
package memory

import (
	"context"
	"sync"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

type Log struct {
	mu     sync.Mutex
	months map[string][]types.AttendanceEvent
}

func New() *Log {
	return &Log{months: make(map[string][]types.AttendanceEvent)}
}

func (l *Log) Append(_ context.Context, monthKey string, ev types.AttendanceEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.months[monthKey] = append(l.months[monthKey], ev)
	return nil
}

func (l *Log) ReadAll(_ context.Context, monthKey string) ([]types.AttendanceEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.AttendanceEvent, len(l.months[monthKey]))
	copy(out, l.months[monthKey])
	return out, nil
}

// Events returns a copy of one month's events.  Test-only helper.
func (l *Log) Events(monthKey string) []types.AttendanceEvent {
	out, _ := l.ReadAll(context.Background(), monthKey)
	return out
}
