// Package jsonl stores attendance events as one compact JSON object per
// line in <dir>/<YYYY-MM>.jsonl.  The files are append-only; a crash can
// leave a torn final line, so reads skip anything that does not parse.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

type Log struct {
	dir string
}

func New(dir string) *Log {
	return &Log{dir: dir}
}

func (l *Log) path(monthKey string) string {
	return filepath.Join(l.dir, monthKey+".jsonl")
}

func (l *Log) Append(_ context.Context, monthKey string, ev types.AttendanceEvent) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir event log dir: %w", err)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	f, err := os.OpenFile(l.path(monthKey), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log %s: %w", monthKey, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event %s: %w", ev.ID, err)
	}
	return nil
}

func (l *Log) ReadAll(_ context.Context, monthKey string) ([]types.AttendanceEvent, error) {
	f, err := os.Open(l.path(monthKey))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", monthKey, err)
	}
	defer f.Close()

	var events []types.AttendanceEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev types.AttendanceEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			// Torn or foreign line; the log is append-only so this is
			// expected after an unclean shutdown.
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read event log %s: %w", monthKey, err)
	}
	return events, nil
}
