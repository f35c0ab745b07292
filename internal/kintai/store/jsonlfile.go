package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

// WriteMonthJSONL replaces the month's payroll file atomically: the
// records are written to a temp file in the same directory, fsynced,
// and renamed over the target.  A crash mid-run leaves the previous
// file intact.
func WriteMonthJSONL(path string, records []types.PayrollRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir payroll dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create payroll temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshal payroll record %s: %w", rec.ID, err)
		}
		if _, err := tmp.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("write payroll temp: %w", err)
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync payroll temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close payroll temp: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace payroll file: %w", err)
	}

	// Best effort: make the rename durable.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}
