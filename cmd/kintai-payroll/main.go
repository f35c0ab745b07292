// Command kintai-payroll aggregates the current month's attendance
// events into payroll records, replaces the month's local outputs
// (JSONL file and sqlite table) wholesale, and submits the records to
// the payroll ingestion endpoint when one is configured.  On the first
// two days of a month it also re-closes the previous month, catching
// events that landed after the last run.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/config"
	dbpkg "github.com/yktsnet/nfc-attendance-kit/internal/db"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/clock"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/deliver"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/eventlog/jsonl"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/payroll"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/registry"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/store"
	sqlitestore "github.com/yktsnet/nfc-attendance-kit/internal/kintai/store/sqlite"
)

type monthResult struct {
	Month            string         `json:"month"`
	Events           int            `json:"events"`
	EventsUnknownEmp int            `json:"events_unknown_emp"`
	Buckets          int            `json:"days_emps"`
	FlaggedBuckets   int            `json:"flags_days"`
	LocalPath        string         `json:"local_path"`
	LocalRecords     int            `json:"local_records"`
	Sink             map[string]any `json:"sink,omitempty"`
}

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stderr, "kintai-payroll ", log.LstdFlags|log.LUTC)

	clk := clock.New(cfg.UTCOffsetMinutes)
	ctx := context.Background()

	reg, err := registry.Load(cfg.EmployeesPath)
	if err != nil {
		logger.Fatalf("registry: %v", err)
	}

	elog := jsonl.New(filepath.Join(cfg.DataDir, "events"))

	now := clk.Now()
	thisMonth := clk.MonthKeyOf(now)
	months := []string{thisMonth}
	if day := clk.In(now).Day(); day <= 2 {
		if prev := clock.PrevMonthKey(thisMonth); prev != thisMonth {
			months = []string{prev, thisMonth}
		}
	}

	conn, err := dbpkg.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	writer := dbpkg.NewWorker(conn)
	defer writer.Close()
	pstore := sqlitestore.NewPayrollStore(conn, writer)

	var sink *deliver.PayrollSink
	if cfg.PayrollURL != "" {
		sink = deliver.NewPayrollSink(
			cfg.PayrollURL, cfg.PayrollToken,
			time.Duration(cfg.HTTPTimeoutSec)*time.Second,
			cfg.HTTPRetries,
			time.Duration(cfg.RetrySleepSeconds)*time.Second,
		)
	}

	var results []monthResult
	for _, ym := range months {
		events, err := elog.ReadAll(ctx, ym)
		if err != nil {
			logger.Fatalf("read events %s: %v", ym, err)
		}

		records, summary := payroll.Build(events, reg, clk)

		outPath := filepath.Join(cfg.DataDir, "payroll", ym+".jsonl")
		if err := store.WriteMonthJSONL(outPath, records); err != nil {
			logger.Fatalf("write %s: %v", outPath, err)
		}
		if err := pstore.ReplaceMonth(ctx, ym, records); err != nil {
			logger.Fatalf("replace month %s: %v", ym, err)
		}

		res := monthResult{
			Month:            ym,
			Events:           summary.Events,
			EventsUnknownEmp: summary.EventsUnknownEmp,
			Buckets:          summary.Buckets,
			FlaggedBuckets:   summary.FlaggedBuckets,
			LocalPath:        outPath,
			LocalRecords:     len(records),
		}

		if sink != nil {
			// Submission failure fails the whole run: a silently
			// missing month of pay is worse than a loud exit.
			ack, err := sink.Submit(ctx, records)
			if err != nil {
				logger.Fatalf("submit %s: %v", ym, err)
			}
			res.Sink = ack
		}

		results = append(results, res)
	}

	enc := json.NewEncoder(os.Stdout)
	if len(results) == 1 {
		_ = enc.Encode(results[0])
		return
	}
	_ = enc.Encode(map[string]any{"months": results})
}
