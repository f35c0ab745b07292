package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/config"
	"github.com/yktsnet/nfc-attendance-kit/internal/httpapi"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/clock"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/deliver"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/engine"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/eventlog/jsonl"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/registry"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
	"github.com/yktsnet/nfc-attendance-kit/internal/reader"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "kintai-reader ", log.LstdFlags|log.LUTC)

	clk := clock.New(cfg.UTCOffsetMinutes)

	reg, err := registry.Load(cfg.EmployeesPath)
	if err != nil {
		logger.Printf("registry: %v (running with empty registry)", err)
		reg = registry.Empty()
	}

	elog := jsonl.New(filepath.Join(cfg.DataDir, "events"))
	eng := engine.New(clk, elog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Rebuild state from the active month before accepting any tap.
	monthKey := clk.MonthKeyOf(clk.Now())
	history, err := elog.ReadAll(ctx, monthKey)
	if err != nil {
		logger.Fatalf("restore %s: %v", monthKey, err)
	}
	eng.Restore(history)
	logger.Printf("restored %d events from %s", len(history), monthKey)

	var notifier *deliver.Notifier
	if cfg.ChatWebhookURL != "" {
		sink := deliver.NewChatSink(cfg.ChatWebhookURL, time.Duration(cfg.HTTPTimeoutSec)*time.Second)
		notifier = deliver.NewNotifier(sink, reg, clk, logger)
		notifier.Reset(history)
		defer notifier.Close()
	}
	publish := func(events []types.AttendanceEvent) {
		if notifier != nil {
			notifier.Publish(events)
		}
	}

	sweeper := engine.NewSweeper(eng, engine.SweeperConfig{
		Interval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		Notify:   publish,
	}, logger)
	sweeper.Start(ctx)

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(httpapi.Dependencies{
			Logger: logger,
			Addr:   cfg.HTTPAddr,
			Engine: eng,
			Clock:  clk,
		})
		go func() {
			logger.Printf("status API listening on %s", cfg.HTTPAddr)
			if err := srv.Start(); err != nil {
				logger.Printf("status API: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// The sweeper stops before the loop returns, so nothing mutates
	// engine state after the last tap is fully appended.
	defer sweeper.Stop()

	rd := reader.NewOpenSC(cfg.ReaderIndex)
	logger.Printf("polling reader (index hint %d)", cfg.ReaderIndex)

	for {
		// Polling blocks for an arbitrary time waiting for a card;
		// the engine lock is only taken once a tap has happened.
		uid, err := rd.Poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Printf("reader: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		now := clk.Now()

		// Month rollover: replay the new partition before this tap.
		if ym := clk.MonthKeyOf(now); ym != monthKey {
			events, err := elog.ReadAll(ctx, ym)
			if err != nil {
				logger.Printf("restore %s: %v", ym, err)
				continue
			}
			eng.Restore(events)
			if notifier != nil {
				notifier.Reset(events)
			}
			monthKey = ym
			logger.Printf("month rollover, restored %d events from %s", len(events), ym)
		}

		emp := reg.ResolveCard(uid)
		events, err := eng.OnTap(ctx, now, uid, emp)
		if err != nil {
			logger.Printf("tap %s: %v", uid, err)
			continue
		}
		for _, ev := range events {
			logger.Printf("event %s %s emp=%s card=%s", ev.Action, ev.At.Format(time.RFC3339), ev.EmployeeID, ev.CardID)
		}
		publish(events)
	}
}
