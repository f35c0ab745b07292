package deliver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/clock"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

// NameSource resolves an employee id to a display name via the profile.
type NameSource interface {
	Lookup(employeeID string) types.Profile
}

type notifyJob struct {
	reset  bool
	events []types.AttendanceEvent
}

// Notifier formats attendance events into chat messages and delivers
// them from a background goroutine, so a slow or dead webhook never
// blocks the tap loop.  It tracks each employee's open IN so OUT
// messages carry the shift duration.
type Notifier struct {
	sink   *ChatSink
	names  NameSource
	clk    *clock.Clock
	logger *log.Logger

	openIn map[string]time.Time // touched only by the worker goroutine
	jobs   chan notifyJob
	done   chan struct{}
}

func NewNotifier(sink *ChatSink, names NameSource, clk *clock.Clock, logger *log.Logger) *Notifier {
	n := &Notifier{
		sink:   sink,
		names:  names,
		clk:    clk,
		logger: logger,
		openIn: make(map[string]time.Time),
		jobs:   make(chan notifyJob, 64),
		done:   make(chan struct{}),
	}
	go n.loop()
	return n
}

// Reset rebuilds the open-IN map from a month's replayed events without
// sending anything.  Call it at startup and on month rollover.
func (n *Notifier) Reset(history []types.AttendanceEvent) {
	n.jobs <- notifyJob{reset: true, events: history}
}

// Publish enqueues events for delivery.  If the queue is full the batch
// is dropped; notification is best-effort.
func (n *Notifier) Publish(events []types.AttendanceEvent) {
	if len(events) == 0 {
		return
	}
	select {
	case n.jobs <- notifyJob{events: events}:
	default:
		n.logger.Printf("notifier queue full, dropping %d events", len(events))
	}
}

// Close drains pending jobs and stops the worker.
func (n *Notifier) Close() {
	close(n.jobs)
	<-n.done
}

func (n *Notifier) loop() {
	defer close(n.done)

	for j := range n.jobs {
		if j.reset {
			n.openIn = make(map[string]time.Time)
			for _, ev := range j.events {
				n.track(ev)
			}
			continue
		}
		for _, ev := range j.events {
			msg, ok := n.format(ev)
			if !ok {
				continue
			}
			if err := n.sink.Notify(context.Background(), msg); err != nil {
				n.logger.Printf("chat notify: %v", err)
			}
		}
	}
}

func (n *Notifier) track(ev types.AttendanceEvent) {
	switch ev.Action {
	case types.ActionIn:
		n.openIn[ev.EmployeeID] = ev.At
	case types.ActionOut, types.ActionError:
		delete(n.openIn, ev.EmployeeID)
	}
}

func (n *Notifier) format(ev types.AttendanceEvent) (string, bool) {
	stamp := n.clk.In(ev.At).Format("2006-01-02 15:04")
	name := n.names.Lookup(ev.EmployeeID).DisplayName
	if name == "" {
		name = ev.EmployeeID
	}

	switch ev.Action {
	case types.ActionIn:
		n.openIn[ev.EmployeeID] = ev.At
		return fmt.Sprintf("%s  %s  IN", stamp, name), true

	case types.ActionOut:
		t0, open := n.openIn[ev.EmployeeID]
		delete(n.openIn, ev.EmployeeID)
		if open {
			if dur := formatDuration(t0, ev.At); dur != "" {
				return fmt.Sprintf("%s  %s  OUT  (%s)", stamp, name, dur), true
			}
		}
		return fmt.Sprintf("%s  %s  OUT", stamp, name), true

	case types.ActionError:
		delete(n.openIn, ev.EmployeeID)
		if ev.ErrorCode != "" {
			return fmt.Sprintf("%s  %s  ERROR  %s", stamp, name, ev.ErrorCode), true
		}
		return fmt.Sprintf("%s  %s  ERROR", stamp, name), true
	}
	return "", false
}

func formatDuration(from, to time.Time) string {
	sec := int(to.Sub(from) / time.Second)
	if sec < 0 {
		return ""
	}
	m := sec / 60
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}
