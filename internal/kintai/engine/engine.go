// Package engine owns per-card presence state and turns raw taps into
// IN/OUT/ERROR attendance events.  All state lives behind one mutex and
// is fully reconstructible from the event log, so a crash loses nothing
// that was durably appended.
package engine

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/clock"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/eventlog"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

const (
	// debounceWindow suppresses repeat taps of the same card.  The
	// window is anchored to the last accepted tap: a debounced tap does
	// not push it forward.
	debounceWindow = 5 * time.Minute

	// staleTimeout closes presences nobody tapped out of.
	staleTimeout = 15 * time.Hour
)

// cardPresence tracks whether one card is currently inside.  Mutated
// only while holding Engine.mu.
type cardPresence struct {
	inside   bool
	lastSeen time.Time
	employee string
}

type Engine struct {
	clk *clock.Clock
	log eventlog.Log

	mu       sync.Mutex
	cards    map[string]*cardPresence
	lastSeen map[string]time.Time // last accepted tap, for debounce only
	doneDay  map[string]string    // card -> date of its completed OUT
}

func New(clk *clock.Clock, log eventlog.Log) *Engine {
	return &Engine{
		clk:      clk,
		log:      log,
		cards:    make(map[string]*cardPresence),
		lastSeen: make(map[string]time.Time),
		doneDay:  make(map[string]string),
	}
}

// OnTap processes one accepted-or-not card presentation.  The returned
// slice holds the events that were appended to the log: at most one
// stale-presence ERROR followed by exactly one IN or OUT, or nothing at
// all when the tap was debounced or the card already finished its day.
func (e *Engine) OnTap(ctx context.Context, now time.Time, cardID, employeeID string) ([]types.AttendanceEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastSeen[cardID]; ok && now.Sub(last) < debounceWindow {
		return nil, nil
	}
	e.lastSeen[cardID] = now

	today := e.clk.DateOf(now)
	if d, ok := e.doneDay[cardID]; ok {
		if d != today {
			delete(e.doneDay, cardID)
		} else {
			return nil, nil
		}
	}

	cs, ok := e.cards[cardID]
	if !ok {
		cs = &cardPresence{lastSeen: now, employee: employeeID}
		e.cards[cardID] = cs
	}
	if employeeID != types.UnknownEmployee {
		cs.employee = employeeID
	}

	// An expired or day-spanning presence must close before the toggle,
	// so a card can never silently re-enter.
	var events []types.AttendanceEvent
	if ev, stale := e.staleEvent(now, cardID, cs); stale {
		events = append(events, ev)
	}

	action := types.ActionIn
	if cs.inside {
		action = types.ActionOut
	}
	emp := cs.employee
	if employeeID != types.UnknownEmployee {
		emp = employeeID
	}

	events = append(events, newEvent(now, cardID, emp, action, ""))

	cs.inside = action == types.ActionIn
	cs.lastSeen = now
	cs.employee = emp
	if action == types.ActionOut {
		e.doneDay[cardID] = today
	}

	if err := e.appendAll(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// Sweep closes every stale presence.  Runs periodically from the
// Sweeper and serializes with OnTap on the same lock, so the log never
// sees sweep- and tap-produced events for one card out of order.
func (e *Engine) Sweep(ctx context.Context, now time.Time) ([]types.AttendanceEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []types.AttendanceEvent
	for cardID, cs := range e.cards {
		if ev, stale := e.staleEvent(now, cardID, cs); stale {
			events = append(events, ev)
		}
	}
	if len(events) == 0 {
		return nil, nil
	}
	if err := e.appendAll(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// staleEvent applies the shared stale-presence rule to one card.
// Caller must hold e.mu.
func (e *Engine) staleEvent(now time.Time, cardID string, cs *cardPresence) (types.AttendanceEvent, bool) {
	if !cs.inside {
		return types.AttendanceEvent{}, false
	}
	if e.clk.DateOf(cs.lastSeen) != e.clk.DateOf(now) {
		cs.inside = false
		cs.lastSeen = now
		return newEvent(now, cardID, cs.employee, types.ActionError, types.CodeDayRollover), true
	}
	if now.Sub(cs.lastSeen) > staleTimeout {
		cs.inside = false
		cs.lastSeen = now
		return newEvent(now, cardID, cs.employee, types.ActionError, types.CodeTimeout15h), true
	}
	return types.AttendanceEvent{}, false
}

// Restore rebuilds all in-memory state from one month partition's
// events, in append order, without re-emitting anything.  Must run
// before the first live tap, and again when the active partition
// changes.
func (e *Engine) Restore(events []types.AttendanceEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cards = make(map[string]*cardPresence)
	e.lastSeen = make(map[string]time.Time)
	e.doneDay = make(map[string]string)

	for _, ev := range events {
		e.applyRestored(ev)
	}
}

func (e *Engine) applyRestored(ev types.AttendanceEvent) {
	if ev.CardID == "" {
		return
	}

	e.lastSeen[ev.CardID] = ev.At

	cs, ok := e.cards[ev.CardID]
	if !ok {
		cs = &cardPresence{lastSeen: ev.At, employee: ev.EmployeeID}
		e.cards[ev.CardID] = cs
	}
	if cs.employee == types.UnknownEmployee && ev.EmployeeID != types.UnknownEmployee {
		cs.employee = ev.EmployeeID
	}

	d := e.clk.DateOf(ev.At)
	switch ev.Action {
	case types.ActionIn:
		cs.inside = true
		cs.lastSeen = ev.At
		if e.doneDay[ev.CardID] == d {
			delete(e.doneDay, ev.CardID)
		}
	case types.ActionOut:
		cs.inside = false
		cs.lastSeen = ev.At
		e.doneDay[ev.CardID] = d
	case types.ActionError:
		cs.inside = false
		cs.lastSeen = ev.At
		if e.doneDay[ev.CardID] == d {
			delete(e.doneDay, ev.CardID)
		}
	}
	// Unknown action codes are ignored, both live and on replay.
}

// InsideCard is a read snapshot entry for the status API.
type InsideCard struct {
	CardID     string    `json:"uid"`
	EmployeeID string    `json:"emp"`
	Since      time.Time `json:"since"`
}

// InsideCards lists cards currently considered inside, sorted by card id.
func (e *Engine) InsideCards() []InsideCard {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []InsideCard
	for cardID, cs := range e.cards {
		if !cs.inside {
			continue
		}
		out = append(out, InsideCard{CardID: cardID, EmployeeID: cs.employee, Since: cs.lastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out
}

// appendAll writes a batch of events while still holding the lock, so
// append order to the log is exactly acceptance order.
func (e *Engine) appendAll(ctx context.Context, events []types.AttendanceEvent) error {
	for _, ev := range events {
		if err := e.log.Append(ctx, e.clk.MonthKeyOf(ev.At), ev); err != nil {
			return err
		}
	}
	return nil
}

func newEvent(at time.Time, cardID, employeeID string, action types.Action, code string) types.AttendanceEvent {
	u := uuid.New()
	ev := types.AttendanceEvent{
		ID:         hex.EncodeToString(u[:]),
		At:         at,
		CardID:     cardID,
		EmployeeID: employeeID,
		Action:     action,
	}
	if action == types.ActionError && code != "" {
		ev.ErrorCode = code
	}
	return ev
}
