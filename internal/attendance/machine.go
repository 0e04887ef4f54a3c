package attendance

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCheckoutDelay is the minimum time between check-in and check-out.
const DefaultCheckoutDelay = 2 * time.Minute

// Outcome is the result of a transition attempt.
type Outcome string

const (
	OutcomeCheckedIn  Outcome = "checked_in"
	OutcomeCheckedOut Outcome = "checked_out"
	OutcomeNoChange   Outcome = "no_change"
	OutcomeFailed     Outcome = "failed"
)

// Changed reports whether the transition was applied.
func (o Outcome) Changed() bool {
	return o == OutcomeCheckedIn || o == OutcomeCheckedOut
}

// MachineConfig configures a Machine.
type MachineConfig struct {
	Location      *time.Location
	CheckoutDelay time.Duration
	Camera        string // recorded as camera_used
	Company       string
	Logger        logrus.FieldLogger
}

// Machine keeps an in-memory mirror of today's record for every identity and
// applies check-in/check-out transitions to it. Store writes go through the
// Queue. Except for SetCheckoutDelay and CheckoutDelay, methods must be called
// from a single goroutine (the capture loop).
type Machine struct {
	store         Store
	queue         *Queue
	loc           *time.Location
	camera        string
	company       string
	checkoutDelay atomic.Int64
	log           logrus.FieldLogger

	records       map[string]*Record
	lastDetection map[string]time.Time
	// identities whose current-day record was never created in the store
	unsaved map[string]bool
}

// NewMachine creates a state machine writing through queue.
func NewMachine(store Store, queue *Queue, cfg MachineConfig) *Machine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CheckoutDelay <= 0 {
		cfg.CheckoutDelay = DefaultCheckoutDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	m := &Machine{
		store:         store,
		queue:         queue,
		loc:           cfg.Location,
		camera:        cfg.Camera,
		company:       cfg.Company,
		log:           cfg.Logger,
		records:       make(map[string]*Record),
		lastDetection: make(map[string]time.Time),
		unsaved:       make(map[string]bool),
	}
	m.checkoutDelay.Store(int64(cfg.CheckoutDelay))
	return m
}

// SetCheckoutDelay changes the debounce window. Safe for concurrent use.
func (m *Machine) SetCheckoutDelay(d time.Duration) {
	m.checkoutDelay.Store(int64(d))
}

// CheckoutDelay returns the debounce window.
func (m *Machine) CheckoutDelay() time.Duration {
	return time.Duration(m.checkoutDelay.Load())
}

// Initialize loads today's record of identity from the store, creating an
// absent record when none exists. An existing record is adopted as-is.
func (m *Machine) Initialize(ctx context.Context, identity, employeeID string, now time.Time) error {
	date := DateOf(now, m.loc)

	rec, err := m.store.GetTodayRecord(ctx, employeeID, date)
	if err != nil {
		return fmt.Errorf("loading today's record for %s: %w", identity, err)
	}
	if rec != nil {
		if rec.Name == "" {
			rec.Name = identity
		}
		m.records[identity] = rec
		m.log.WithFields(logrus.Fields{"identity": identity, "checked_in": rec.CheckedIn(), "checked_out": rec.CheckedOut()}).
			Debug("adopted existing attendance record")
		return nil
	}

	rec = m.newRecord(identity, employeeID, date)
	if err := m.store.CreateRecord(ctx, rec); err != nil {
		return fmt.Errorf("creating attendance record for %s: %w", identity, err)
	}
	m.records[identity] = rec
	m.log.WithField("identity", identity).Info("created absent attendance record")
	return nil
}

func (m *Machine) newRecord(identity, employeeID string, date time.Time) *Record {
	return &Record{
		EmployeeID: employeeID,
		Name:       identity,
		Date:       date,
		Status:     StatusAbsent,
		CameraUsed: m.camera,
		Company:    m.company,
	}
}

// Record returns a copy of the mirror record of identity.
func (m *Machine) Record(identity string) (*Record, bool) {
	rec, ok := m.records[identity]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Dispatch performs the transition due for identity once liveness is confirmed:
// check-in without an arrival, check-out with an arrival but no departure,
// nothing once the day is complete.
func (m *Machine) Dispatch(identity string, now time.Time) Outcome {
	m.syncFailures()

	rec, ok := m.current(identity, now)
	if !ok {
		return OutcomeFailed
	}

	switch {
	case !rec.CheckedIn():
		return m.CheckIn(identity, now)
	case !rec.CheckedOut():
		return m.CheckOut(identity, now)
	default:
		m.log.WithField("identity", identity).Debug("attendance already complete for today")
		return OutcomeNoChange
	}
}

// CheckIn records the arrival of identity. A second check-in is a no-op.
func (m *Machine) CheckIn(identity string, now time.Time) Outcome {
	m.syncFailures()
	log := m.log.WithField("identity", identity)

	rec, ok := m.current(identity, now)
	if !ok {
		return OutcomeFailed
	}
	if rec.CheckedIn() {
		log.WithField("arrival_time", rec.ArrivalTime.Format(time.TimeOnly)).Debug("check-in ignored, already checked in")
		return OutcomeNoChange
	}

	next := rec.Clone()
	arrival := now
	next.ArrivalTime = &arrival
	next.Status = StatusPresent

	if !m.commit(IntentCheckIn, identity, next, rec) {
		return OutcomeFailed
	}
	m.lastDetection[identity] = now
	log.WithField("time", now.In(m.loc).Format(time.TimeOnly)).Info("checked in")
	return OutcomeCheckedIn
}

// CheckOut records the departure of identity. It requires an arrival, no
// departure and at least the checkout delay since the last check-in.
func (m *Machine) CheckOut(identity string, now time.Time) Outcome {
	m.syncFailures()
	log := m.log.WithField("identity", identity)

	rec, ok := m.current(identity, now)
	if !ok {
		return OutcomeFailed
	}
	if !rec.CheckedIn() {
		log.Debug("check-out ignored, not checked in yet")
		return OutcomeNoChange
	}
	if rec.CheckedOut() {
		log.WithField("departure_time", rec.DepartureTime.Format(time.TimeOnly)).Debug("check-out ignored, already checked out")
		return OutcomeNoChange
	}
	// Anchored to the check-in time; unknown after a restart, in which case the guard passes.
	if last, seen := m.lastDetection[identity]; seen {
		if elapsed := now.Sub(last); elapsed < m.CheckoutDelay() {
			log.WithField("elapsed", elapsed.Round(time.Second).String()).Debug("check-out ignored, too soon")
			return OutcomeNoChange
		}
	}

	next := rec.Clone()
	departure := now
	hours := HoursBetween(*rec.ArrivalTime, now)
	next.DepartureTime = &departure
	next.HoursWorked = &hours
	next.Status = StatusPresent

	if !m.commit(IntentCheckOut, identity, next, rec) {
		return OutcomeFailed
	}
	log.WithFields(logrus.Fields{
		"time":  now.In(m.loc).Format(time.TimeOnly),
		"hours": hours,
	}).Info("checked out")
	return OutcomeCheckedOut
}

// current returns the mirror record of identity for now's date. A record from
// a previous day is replaced by a fresh absent one whose creation is queued.
// A current-day record whose creation was given up on is queued for creation
// again before any transition is applied to it.
func (m *Machine) current(identity string, now time.Time) (*Record, bool) {
	rec, ok := m.records[identity]
	if !ok {
		m.log.WithField("identity", identity).Warn("no attendance record initialized for identity")
		return nil, false
	}

	today := DateOf(now, m.loc)
	if rec.Date.Equal(today) {
		if !m.unsaved[identity] {
			return rec, true
		}
		if !m.commit(IntentCreate, identity, rec.Clone(), rec) {
			return nil, false
		}
		delete(m.unsaved, identity)
		m.log.WithField("identity", identity).Info("attendance record creation queued again")
		return m.records[identity], true
	}

	fresh := m.newRecord(identity, rec.EmployeeID, today)
	if !m.commit(IntentCreate, identity, fresh, rec) {
		return nil, false
	}
	delete(m.unsaved, identity)
	delete(m.lastDetection, identity)
	m.log.WithField("identity", identity).Info("date rolled over, new attendance record queued")
	return fresh, true
}

// commit enqueues the write and swaps the mirror record on success.
func (m *Machine) commit(kind IntentKind, identity string, next, previous *Record) bool {
	in := NewIntent(kind, identity, next.Clone(), previous.Clone())
	if err := m.queue.Enqueue(in); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"identity": identity, "kind": kind}).
			Warn("attendance transition not applied")
		return false
	}
	m.records[identity] = next
	return true
}

// syncFailures rolls back the mirror for intents the worker gave up on, so the
// next liveness confirmation retries the same transition.
func (m *Machine) syncFailures() {
	for {
		select {
		case in := <-m.queue.Failed():
			m.rollback(in)
		default:
			return
		}
	}
}

func (m *Machine) rollback(in Intent) {
	if in.Kind == IntentCreate {
		m.unsaved[in.Identity] = true
	}
	if in.Previous == nil {
		return
	}
	m.records[in.Identity] = in.Previous.Clone()
	if in.Kind == IntentCheckIn {
		delete(m.lastDetection, in.Identity)
	}
	m.log.WithFields(logrus.Fields{"identity": in.Identity, "kind": in.Kind, "intent_id": in.ID}).
		Warn("rolled back attendance transition after store failure")
}
