// Package session implements the session tracker: a small state machine
// that turns a stream of samples into Charge/Discharge/Idle sessions
// (spec §4.5).
package session

import "github.com/jolt-daemon/jolt/internal/model"

// TFull is how long the battery must continuously report Full before a
// Charge session rolls over into Idle.
const TFull int64 = 60_000

// Store is the subset of storage.DB the tracker needs. Kept narrow so
// tests can supply a fake.
type Store interface {
	OpenSession(kind model.SessionKind, startAt int64, startCharge float64) (int64, error)
	CloseSession(id int64, endAt int64, endCharge float64, energyWh float64) error
}

// Tracker consumes samples in order and maintains at most one open
// session, opening/closing rows in Store as transitions occur.
type Tracker struct {
	store      Store
	intervalMS int64
	current    *openSession
}

type openSession struct {
	id          int64
	kind        model.SessionKind
	startAt     int64
	startCharge float64

	lastAt       int64
	lastCharge   float64
	lastSystemW  *float64
	energyWh     float64
	fullSince    *int64
	lastExternal bool
	externalSet  bool
}

// New returns a Tracker with no open session.
func New(store Store, intervalMS int64) *Tracker {
	return &Tracker{store: store, intervalMS: intervalMS}
}

// Reopen restores in-memory tracking for a session left open across a
// restart (spec §9: "the tracker reads the most recent row with
// end_at IS NULL at startup"). lastObservedAt/lastObservedCharge should
// come from the most recent persisted sample, not the session's own
// start_at, so the ordinary gap-close path in Observe can correctly
// detect whether the session should be closed before resuming it.
func (t *Tracker) Reopen(s model.ChargeSession, lastObservedAt int64, lastObservedCharge float64, lastObservedSystemW *float64) {
	t.current = &openSession{
		id:          s.ID,
		kind:        s.Kind,
		startAt:     s.StartAt,
		startCharge: s.StartCharge,
		lastAt:      lastObservedAt,
		lastCharge:  lastObservedCharge,
		lastSystemW: lastObservedSystemW,
	}
}

// Observe advances the state machine by one sample.
func (t *Tracker) Observe(s model.Sample) error {
	if t.current == nil {
		return t.openFor(s)
	}

	gap := s.TakenAt - t.current.lastAt
	if gap >= 3*t.intervalMS {
		if err := t.closeCurrent(t.current.lastAt, t.current.lastCharge); err != nil {
			return err
		}
		return t.openFor(s)
	}

	// Attribute the Δt since the previous sample to the previous sample's
	// system_w, mirroring the aggregator's "weight = gap to next sample"
	// convention, before deciding whether this sample flips state.
	t.accumulate(s.TakenAt)

	switch t.current.kind {
	case model.SessionCharge:
		switch s.State {
		case model.Discharging:
			if err := t.closeCurrent(s.TakenAt, s.ChargePercent); err != nil {
				return err
			}
			if err := t.openFor(s); err != nil {
				return err
			}
			return t.finishSample(s)
		case model.Full:
			if t.current.fullSince == nil {
				at := s.TakenAt
				t.current.fullSince = &at
			} else if s.TakenAt-*t.current.fullSince >= TFull {
				if err := t.closeCurrent(s.TakenAt, s.ChargePercent); err != nil {
					return err
				}
				if err := t.openIdle(s); err != nil {
					return err
				}
				return t.finishSample(s)
			}
		default:
			t.current.fullSince = nil
		}

	case model.SessionDischarge:
		if s.State == model.Charging {
			if err := t.closeCurrent(s.TakenAt, s.ChargePercent); err != nil {
				return err
			}
			if err := t.openFor(s); err != nil {
				return err
			}
			return t.finishSample(s)
		}

	case model.SessionIdle:
		if t.current.externalSet && t.current.lastExternal && !s.ExternalConnected {
			if err := t.closeCurrent(s.TakenAt, s.ChargePercent); err != nil {
				return err
			}
			if err := t.openKind(model.SessionDischarge, s); err != nil {
				return err
			}
			return t.finishSample(s)
		}
	}

	return t.finishSample(s)
}

func (t *Tracker) finishSample(s model.Sample) error {
	t.current.lastAt = s.TakenAt
	t.current.lastCharge = s.ChargePercent
	t.current.lastSystemW = s.SystemW
	t.current.lastExternal = s.ExternalConnected
	t.current.externalSet = true
	return nil
}

func (t *Tracker) accumulate(takenAt int64) {
	if t.current.lastSystemW == nil {
		return
	}
	dtMS := takenAt - t.current.lastAt
	if dtMS < 0 {
		dtMS = 0
	}
	capMS := 2 * t.intervalMS
	if dtMS > capMS {
		dtMS = capMS
	}
	w := *t.current.lastSystemW
	if w < 0 {
		w = 0
	}
	t.current.energyWh += w * float64(dtMS) / 1000 / 3600
}

func (t *Tracker) closeCurrent(endAt int64, endCharge float64) error {
	return t.store.CloseSession(t.current.id, endAt, endCharge, t.current.energyWh)
}

func (t *Tracker) openFor(s model.Sample) error {
	switch s.State {
	case model.Charging:
		return t.openKind(model.SessionCharge, s)
	case model.Discharging:
		return t.openKind(model.SessionDischarge, s)
	case model.Full, model.NotCharging:
		return t.openIdle(s)
	default:
		// state unknown: stay closed until a recognized state arrives.
		t.current = nil
		return nil
	}
}

func (t *Tracker) openIdle(s model.Sample) error { return t.openKind(model.SessionIdle, s) }

func (t *Tracker) openKind(kind model.SessionKind, s model.Sample) error {
	id, err := t.store.OpenSession(kind, s.TakenAt, s.ChargePercent)
	if err != nil {
		return err
	}
	t.current = &openSession{
		id:          id,
		kind:        kind,
		startAt:     s.TakenAt,
		startCharge: s.ChargePercent,
		lastAt:      s.TakenAt,
		lastCharge:  s.ChargePercent,
		lastSystemW: s.SystemW,
		lastExternal: s.ExternalConnected,
		externalSet:  true,
	}
	return nil
}

// Current returns the kind of the currently open session, or false if
// none is open.
func (t *Tracker) Current() (model.SessionKind, bool) {
	if t.current == nil {
		return "", false
	}
	return t.current.kind, true
}
