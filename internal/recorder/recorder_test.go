package recorder

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jolt-daemon/jolt/internal/model"
	"github.com/jolt-daemon/jolt/internal/sensor"
	"github.com/jolt-daemon/jolt/internal/session"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	samples       []model.Sample
	hourlies      []model.HourlyStat
	dailies       []model.DailyStat
	cycles        []model.DailyCycle
	health        []model.BatteryHealthSnapshot
	topProcesses  map[string][]model.DailyTopProcess
	openSessions  map[model.SessionKind]int64
	closedCount   int
	sampleCutoffs []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		topProcesses: make(map[string][]model.DailyTopProcess),
		openSessions: make(map[model.SessionKind]int64),
	}
}

func (f *fakeStore) InsertSample(s model.Sample) error {
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeStore) RangeSamples(from, to int64) ([]model.Sample, error) {
	var out []model.Sample
	for _, s := range f.samples {
		if s.TakenAt >= from && s.TakenAt < to {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentSamples(limit int) ([]model.Sample, error) {
	if limit > len(f.samples) {
		limit = len(f.samples)
	}
	out := make([]model.Sample, limit)
	for i := 0; i < limit; i++ {
		out[i] = f.samples[len(f.samples)-1-i]
	}
	return out, nil
}

func (f *fakeStore) UpsertHourly(h model.HourlyStat) error {
	f.hourlies = append(f.hourlies, h)
	return nil
}

func (f *fakeStore) UpsertDaily(d model.DailyStat) error {
	f.dailies = append(f.dailies, d)
	return nil
}

func (f *fakeStore) UpsertDailyCycle(c model.DailyCycle) error {
	f.cycles = append(f.cycles, c)
	return nil
}

func (f *fakeStore) HourlyStatsRange(from, to int64) ([]model.HourlyStat, error) {
	var out []model.HourlyStat
	for _, h := range f.hourlies {
		if h.HourStart >= from && h.HourStart < to {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertHealthSnapshot(h model.BatteryHealthSnapshot) error {
	f.health = append(f.health, h)
	return nil
}

func (f *fakeStore) ReplaceTopProcesses(day string, procs []model.DailyTopProcess) error {
	f.topProcesses[day] = procs
	return nil
}

func (f *fakeStore) LatestOpenSession() (*model.ChargeSession, error) { return nil, nil }

func (f *fakeStore) PruneSamplesBefore(cutoff int64) (int64, error) {
	f.sampleCutoffs = append(f.sampleCutoffs, cutoff)
	return 0, nil
}

func (f *fakeStore) PruneSessionsBefore(cutoff int64) (int64, error) { return 0, nil }
func (f *fakeStore) Vacuum() error                                   { return nil }

func (f *fakeStore) OpenSession(kind model.SessionKind, startAt int64, startCharge float64) (int64, error) {
	f.openSessions[kind]++
	return int64(len(f.openSessions)), nil
}

func (f *fakeStore) CloseSession(id int64, endAt int64, endCharge float64, energyWh float64) error {
	f.closedCount++
	return nil
}

type fakeBroadcaster struct {
	events []BroadcastEvent
}

func (f *fakeBroadcaster) Broadcast(event BroadcastEvent) error {
	f.events = append(f.events, event)
	return nil
}

func newTestRecorder(store Store, hub Broadcaster, now time.Time) *Recorder {
	sess := session.New(store, 1000)
	return New(nopLogger(), store,
		&sensor.NullBatterySource{Snapshot: model.BatterySnapshot{ChargePercent: 80, State: model.Discharging, MaxCapacityWh: 45, DesignCapacityWh: 50}},
		&sensor.NullPowerSource{Snapshot: model.PowerSnapshot{SystemW: f64p(10)}},
		sess, nil, hub, now,
		Config{IntervalMS: 1000, RetentionDays: 30},
	)
}

func TestTick_InsertsSampleAndBroadcasts(t *testing.T) {
	store := newFakeStore()
	hub := &fakeBroadcaster{}
	r := newTestRecorder(store, hub, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC))

	now := time.Date(2026, 3, 1, 10, 30, 1, 0, time.UTC)
	if err := r.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if len(store.samples) != 1 {
		t.Fatalf("samples recorded = %d, want 1", len(store.samples))
	}
	if len(hub.events) != 1 {
		t.Fatalf("broadcast events = %d, want 1", len(hub.events))
	}
	if hub.events[0].Sample.ChargePercent != 80 {
		t.Fatalf("broadcast ChargePercent = %v, want 80", hub.events[0].Sample.ChargePercent)
	}
}

func TestTick_SkipsRowOnSensorFailure(t *testing.T) {
	store := newFakeStore()
	sess := session.New(store, 1000)
	r := New(nopLogger(), store,
		&sensor.NullBatterySource{Err: fakeErr{}},
		&sensor.NullPowerSource{Snapshot: model.PowerSnapshot{SystemW: f64p(10)}},
		sess, nil, &fakeBroadcaster{}, time.Unix(0, 0),
		Config{IntervalMS: 1000, RetentionDays: 30},
	)

	if err := r.Tick(context.Background(), time.Unix(1, 0)); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(store.samples) != 0 {
		t.Fatalf("samples recorded = %d, want 0 on sensor failure", len(store.samples))
	}
	if r.tickMisses != 1 {
		t.Fatalf("tickMisses = %d, want 1", r.tickMisses)
	}
}

func TestTick_CrossingDayBoundaryWritesDailyRollup(t *testing.T) {
	store := newFakeStore()
	hub := &fakeBroadcaster{}
	startOfDay1 := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)
	r := newTestRecorder(store, hub, startOfDay1)

	if err := r.Tick(context.Background(), startOfDay1); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	nextDay := time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC)
	if err := r.Tick(context.Background(), nextDay); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if len(store.dailies) != 1 {
		t.Fatalf("daily rollups written = %d, want 1", len(store.dailies))
	}
	if store.dailies[0].Day != "2026-03-01" {
		t.Fatalf("daily rollup day = %q, want 2026-03-01", store.dailies[0].Day)
	}
	if len(store.health) != 1 {
		t.Fatalf("health snapshots written = %d, want 1", len(store.health))
	}
}

func TestStatus_ReflectsLastObservedSample(t *testing.T) {
	store := newFakeStore()
	r := newTestRecorder(store, &fakeBroadcaster{}, time.Unix(0, 0))

	if err := r.Tick(context.Background(), time.Unix(1, 0)); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	status := r.Status()
	if status.CurrentCharge != 80 {
		t.Fatalf("CurrentCharge = %v, want 80", status.CurrentCharge)
	}
	if status.CurrentState != model.Discharging {
		t.Fatalf("CurrentState = %v, want Discharging", status.CurrentState)
	}
}

type fakeErr struct{}

func (fakeErr) Error() string { return "sensor unavailable" }

func f64p(v float64) *float64 { return &v }
