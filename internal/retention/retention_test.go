package retention

import (
	"testing"
	"time"
)

type fakeStore struct {
	sampleCutoffs  []int64
	sessionCutoffs []int64
	vacuumCalls    int
}

func (f *fakeStore) PruneSamplesBefore(cutoff int64) (int64, error) {
	f.sampleCutoffs = append(f.sampleCutoffs, cutoff)
	return 0, nil
}

func (f *fakeStore) PruneSessionsBefore(cutoff int64) (int64, error) {
	f.sessionCutoffs = append(f.sessionCutoffs, cutoff)
	return 0, nil
}

func (f *fakeStore) Vacuum() error {
	f.vacuumCalls++
	return nil
}

func TestRun_NoOpWhenRetentionDisabled(t *testing.T) {
	store := &fakeStore{}
	r := New(store, Policy{RetentionDays: 0}, time.Unix(0, 0))

	if err := r.Run(time.Unix(0, 0)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.sampleCutoffs) != 0 {
		t.Fatalf("PruneSamplesBefore called %d times, want 0", len(store.sampleCutoffs))
	}
}

// S6 — retention.
func TestRun_PrunesSamplesAtRetentionHorizon(t *testing.T) {
	store := &fakeStore{}
	now := time.Unix(1_000_000, 0)
	r := New(store, Policy{RetentionDays: 7}, now)

	if err := r.Run(now); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.sampleCutoffs) != 1 {
		t.Fatalf("PruneSamplesBefore called %d times, want 1", len(store.sampleCutoffs))
	}
	wantCutoff := now.Add(-7 * 24 * time.Hour).UnixMilli()
	if store.sampleCutoffs[0] != wantCutoff {
		t.Fatalf("sample cutoff = %d, want %d", store.sampleCutoffs[0], wantCutoff)
	}

	wantSessionCutoff := now.Add(-28 * 24 * time.Hour).UnixMilli()
	if store.sessionCutoffs[0] != wantSessionCutoff {
		t.Fatalf("session cutoff = %d, want %d (4x retention)", store.sessionCutoffs[0], wantSessionCutoff)
	}
}

func TestRun_VacuumsAtMostOncePerDay(t *testing.T) {
	store := &fakeStore{}
	start := time.Unix(1_000_000, 0)
	r := New(store, Policy{RetentionDays: 7}, start)

	if err := r.Run(start); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.vacuumCalls != 1 {
		t.Fatalf("vacuumCalls = %d, want 1 (first run always vacuums)", store.vacuumCalls)
	}

	if err := r.Run(start.Add(time.Hour)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.vacuumCalls != 1 {
		t.Fatalf("vacuumCalls = %d after +1h, want still 1", store.vacuumCalls)
	}

	if err := r.Run(start.Add(25 * time.Hour)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.vacuumCalls != 2 {
		t.Fatalf("vacuumCalls = %d after +25h, want 2", store.vacuumCalls)
	}
}
