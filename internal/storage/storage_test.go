package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})
	return db
}

func f64(v float64) *float64 { return &v }

func TestOpen_CreatesCurrentSchemaVersion(t *testing.T) {
	db := openTestDB(t)

	v, err := db.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion() error = %v", err)
	}
	if v != CurrentSchemaVersion {
		t.Fatalf("schemaVersion() = %d, want %d", v, CurrentSchemaVersion)
	}
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.withWriteTx(func(tx *sql.Tx) error {
		return db.setSchemaVersion(tx, CurrentSchemaVersion+1)
	}); err != nil {
		t.Fatalf("setSchemaVersion() error = %v", err)
	}
	db.Close()

	_, err = Open(path)
	if !jerr.Is(err, jerr.SchemaIncompatible) {
		t.Fatalf("Open() on future schema error = %v, want jerr.SchemaIncompatible", err)
	}
}

func TestInsertSample_IdempotentOnTakenAt(t *testing.T) {
	db := openTestDB(t)

	s := model.Sample{TakenAt: 1000, ChargePercent: 90, State: model.Discharging, CPUW: f64(5), SystemW: f64(10)}
	if err := db.InsertSample(s); err != nil {
		t.Fatalf("InsertSample() error = %v", err)
	}
	s2 := s
	s2.ChargePercent = 50
	if err := db.InsertSample(s2); err != nil {
		t.Fatalf("InsertSample() duplicate error = %v", err)
	}

	rows, err := db.RecentSamples(10)
	if err != nil {
		t.Fatalf("RecentSamples() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("RecentSamples() len = %d, want 1", len(rows))
	}
	if rows[0].ChargePercent != 90 {
		t.Fatalf("RecentSamples()[0].ChargePercent = %v, want 90 (first insert wins)", rows[0].ChargePercent)
	}
}

func TestRangeSamples_HalfOpenInterval(t *testing.T) {
	db := openTestDB(t)

	for _, ts := range []int64{100, 200, 300} {
		if err := db.InsertSample(model.Sample{TakenAt: ts, ChargePercent: 50, State: model.Discharging}); err != nil {
			t.Fatalf("InsertSample(%d) error = %v", ts, err)
		}
	}

	rows, err := db.RangeSamples(100, 300)
	if err != nil {
		t.Fatalf("RangeSamples() error = %v", err)
	}
	if len(rows) != 2 || rows[0].TakenAt != 100 || rows[1].TakenAt != 200 {
		t.Fatalf("RangeSamples(100,300) = %#v, want [100,200]", rows)
	}
}

func TestPruneSamplesBefore(t *testing.T) {
	db := openTestDB(t)

	for _, ts := range []int64{100, 200, 300} {
		if err := db.InsertSample(model.Sample{TakenAt: ts, ChargePercent: 50, State: model.Discharging}); err != nil {
			t.Fatalf("InsertSample(%d) error = %v", ts, err)
		}
	}

	n, err := db.PruneSamplesBefore(300)
	if err != nil {
		t.Fatalf("PruneSamplesBefore() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("PruneSamplesBefore() removed = %d, want 2", n)
	}

	rows, err := db.RecentSamples(10)
	if err != nil {
		t.Fatalf("RecentSamples() error = %v", err)
	}
	if len(rows) != 1 || rows[0].TakenAt != 300 {
		t.Fatalf("RecentSamples() after prune = %#v, want only ts=300", rows)
	}
}

func TestSessions_OpenCloseLifecycle(t *testing.T) {
	db := openTestDB(t)

	id, err := db.OpenSession(model.SessionDischarge, 1000, 95)
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	if _, err := db.OpenSession(model.SessionDischarge, 1500, 90); !jerr.Is(err, jerr.InvalidRequest) {
		t.Fatalf("OpenSession() duplicate kind error = %v, want jerr.InvalidRequest", err)
	}

	open, err := db.OpenSessionOf(model.SessionDischarge)
	if err != nil {
		t.Fatalf("OpenSessionOf() error = %v", err)
	}
	if open == nil || open.ID != id {
		t.Fatalf("OpenSessionOf() = %#v, want session id=%d", open, id)
	}

	if err := db.CloseSession(id, 2000, 70, 12.5); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}

	if err := db.CloseSession(id, 2500, 60, 9); !jerr.Is(err, jerr.InvalidRequest) {
		t.Fatalf("CloseSession() on closed session error = %v, want jerr.InvalidRequest", err)
	}

	open, err = db.OpenSessionOf(model.SessionDischarge)
	if err != nil {
		t.Fatalf("OpenSessionOf() after close error = %v", err)
	}
	if open != nil {
		t.Fatalf("OpenSessionOf() after close = %#v, want nil", open)
	}
}

func TestLatestOpenSession_ForRestartReopen(t *testing.T) {
	db := openTestDB(t)

	id1, err := db.OpenSession(model.SessionIdle, 1000, 95)
	if err != nil {
		t.Fatalf("OpenSession(idle) error = %v", err)
	}
	if err := db.CloseSession(id1, 1100, 94, 0); err != nil {
		t.Fatalf("CloseSession(idle) error = %v", err)
	}

	id2, err := db.OpenSession(model.SessionDischarge, 1100, 94)
	if err != nil {
		t.Fatalf("OpenSession(discharge) error = %v", err)
	}

	latest, err := db.LatestOpenSession()
	if err != nil {
		t.Fatalf("LatestOpenSession() error = %v", err)
	}
	if latest == nil || latest.ID != id2 {
		t.Fatalf("LatestOpenSession() = %#v, want session id=%d", latest, id2)
	}
}

func TestRollups_Upsert(t *testing.T) {
	db := openTestDB(t)

	h := model.HourlyStat{HourStart: 3600, AvgCharge: 80, MinCharge: 75, MaxCharge: 85, AvgPowerW: 9, EnergyWh: 9, SampleCount: 12}
	if err := db.UpsertHourly(h); err != nil {
		t.Fatalf("UpsertHourly() error = %v", err)
	}
	h.AvgCharge = 81
	if err := db.UpsertHourly(h); err != nil {
		t.Fatalf("UpsertHourly() overwrite error = %v", err)
	}

	got, err := db.HourlyStatsRange(0, 7200)
	if err != nil {
		t.Fatalf("HourlyStatsRange() error = %v", err)
	}
	if len(got) != 1 || got[0].AvgCharge != 81 {
		t.Fatalf("HourlyStatsRange() = %#v, want one row with AvgCharge=81", got)
	}

	day := model.DailyStat{Day: "2026-07-30", AvgPowerW: 8, EnergyWh: 100, ScreenTimeS: 3600, MinCharge: 20, MaxCharge: 100}
	if err := db.UpsertDaily(day); err != nil {
		t.Fatalf("UpsertDaily() error = %v", err)
	}
	gotDay, err := db.DailyStatsRange("2026-07-30", "2026-07-31")
	if err != nil {
		t.Fatalf("DailyStatsRange() error = %v", err)
	}
	if len(gotDay) != 1 || gotDay[0].EnergyWh != 100 {
		t.Fatalf("DailyStatsRange() = %#v, want one row with EnergyWh=100", gotDay)
	}
}

func TestTopProcesses_ReplaceIsAtomic(t *testing.T) {
	db := openTestDB(t)

	first := []model.DailyTopProcess{
		{Name: "a", CPUSeconds: 10, EnergyScore: 10},
		{Name: "b", CPUSeconds: 5, EnergyScore: 5},
	}
	if err := db.ReplaceTopProcesses("2026-07-30", first); err != nil {
		t.Fatalf("ReplaceTopProcesses() error = %v", err)
	}

	second := []model.DailyTopProcess{
		{Name: "c", CPUSeconds: 20, EnergyScore: 20},
	}
	if err := db.ReplaceTopProcesses("2026-07-30", second); err != nil {
		t.Fatalf("ReplaceTopProcesses() replace error = %v", err)
	}

	got, err := db.TopProcesses("2026-07-30")
	if err != nil {
		t.Fatalf("TopProcesses() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "c" || got[0].Rank != 1 {
		t.Fatalf("TopProcesses() = %#v, want single row {c,rank=1}", got)
	}
}

// S5 — a database seeded under the v1 schema (no smoothed_w column, no
// rollup/session/health tables) survives the v1->v2->v3 migration chain
// with its original rows intact.
func TestMigration_V1ToCurrentPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")

	seed, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	if _, err := seed.Exec(`
		CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);
		CREATE TABLE samples (
			taken_at       INTEGER PRIMARY KEY,
			charge         REAL NOT NULL,
			state          TEXT NOT NULL,
			health_percent REAL,
			cpu_w          REAL,
			gpu_w          REAL,
			system_w       REAL,
			external       INTEGER NOT NULL,
			charger_w      REAL
		);
		INSERT INTO meta(key, value) VALUES ('schema_version', '1');
		INSERT INTO samples (taken_at, charge, state, health_percent, cpu_w, gpu_w, system_w, external, charger_w)
		VALUES (1000, 87.5, 'discharging', 95.0, 4.0, 1.0, 9.0, 0, NULL);
	`); err != nil {
		t.Fatalf("seed v1 schema: %v", err)
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("close seed handle: %v", err)
	}

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on v1 database error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	v, err := db.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion() error = %v", err)
	}
	if v != CurrentSchemaVersion {
		t.Fatalf("schemaVersion() after migration = %d, want %d", v, CurrentSchemaVersion)
	}

	rows, err := db.RecentSamples(10)
	if err != nil {
		t.Fatalf("RecentSamples() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("RecentSamples() len = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.TakenAt != 1000 || row.ChargePercent != 87.5 || row.State != model.Discharging {
		t.Fatalf("migrated row = %#v, want the v1-seeded row preserved", row)
	}
	if row.SmoothedSystemW != nil {
		t.Fatalf("migrated row SmoothedSystemW = %v, want nil (v1 predates the column)", *row.SmoothedSystemW)
	}

	// v2/v3 tables must exist and be queryable post-migration even
	// though the v1 database never had them.
	if _, err := db.HourlyStatsRange(0, 1); err != nil {
		t.Fatalf("HourlyStatsRange() on migrated db error = %v", err)
	}
	if _, err := db.SessionsRange(0, 1, nil); err != nil {
		t.Fatalf("SessionsRange() on migrated db error = %v", err)
	}
}

func TestHealthSnapshot_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	h := model.BatteryHealthSnapshot{Day: "2026-07-30", MaxCapacityWh: 45, DesignCapacityWh: 50, HealthPercent: 90}
	if err := db.UpsertHealthSnapshot(h); err != nil {
		t.Fatalf("UpsertHealthSnapshot() error = %v", err)
	}

	got, err := db.HealthSnapshot("2026-07-30")
	if err != nil {
		t.Fatalf("HealthSnapshot() error = %v", err)
	}
	if got == nil || got.HealthPercent != 90 {
		t.Fatalf("HealthSnapshot() = %#v, want HealthPercent=90", got)
	}
}
