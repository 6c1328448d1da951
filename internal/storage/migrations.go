package storage

import (
	"database/sql"

	"github.com/jolt-daemon/jolt/internal/jerr"
)

// migration is a pure function of the prior schema: it must only ever
// add to the schema, never assume existing data's shape beyond what an
// earlier migration guaranteed.
type migration struct {
	version int
	apply   func(*sql.Tx) error
}

var migrations = []migration{
	{version: 1, apply: migrateV1},
	{version: 2, apply: migrateV2},
	{version: 3, apply: migrateV3},
}

func migrateV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS samples (
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
	`)
	return err
}

func migrateV2(tx *sql.Tx) error {
	if _, err := tx.Exec(`ALTER TABLE samples ADD COLUMN smoothed_w REAL`); err != nil {
		return err
	}
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS hourly_stats (
			hour_start   INTEGER PRIMARY KEY,
			avg_charge   REAL NOT NULL,
			min_charge   REAL NOT NULL,
			max_charge   REAL NOT NULL,
			avg_power_w  REAL NOT NULL,
			energy_wh    REAL NOT NULL,
			sample_count INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS daily_stats (
			day           TEXT PRIMARY KEY,
			avg_power_w   REAL NOT NULL,
			energy_wh     REAL NOT NULL,
			screen_time_s INTEGER NOT NULL,
			min_charge    REAL NOT NULL,
			max_charge    REAL NOT NULL
		);
	`)
	return err
}

func migrateV3(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			kind         TEXT NOT NULL,
			start_at     INTEGER NOT NULL,
			end_at       INTEGER,
			start_charge REAL NOT NULL,
			end_charge   REAL,
			energy_wh    REAL,
			charger_w    REAL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_kind_open ON sessions(kind, end_at);

		CREATE TABLE IF NOT EXISTS health_snapshots (
			day                TEXT PRIMARY KEY,
			max_capacity_wh    REAL NOT NULL,
			design_capacity_wh REAL NOT NULL,
			cycle_count        INTEGER,
			health_percent     REAL NOT NULL
		);

		CREATE TABLE IF NOT EXISTS top_processes (
			day          TEXT NOT NULL,
			rank         INTEGER NOT NULL,
			name         TEXT NOT NULL,
			cpu_seconds  REAL NOT NULL,
			energy_score REAL NOT NULL,
			PRIMARY KEY (day, rank)
		);

		CREATE TABLE IF NOT EXISTS daily_cycles (
			day            TEXT PRIMARY KEY,
			partial_cycles REAL NOT NULL
		);
	`)
	return err
}

// migrate runs every migration whose version exceeds the stored
// schema_version, strictly in ascending order, each in its own
// transaction so a failure partway through leaves the prior version
// intact and retryable.
func (d *DB) migrate() error {
	// meta must exist before schemaVersion() can query it; this is the
	// only statement that runs unconditionally ahead of the versioned
	// migration chain.
	if _, err := d.sqldb.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return jerr.Wrap(jerr.Internal, "ensure meta table", err)
	}

	current, err := d.schemaVersion()
	if err != nil {
		return jerr.Wrap(jerr.Internal, "read schema version", err)
	}
	if current > CurrentSchemaVersion {
		return jerr.New(jerr.SchemaIncompatible,
			"database schema is newer than this build understands")
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := d.withWriteTx(func(tx *sql.Tx) error {
			if err := m.apply(tx); err != nil {
				return jerr.Wrap(jerr.Internal, "apply migration", err)
			}
			return d.setSchemaVersion(tx, m.version)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
