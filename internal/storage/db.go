// Package storage implements the embedded time-series store: raw
// samples, hourly/daily rollups, sessions, health snapshots and
// top-process rankings, with versioned schema migrations and a
// single-writer/bounded-reader concurrency discipline (spec §4.3, §5).
package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jolt-daemon/jolt/internal/jerr"
)

// CurrentSchemaVersion is the schema version this build understands.
const CurrentSchemaVersion = 3

// maxReaderConns bounds the concurrent-reader pool (spec §5: "default 4"),
// plus one conceptual writer serialized by writeMu.
const maxReaderConns = 5

// DB wraps an embedded SQLite database with a single-writer mutex.
type DB struct {
	sqldb   *sql.DB
	writeMu sync.Mutex
}

// Open opens or creates the database at path, running schema migrations
// in ascending order. Refuses to open a database whose stored
// schema_version is newer than CurrentSchemaVersion.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, jerr.Wrap(jerr.Internal, "open database", err)
	}
	sqldb.SetMaxOpenConns(maxReaderConns)
	sqldb.SetMaxIdleConns(maxReaderConns)

	d := &DB{sqldb: sqldb}
	if err := d.migrate(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.sqldb.Close()
}

// withWriteTx runs fn inside a single transaction under the writer
// mutex, guaranteeing durability (journal flushed on commit) before
// returning.
func (d *DB) withWriteTx(fn func(*sql.Tx) error) error {
	return withStoreBusyRetry(func() error {
		d.writeMu.Lock()
		defer d.writeMu.Unlock()

		tx, err := d.sqldb.Begin()
		if err != nil {
			return jerr.Wrap(jerr.StoreBusy, "begin transaction", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return jerr.Wrap(jerr.StoreBusy, "commit transaction", err)
		}
		return nil
	})
}

// storeBusyBackoff is the fixed retry schedule for a StoreBusy error
// (SQLite lock contention) before it is surfaced to the caller (spec §7).
var storeBusyBackoff = []time.Duration{10 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond}

// withStoreBusyRetry runs fn, retrying on StoreBusy per storeBusyBackoff.
// Any other error, or a StoreBusy that persists through the last retry,
// is returned to the caller unchanged.
func withStoreBusyRetry(fn func() error) error {
	err := fn()
	for _, wait := range storeBusyBackoff {
		if !jerr.Is(err, jerr.StoreBusy) {
			return err
		}
		time.Sleep(wait)
		err = fn()
	}
	return err
}

func (d *DB) schemaVersion() (int, error) {
	row := d.sqldb.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (d *DB) setSchemaVersion(tx execer, v int) error {
	_, err := tx.Exec(`INSERT INTO meta(key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprintf("%d", v))
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
