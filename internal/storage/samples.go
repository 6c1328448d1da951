package storage

import (
	"database/sql"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

const maxRecentSamples = 10_000

// InsertSample appends one sample row. Idempotent on taken_at: a
// duplicate tick is a silent no-op (spec §4.3).
func (d *DB) InsertSample(s model.Sample) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO samples (taken_at, charge, state, health_percent, cpu_w, gpu_w, system_w, smoothed_w, external, charger_w)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(taken_at) DO NOTHING`,
			s.TakenAt, s.ChargePercent, string(s.State), s.HealthPercent,
			s.CPUW, s.GPUW, s.SystemW, s.SmoothedSystemW,
			boolToInt(s.ExternalConnected), s.ChargerW,
		)
		return err
	})
}

// RecentSamples returns the last limit samples, most recent first.
// limit is clamped to maxRecentSamples.
func (d *DB) RecentSamples(limit int) ([]model.Sample, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxRecentSamples {
		limit = maxRecentSamples
	}
	var out []model.Sample
	err := withStoreBusyRetry(func() error {
		rows, err := d.sqldb.Query(`
			SELECT taken_at, charge, state, health_percent, cpu_w, gpu_w, system_w, smoothed_w, external, charger_w
			FROM samples ORDER BY taken_at DESC LIMIT ?`, limit)
		if err != nil {
			return jerr.Wrap(jerr.StoreBusy, "query recent samples", err)
		}
		defer rows.Close()
		out, err = scanSamples(rows)
		return err
	})
	return out, err
}

// RangeSamples returns samples in ascending time order over the
// half-open interval [from, to).
func (d *DB) RangeSamples(from, to int64) ([]model.Sample, error) {
	var out []model.Sample
	err := withStoreBusyRetry(func() error {
		rows, err := d.sqldb.Query(`
			SELECT taken_at, charge, state, health_percent, cpu_w, gpu_w, system_w, smoothed_w, external, charger_w
			FROM samples WHERE taken_at >= ? AND taken_at < ? ORDER BY taken_at ASC`, from, to)
		if err != nil {
			return jerr.Wrap(jerr.StoreBusy, "query range samples", err)
		}
		defer rows.Close()
		out, err = scanSamples(rows)
		return err
	})
	return out, err
}

// PruneSamplesBefore deletes raw rows strictly older than cutoff.
// Rollups are untouched. Returns the number of rows removed.
func (d *DB) PruneSamplesBefore(cutoff int64) (int64, error) {
	var n int64
	err := d.withWriteTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM samples WHERE taken_at < ?`, cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanSamples(rows *sql.Rows) ([]model.Sample, error) {
	var out []model.Sample
	for rows.Next() {
		var s model.Sample
		var state string
		var external int
		if err := rows.Scan(&s.TakenAt, &s.ChargePercent, &state, &s.HealthPercent,
			&s.CPUW, &s.GPUW, &s.SystemW, &s.SmoothedSystemW,
			&external, &s.ChargerW); err != nil {
			return nil, jerr.Wrap(jerr.Internal, "scan sample row", err)
		}
		s.State = model.ChargeState(state)
		s.ExternalConnected = external != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
