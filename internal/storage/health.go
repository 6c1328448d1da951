package storage

import (
	"database/sql"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

// UpsertHealthSnapshot replaces the health snapshot for h.Day.
func (d *DB) UpsertHealthSnapshot(h model.BatteryHealthSnapshot) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO health_snapshots (day, max_capacity_wh, design_capacity_wh, cycle_count, health_percent)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(day) DO UPDATE SET
				max_capacity_wh    = excluded.max_capacity_wh,
				design_capacity_wh = excluded.design_capacity_wh,
				cycle_count        = excluded.cycle_count,
				health_percent     = excluded.health_percent`,
			h.Day, h.MaxCapacityWh, h.DesignCapacityWh, h.CycleCount, h.HealthPercent,
		)
		return err
	})
}

// HealthSnapshot returns the snapshot for day, if any.
func (d *DB) HealthSnapshot(day string) (*model.BatteryHealthSnapshot, error) {
	row := d.sqldb.QueryRow(`
		SELECT day, max_capacity_wh, design_capacity_wh, cycle_count, health_percent
		FROM health_snapshots WHERE day = ?`, day)
	var h model.BatteryHealthSnapshot
	if err := row.Scan(&h.Day, &h.MaxCapacityWh, &h.DesignCapacityWh, &h.CycleCount, &h.HealthPercent); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, jerr.Wrap(jerr.Internal, "scan health snapshot row", err)
	}
	return &h, nil
}

// HealthSnapshotsRange returns snapshots with day in [fromDay, toDay),
// ascending.
func (d *DB) HealthSnapshotsRange(fromDay, toDay string) ([]model.BatteryHealthSnapshot, error) {
	var out []model.BatteryHealthSnapshot
	err := withStoreBusyRetry(func() error {
		out = nil
		rows, err := d.sqldb.Query(`
			SELECT day, max_capacity_wh, design_capacity_wh, cycle_count, health_percent
			FROM health_snapshots WHERE day >= ? AND day < ? ORDER BY day ASC`, fromDay, toDay)
		if err != nil {
			return jerr.Wrap(jerr.StoreBusy, "query health snapshots", err)
		}
		defer rows.Close()

		for rows.Next() {
			var h model.BatteryHealthSnapshot
			if err := rows.Scan(&h.Day, &h.MaxCapacityWh, &h.DesignCapacityWh, &h.CycleCount, &h.HealthPercent); err != nil {
				return jerr.Wrap(jerr.Internal, "scan health snapshot row", err)
			}
			out = append(out, h)
		}
		return rows.Err()
	})
	return out, err
}

// ReplaceTopProcesses overwrites the entire top-process ranking for day
// with procs, which must already be in rank order (rank 1 first).
func (d *DB) ReplaceTopProcesses(day string, procs []model.DailyTopProcess) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM top_processes WHERE day = ?`, day); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			INSERT INTO top_processes (day, rank, name, cpu_seconds, energy_score)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, p := range procs {
			if _, err := stmt.Exec(day, i+1, p.Name, p.CPUSeconds, p.EnergyScore); err != nil {
				return err
			}
		}
		return nil
	})
}

// TopProcesses returns the ranked processes for day, ascending by rank.
func (d *DB) TopProcesses(day string) ([]model.DailyTopProcess, error) {
	var out []model.DailyTopProcess
	err := withStoreBusyRetry(func() error {
		out = nil
		rows, err := d.sqldb.Query(`
			SELECT day, rank, name, cpu_seconds, energy_score
			FROM top_processes WHERE day = ? ORDER BY rank ASC`, day)
		if err != nil {
			return jerr.Wrap(jerr.StoreBusy, "query top processes", err)
		}
		defer rows.Close()

		for rows.Next() {
			var p model.DailyTopProcess
			if err := rows.Scan(&p.Day, &p.Rank, &p.Name, &p.CPUSeconds, &p.EnergyScore); err != nil {
				return jerr.Wrap(jerr.Internal, "scan top process row", err)
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// PruneOldRollups removes hourly/daily/health/top-process/cycle rows
// older than the given cutoffs. The retention Runner does not call it;
// its sweeps prune only raw samples and closed sessions.
func (d *DB) PruneOldRollups(hourCutoff int64, dayCutoff string) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM hourly_stats WHERE hour_start < ?`, hourCutoff); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM daily_stats WHERE day < ?`, dayCutoff); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM health_snapshots WHERE day < ?`, dayCutoff); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM top_processes WHERE day < ?`, dayCutoff); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM daily_cycles WHERE day < ?`, dayCutoff); err != nil {
			return err
		}
		return nil
	})
}

// Vacuum reclaims disk space after a large prune. It runs outside the
// write mutex's transaction since VACUUM cannot run inside one.
func (d *DB) Vacuum() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.sqldb.Exec(`VACUUM`)
	if err != nil {
		return jerr.Wrap(jerr.Internal, "vacuum database", err)
	}
	return nil
}
