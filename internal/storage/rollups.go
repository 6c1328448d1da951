package storage

import (
	"database/sql"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

// UpsertHourly replaces the hourly rollup for h.HourStart.
func (d *DB) UpsertHourly(h model.HourlyStat) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO hourly_stats (hour_start, avg_charge, min_charge, max_charge, avg_power_w, energy_wh, sample_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(hour_start) DO UPDATE SET
				avg_charge = excluded.avg_charge,
				min_charge = excluded.min_charge,
				max_charge = excluded.max_charge,
				avg_power_w = excluded.avg_power_w,
				energy_wh = excluded.energy_wh,
				sample_count = excluded.sample_count`,
			h.HourStart, h.AvgCharge, h.MinCharge, h.MaxCharge, h.AvgPowerW, h.EnergyWh, h.SampleCount,
		)
		return err
	})
}

// UpsertDaily replaces the daily rollup for day.Day.
func (d *DB) UpsertDaily(day model.DailyStat) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO daily_stats (day, avg_power_w, energy_wh, screen_time_s, min_charge, max_charge)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(day) DO UPDATE SET
				avg_power_w = excluded.avg_power_w,
				energy_wh = excluded.energy_wh,
				screen_time_s = excluded.screen_time_s,
				min_charge = excluded.min_charge,
				max_charge = excluded.max_charge`,
			day.Day, day.AvgPowerW, day.EnergyWh, day.ScreenTimeS, day.MinCharge, day.MaxCharge,
		)
		return err
	})
}

// HourlyStatsRange returns hourly rollups with hour_start in [from, to).
func (d *DB) HourlyStatsRange(from, to int64) ([]model.HourlyStat, error) {
	var out []model.HourlyStat
	err := withStoreBusyRetry(func() error {
		out = nil
		rows, err := d.sqldb.Query(`
			SELECT hour_start, avg_charge, min_charge, max_charge, avg_power_w, energy_wh, sample_count
			FROM hourly_stats WHERE hour_start >= ? AND hour_start < ? ORDER BY hour_start ASC`, from, to)
		if err != nil {
			return jerr.Wrap(jerr.StoreBusy, "query hourly stats", err)
		}
		defer rows.Close()

		for rows.Next() {
			var h model.HourlyStat
			if err := rows.Scan(&h.HourStart, &h.AvgCharge, &h.MinCharge, &h.MaxCharge, &h.AvgPowerW, &h.EnergyWh, &h.SampleCount); err != nil {
				return jerr.Wrap(jerr.Internal, "scan hourly stat row", err)
			}
			out = append(out, h)
		}
		return rows.Err()
	})
	return out, err
}

// DailyStatsRange returns daily rollups with day in [fromDay, toDay).
func (d *DB) DailyStatsRange(fromDay, toDay string) ([]model.DailyStat, error) {
	var out []model.DailyStat
	err := withStoreBusyRetry(func() error {
		out = nil
		rows, err := d.sqldb.Query(`
			SELECT day, avg_power_w, energy_wh, screen_time_s, min_charge, max_charge
			FROM daily_stats WHERE day >= ? AND day < ? ORDER BY day ASC`, fromDay, toDay)
		if err != nil {
			return jerr.Wrap(jerr.StoreBusy, "query daily stats", err)
		}
		defer rows.Close()

		for rows.Next() {
			var s model.DailyStat
			if err := rows.Scan(&s.Day, &s.AvgPowerW, &s.EnergyWh, &s.ScreenTimeS, &s.MinCharge, &s.MaxCharge); err != nil {
				return jerr.Wrap(jerr.Internal, "scan daily stat row", err)
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// UpsertDailyCycle replaces the partial-cycle accumulation for one day.
func (d *DB) UpsertDailyCycle(c model.DailyCycle) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO daily_cycles (day, partial_cycles) VALUES (?, ?)
			ON CONFLICT(day) DO UPDATE SET partial_cycles = excluded.partial_cycles`,
			c.Day, c.PartialCycles,
		)
		return err
	})
}

// DailyCycles returns the partial-cycle accumulation for one day, if any.
func (d *DB) DailyCycles(day string) (*model.DailyCycle, error) {
	row := d.sqldb.QueryRow(`SELECT day, partial_cycles FROM daily_cycles WHERE day = ?`, day)
	var c model.DailyCycle
	if err := row.Scan(&c.Day, &c.PartialCycles); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, jerr.Wrap(jerr.Internal, "scan daily cycle row", err)
	}
	return &c, nil
}
