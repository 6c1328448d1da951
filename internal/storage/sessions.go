package storage

import (
	"database/sql"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

// OpenSession opens a new session of kind at startAt. Fails with
// jerr.InvalidRequest if a session of the same kind is already open
// (spec §4.3).
func (d *DB) OpenSession(kind model.SessionKind, startAt int64, startCharge float64) (int64, error) {
	var id int64
	err := d.withWriteTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id FROM sessions WHERE kind = ? AND end_at IS NULL LIMIT 1`, string(kind))
		var existing int64
		switch err := row.Scan(&existing); err {
		case nil:
			return jerr.New(jerr.InvalidRequest, "a session of this kind is already open")
		case sql.ErrNoRows:
			// fall through to insert
		default:
			return err
		}

		res, err := tx.Exec(`
			INSERT INTO sessions (kind, start_at, start_charge) VALUES (?, ?, ?)`,
			string(kind), startAt, startCharge,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// CloseSession closes session id. Fails with jerr.InvalidRequest if
// already closed.
func (d *DB) CloseSession(id int64, endAt int64, endCharge float64, energyWh float64) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT end_at FROM sessions WHERE id = ?`, id)
		var endAtExisting sql.NullInt64
		if err := row.Scan(&endAtExisting); err != nil {
			if err == sql.ErrNoRows {
				return jerr.New(jerr.NotFound, "no such session")
			}
			return err
		}
		if endAtExisting.Valid {
			return jerr.New(jerr.InvalidRequest, "session already closed")
		}

		_, err := tx.Exec(`
			UPDATE sessions SET end_at = ?, end_charge = ?, energy_wh = ? WHERE id = ?`,
			endAt, endCharge, energyWh, id,
		)
		return err
	})
}

// SetSessionChargerW records the observed charger wattage for an open
// Charge session, when the platform provided one.
func (d *DB) SetSessionChargerW(id int64, chargerW float64) error {
	return d.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE sessions SET charger_w = ? WHERE id = ?`, chargerW, id)
		return err
	})
}

// OpenSessionOf returns the currently-open session of kind, if any.
func (d *DB) OpenSessionOf(kind model.SessionKind) (*model.ChargeSession, error) {
	row := d.sqldb.QueryRow(`
		SELECT id, kind, start_at, end_at, start_charge, end_charge, energy_wh, charger_w
		FROM sessions WHERE kind = ? AND end_at IS NULL LIMIT 1`, string(kind))
	return scanOneSession(row)
}

// LatestOpenSession returns the single most recently started session
// that has no end_at, regardless of kind — used to reopen tracker state
// across daemon restarts (spec §9).
func (d *DB) LatestOpenSession() (*model.ChargeSession, error) {
	row := d.sqldb.QueryRow(`
		SELECT id, kind, start_at, end_at, start_charge, end_charge, energy_wh, charger_w
		FROM sessions WHERE end_at IS NULL ORDER BY start_at DESC LIMIT 1`)
	return scanOneSession(row)
}

// SessionsRange returns sessions starting in [from, to), optionally
// filtered by kind.
func (d *DB) SessionsRange(from, to int64, kind *model.SessionKind) ([]model.ChargeSession, error) {
	var out []model.ChargeSession
	err := withStoreBusyRetry(func() error {
		out = nil
		var rows *sql.Rows
		var err error
		if kind != nil {
			rows, err = d.sqldb.Query(`
				SELECT id, kind, start_at, end_at, start_charge, end_charge, energy_wh, charger_w
				FROM sessions WHERE start_at >= ? AND start_at < ? AND kind = ? ORDER BY start_at ASC`,
				from, to, string(*kind))
		} else {
			rows, err = d.sqldb.Query(`
				SELECT id, kind, start_at, end_at, start_charge, end_charge, energy_wh, charger_w
				FROM sessions WHERE start_at >= ? AND start_at < ? ORDER BY start_at ASC`,
				from, to)
		}
		if err != nil {
			return jerr.Wrap(jerr.StoreBusy, "query sessions", err)
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanSessionRow(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// PruneSessionsBefore deletes closed sessions that started before cutoff.
func (d *DB) PruneSessionsBefore(cutoff int64) (int64, error) {
	var n int64
	err := d.withWriteTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM sessions WHERE start_at < ? AND end_at IS NOT NULL`, cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOneSession(row *sql.Row) (*model.ChargeSession, error) {
	s, err := scanSessionRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func scanSessionRow(r rowScanner) (model.ChargeSession, error) {
	var s model.ChargeSession
	var kind string
	var endAt sql.NullInt64
	var endCharge, energyWh, chargerW sql.NullFloat64
	err := r.Scan(&s.ID, &kind, &s.StartAt, &endAt, &s.StartCharge, &endCharge, &energyWh, &chargerW)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.ChargeSession{}, err
		}
		return model.ChargeSession{}, jerr.Wrap(jerr.Internal, "scan session row", err)
	}
	s.Kind = model.SessionKind(kind)
	if endAt.Valid {
		v := endAt.Int64
		s.EndAt = &v
	}
	if endCharge.Valid {
		v := endCharge.Float64
		s.EndCharge = &v
	}
	if energyWh.Valid {
		v := energyWh.Float64
		s.EnergyWh = &v
	}
	if chargerW.Valid {
		v := chargerW.Float64
		s.ChargerW = &v
	}
	return s, nil
}
