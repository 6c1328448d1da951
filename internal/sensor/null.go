package sensor

import (
	"time"

	"github.com/jolt-daemon/jolt/internal/model"
)

// NullBatterySource always succeeds with a fixed or supplied snapshot.
// Used in tests in place of a real platform source (spec §9).
type NullBatterySource struct {
	Snapshot model.BatterySnapshot
	// Err, if set, is returned instead of Snapshot.
	Err error
}

func (n *NullBatterySource) Read() (model.BatterySnapshot, error) {
	if n.Err != nil {
		return model.BatterySnapshot{}, n.Err
	}
	snap := n.Snapshot
	if snap.TakenAt == 0 {
		snap.TakenAt = time.Now().UnixMilli()
	}
	return snap, nil
}

// NullPowerSource is the PowerSource analogue of NullBatterySource.
type NullPowerSource struct {
	Snapshot model.PowerSnapshot
	Err      error
}

func (n *NullPowerSource) Read() (model.PowerSnapshot, error) {
	if n.Err != nil {
		return model.PowerSnapshot{}, n.Err
	}
	snap := n.Snapshot
	if snap.TakenAt == 0 {
		snap.TakenAt = time.Now().UnixMilli()
	}
	return snap, nil
}
