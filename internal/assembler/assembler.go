// Package assembler merges one battery snapshot and one power snapshot
// into a canonical Sample, applying trailing-mean power smoothing
// (spec §4.2).
package assembler

import "github.com/jolt-daemon/jolt/internal/model"

const (
	// WindowSize is N, the trailing smoothing window length.
	WindowSize = 5
	// WarmupSamples is W, the minimum samples before smoothing emits a value.
	WarmupSamples = 3
	// GapResetFactor is how many configured intervals of silence reset
	// the smoothing window.
	GapResetFactor = 3
)

// Assembler merges per-tick sensor snapshots into Samples and maintains
// the trailing power-smoothing window across ticks.
type Assembler struct {
	intervalMS int64
	window     []float64 // trailing system_w values, oldest first
	lastTakenAt int64
	lastState  model.ChargeState
	haveLast   bool
}

// New creates an Assembler for a Recorder configured with the given tick
// interval in milliseconds (used to evaluate the gap-reset condition).
func New(intervalMS int64) *Assembler {
	return &Assembler{intervalMS: intervalMS}
}

// Assemble joins a battery and power snapshot captured for the same tick
// instant takenAt (the Recorder-assigned tick time, not source-reported
// times) into a canonical Sample.
func (a *Assembler) Assemble(takenAt int64, bat model.BatterySnapshot, pow model.PowerSnapshot) model.Sample {
	if a.haveLast {
		gap := takenAt - a.lastTakenAt
		stateFlip := isChargeFlip(a.lastState, bat.State)
		if gap >= a.intervalMS*GapResetFactor || stateFlip {
			a.window = nil
		}
	}

	s := model.Sample{
		TakenAt:           takenAt,
		ChargePercent:     bat.ChargePercent,
		State:             bat.State,
		CPUW:              pow.CPUW,
		GPUW:              pow.GPUW,
		SystemW:           pow.SystemW,
		ExternalConnected: bat.ExternalConnected,
	}
	if hp, ok := bat.HealthPercent(); ok {
		s.HealthPercent = &hp
	}

	if bat.State == model.Charging && bat.ExternalConnected && bat.ChargerW != nil {
		s.ChargerW = bat.ChargerW
	}

	if pow.SystemW != nil {
		a.window = append(a.window, *pow.SystemW)
		if len(a.window) > WindowSize {
			a.window = a.window[len(a.window)-WindowSize:]
		}
	}
	if len(a.window) >= WarmupSamples {
		mean := trailingMean(a.window)
		s.SmoothedSystemW = &mean
	}

	a.lastTakenAt = takenAt
	a.lastState = bat.State
	a.haveLast = true

	return s
}

// isChargeFlip reports whether the two states are a Charging<->Discharging
// transition, which resets the smoothing window (spec §4.2).
func isChargeFlip(prev, next model.ChargeState) bool {
	return (prev == model.Charging && next == model.Discharging) ||
		(prev == model.Discharging && next == model.Charging)
}

func trailingMean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
