package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jolt-daemon/jolt/internal/model"
)

func f64(v float64) *float64 { return &v }

// S1 — trailing-mean warm-up: the first W-1 smoothed values are null,
// then each subsequent tick reports a WindowSize-wide trailing mean.
func TestAssemble_TrailingMeanWarmup(t *testing.T) {
	a := New(1000)
	systemW := []float64{4, 6, 8, 10, 12, 14}
	wantSmoothed := []*float64{nil, nil, f64(6), f64(7), f64(8), f64(10)}

	for i, w := range systemW {
		s := a.Assemble(int64(i)*1000, model.BatterySnapshot{
			ChargePercent: 50,
			State:         model.Discharging,
		}, model.PowerSnapshot{SystemW: f64(w)})

		if wantSmoothed[i] == nil {
			assert.Nil(t, s.SmoothedSystemW, "tick %d", i)
		} else if assert.NotNil(t, s.SmoothedSystemW, "tick %d", i) {
			assert.InDelta(t, *wantSmoothed[i], *s.SmoothedSystemW, 1e-9, "tick %d", i)
		}
	}
}

// A gap of GapResetFactor intervals or more resets the smoothing
// window, so warm-up starts over from null rather than blending
// pre-gap and post-gap readings.
func TestAssemble_GapResetsWindow(t *testing.T) {
	a := New(1000)

	for i, w := range []float64{4, 6, 8} {
		s := a.Assemble(int64(i)*1000, model.BatterySnapshot{State: model.Discharging}, model.PowerSnapshot{SystemW: f64(w)})
		if i == 2 {
			assert.NotNil(t, s.SmoothedSystemW, "window should be warm before the gap")
		}
	}

	// A gap of 3x the tick interval or more resets the window.
	gapTakenAt := int64(2)*1000 + 1000*GapResetFactor
	s := a.Assemble(gapTakenAt, model.BatterySnapshot{State: model.Discharging}, model.PowerSnapshot{SystemW: f64(20)})
	assert.Nil(t, s.SmoothedSystemW, "window should reset after a long gap")

	s = a.Assemble(gapTakenAt+1000, model.BatterySnapshot{State: model.Discharging}, model.PowerSnapshot{SystemW: f64(22)})
	assert.Nil(t, s.SmoothedSystemW, "still below warm-up after the reset")
}

// A Charging<->Discharging state flip resets the window even without a
// time gap.
func TestAssemble_StateFlipResetsWindow(t *testing.T) {
	a := New(1000)

	for i, w := range []float64{4, 6, 8} {
		a.Assemble(int64(i)*1000, model.BatterySnapshot{State: model.Discharging}, model.PowerSnapshot{SystemW: f64(w)})
	}

	s := a.Assemble(3000, model.BatterySnapshot{State: model.Charging}, model.PowerSnapshot{SystemW: f64(10)})
	assert.Nil(t, s.SmoothedSystemW, "state flip should reset the window")
}
