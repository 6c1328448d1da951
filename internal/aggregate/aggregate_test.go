package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jolt-daemon/jolt/internal/model"
)

func f64(v float64) *float64 { return &v }

func TestHourly_TimeWeightedMean(t *testing.T) {
	a := New(1000)
	samples := []model.Sample{
		{TakenAt: 0, ChargePercent: 50, SystemW: f64(10)},
		{TakenAt: 1_800_000, ChargePercent: 40, SystemW: f64(20)},
		{TakenAt: 3_599_000, ChargePercent: 30, SystemW: f64(30)},
	}

	got := a.Hourly(0, samples)

	require.Equal(t, int64(3), got.SampleCount) // all three have non-null system_w
	assert.Equal(t, 30.0, got.MinCharge)
	assert.Equal(t, 50.0, got.MaxCharge)
	assert.InDelta(t, 15.0, got.AvgPowerW, 0.01)
	assert.InDelta(t, 15.0, got.EnergyWh, 0.01)
}

func TestHourly_MissingSystemWContributesZeroWeight(t *testing.T) {
	a := New(1000)
	samples := []model.Sample{
		{TakenAt: 0, ChargePercent: 50, SystemW: f64(10)},
		{TakenAt: 1_000_000, ChargePercent: 45, SystemW: nil},
		{TakenAt: 2_000_000, ChargePercent: 40, SystemW: f64(10)},
	}

	got := a.Hourly(0, samples)

	assert.InDelta(t, 10.0, got.AvgPowerW, 0.01)
	assert.Equal(t, int64(2), got.SampleCount)
}

func TestHourly_Empty(t *testing.T) {
	a := New(1000)
	got := a.Hourly(0, nil)
	assert.Equal(t, model.HourlyStat{HourStart: 0}, got)
}

func TestHourly_LastSampleWeightClampedToTwiceInterval(t *testing.T) {
	a := New(1000)
	samples := []model.Sample{
		{TakenAt: 0, ChargePercent: 50, SystemW: f64(10)},
	}
	got := a.Hourly(0, samples)

	// Δt is clamped to 2×interval (2000 ms = 2 s), not the full
	// remaining hour.
	assert.InDelta(t, 2.0/3600*10, got.EnergyWh, 1e-9)
	assert.InDelta(t, 10.0, got.AvgPowerW, 1e-9)
}

func TestDaily_AggregatesHourliesAndScreenTime(t *testing.T) {
	a := New(1000)
	hourlies := []model.HourlyStat{
		{HourStart: 0, AvgCharge: 80, MinCharge: 70, MaxCharge: 90, AvgPowerW: 10, EnergyWh: 10, SampleCount: 10},
		{HourStart: 3_600_000, AvgCharge: 60, MinCharge: 50, MaxCharge: 70, AvgPowerW: 20, EnergyWh: 20, SampleCount: 10},
	}
	samples := []model.Sample{
		{TakenAt: 0, State: model.Discharging},
		{TakenAt: 1000, State: model.Discharging},
		{TakenAt: 2000, State: model.Charging},
	}

	got := a.Daily("2026-07-30", 7_200_000, hourlies, samples)

	assert.Equal(t, 50.0, got.MinCharge)
	assert.Equal(t, 90.0, got.MaxCharge)
	assert.InDelta(t, 30.0, got.EnergyWh, 1e-9)
	// screen_time_s is the sum of Δt over Discharging/NotCharging samples:
	// [0,1000) and [1000,2000) both count, [2000, windowEnd) does not
	// (state is Charging).
	assert.Equal(t, int64(2), got.ScreenTimeS)
}

func TestPartialCycles_OnlyCountsDischargingDrops(t *testing.T) {
	samples := []model.Sample{
		{TakenAt: 0, ChargePercent: 90, State: model.Discharging},
		{TakenAt: 1000, ChargePercent: 80, State: model.Discharging}, // drop 10
		{TakenAt: 2000, ChargePercent: 85, State: model.Charging},    // rise, ignored
		{TakenAt: 3000, ChargePercent: 75, State: model.Discharging}, // prev state Charging, ignored
		{TakenAt: 4000, ChargePercent: 70, State: model.Discharging}, // drop 5
	}

	got := PartialCycles(samples)

	assert.InDelta(t, 0.15, got, 1e-9)
}

func TestDaily_Empty(t *testing.T) {
	a := New(1000)
	got := a.Daily("2026-07-30", 0, nil, nil)
	assert.Equal(t, model.DailyStat{Day: "2026-07-30"}, got)
}
