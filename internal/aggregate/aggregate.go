// Package aggregate computes hourly and daily rollups from raw samples
// (spec §4.4): a time-weighted mean of system power, the derived energy
// total, and screen-time accounting.
package aggregate

import "github.com/jolt-daemon/jolt/internal/model"

// Aggregator turns raw samples into HourlyStat/DailyStat rollups. It
// holds no state between calls — every rollup is recomputed from scratch
// and is safe to call repeatedly (idempotent rewrite, spec §4.4).
type Aggregator struct {
	intervalMS int64
}

// New returns an Aggregator clamping per-sample weights to 2×intervalMS.
func New(intervalMS int64) *Aggregator {
	return &Aggregator{intervalMS: intervalMS}
}

// Hourly computes the rollup for one aligned hour window [hourStart,
// hourStart+3_600_000). samples must already be restricted to that
// window and sorted ascending by TakenAt.
func (a *Aggregator) Hourly(hourStart int64, samples []model.Sample) model.HourlyStat {
	windowEnd := hourStart + 3_600_000
	stat := model.HourlyStat{HourStart: hourStart}
	if len(samples) == 0 {
		return stat
	}

	var weightedPower, totalWeight, chargeSum float64
	var sampleCount int64
	minCharge, maxCharge := samples[0].ChargePercent, samples[0].ChargePercent

	for i, s := range samples {
		if s.ChargePercent < minCharge {
			minCharge = s.ChargePercent
		}
		if s.ChargePercent > maxCharge {
			maxCharge = s.ChargePercent
		}
		chargeSum += s.ChargePercent

		var next int64
		if i+1 < len(samples) {
			next = samples[i+1].TakenAt
		} else {
			next = windowEnd
		}
		dt := a.weight(s.TakenAt, next)

		if s.SystemW != nil {
			weightedPower += *s.SystemW * dt
			totalWeight += dt
			sampleCount++
		}
	}

	stat.MinCharge = minCharge
	stat.MaxCharge = maxCharge
	stat.AvgCharge = chargeSum / float64(len(samples))
	stat.SampleCount = sampleCount
	stat.EnergyWh = weightedPower / 3600
	if totalWeight > 0 {
		stat.AvgPowerW = weightedPower / totalWeight
	}
	return stat
}

// Daily rolls hourlies (the hour-aligned rollups already computed for
// this calendar day) into a DailyStat, and derives screen-time directly
// from samples since hourly rollups don't retain per-sample state
// (spec §4.4: "screen-time is the sum of Δt over samples whose
// state ∈ {Discharging, NotCharging}").
func (a *Aggregator) Daily(day string, dayEnd int64, hourlies []model.HourlyStat, samples []model.Sample) model.DailyStat {
	stat := model.DailyStat{Day: day}
	if len(hourlies) == 0 {
		return stat
	}

	var energyWh float64
	minCharge, maxCharge := hourlies[0].MinCharge, hourlies[0].MaxCharge
	for _, h := range hourlies {
		energyWh += h.EnergyWh
		if h.MinCharge < minCharge {
			minCharge = h.MinCharge
		}
		if h.MaxCharge > maxCharge {
			maxCharge = h.MaxCharge
		}
	}
	// total elapsed seconds covered by the hourlies, derived from energy
	// and power rather than assumed-uniform hour lengths, so a partial
	// final hour (today, so far) still yields a correct time-weighted mean.
	var totalSeconds float64
	for _, h := range hourlies {
		if h.AvgPowerW > 0 {
			totalSeconds += h.EnergyWh * 3600 / h.AvgPowerW
		}
	}

	stat.MinCharge = minCharge
	stat.MaxCharge = maxCharge
	stat.EnergyWh = energyWh
	if totalSeconds > 0 {
		stat.AvgPowerW = energyWh * 3600 / totalSeconds
	}
	stat.ScreenTimeS = a.screenTimeSeconds(dayEnd, samples)
	return stat
}

// screenTimeSeconds sums Δt over samples in an active-use state, using
// the same gap-to-next weighting (and clamp) as the power rollup.
func (a *Aggregator) screenTimeSeconds(windowEnd int64, samples []model.Sample) int64 {
	var total float64
	for i, s := range samples {
		var next int64
		if i+1 < len(samples) {
			next = samples[i+1].TakenAt
		} else {
			next = windowEnd
		}
		dt := a.weight(s.TakenAt, next)
		if s.State == model.Discharging || s.State == model.NotCharging {
			total += dt
		}
	}
	return int64(total)
}

// PartialCycles sums max(0, charge_{i-1} - charge_i) / 100 over
// consecutive samples (already restricted to one calendar day) where the
// earlier sample's state is Discharging — a running fractional count of
// battery cycles consumed that day.
func PartialCycles(samples []model.Sample) float64 {
	var total float64
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if prev.State != model.Discharging {
			continue
		}
		drop := prev.ChargePercent - cur.ChargePercent
		if drop > 0 {
			total += drop / 100
		}
	}
	return total
}

// weight returns the clamped Δt in seconds between two tick timestamps
// given in milliseconds.
func (a *Aggregator) weight(takenAt, next int64) float64 {
	dtMS := next - takenAt
	if dtMS < 0 {
		dtMS = 0
	}
	capMS := 2 * a.intervalMS
	if dtMS > capMS {
		dtMS = capMS
	}
	return float64(dtMS) / 1000
}
