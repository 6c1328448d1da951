// Package model holds the canonical telemetry entities shared by the
// sensor, storage, aggregation, session and IPC layers.
package model

// ChargeState is the battery's reported charge state.
type ChargeState string

const (
	Charging     ChargeState = "charging"
	Discharging  ChargeState = "discharging"
	Full         ChargeState = "full"
	NotCharging  ChargeState = "not_charging"
	StateUnknown ChargeState = "unknown"
)

// BatterySnapshot is one OS-level battery reading, produced fresh each
// tick by a BatterySource. Ephemeral — never persisted directly.
type BatterySnapshot struct {
	TakenAt          int64       `json:"taken_at"`
	ChargePercent    float64     `json:"charge_percent"`
	State            ChargeState `json:"state"`
	MaxCapacityWh    float64     `json:"max_capacity_wh"`
	DesignCapacityWh float64     `json:"design_capacity_wh"`
	CycleCount       *int64      `json:"cycle_count,omitempty"`
	VoltageMV        *int64      `json:"voltage_mv,omitempty"`
	CurrentMA        *int64      `json:"current_ma,omitempty"`
	TemperatureC     *float64    `json:"temperature_c,omitempty"`
	TimeToFullS      *int64      `json:"time_to_full_s,omitempty"`
	TimeToEmptyS     *int64      `json:"time_to_empty_s,omitempty"`
	ExternalConnected bool       `json:"external_connected"`
	ChargerW         *float64    `json:"charger_w,omitempty"`
}

// HealthPercent returns the capacity-health ratio when both capacities
// are known, matching spec.md's `health_percent = 100 * max / design`.
func (b BatterySnapshot) HealthPercent() (float64, bool) {
	if b.DesignCapacityWh <= 0 || b.MaxCapacityWh <= 0 {
		return 0, false
	}
	return 100 * b.MaxCapacityWh / b.DesignCapacityWh, true
}

// PowerSnapshot is one OS-level power reading. Fields are independently
// optional: a partial reading is success, not error.
type PowerSnapshot struct {
	TakenAt   int64    `json:"taken_at"`
	CPUW      *float64 `json:"cpu_w,omitempty"`
	GPUW      *float64 `json:"gpu_w,omitempty"`
	ANEW      *float64 `json:"ane_w,omitempty"`
	SystemW   *float64 `json:"system_w,omitempty"`
	PowerMode *string  `json:"power_mode,omitempty"`
}

// Sample is one canonical, immutable row of battery+power state at a tick.
type Sample struct {
	TakenAt          int64       `json:"taken_at"`
	ChargePercent    float64     `json:"charge_percent"`
	State            ChargeState `json:"state"`
	HealthPercent    *float64    `json:"health_percent,omitempty"`
	CPUW             *float64    `json:"cpu_w,omitempty"`
	GPUW             *float64    `json:"gpu_w,omitempty"`
	SystemW          *float64    `json:"system_w,omitempty"`
	SmoothedSystemW  *float64    `json:"smoothed_system_w,omitempty"`
	ExternalConnected bool       `json:"external_connected"`
	ChargerW         *float64    `json:"charger_w,omitempty"`
}

// HourlyStat is a precomputed hourly rollup, rewritten idempotently.
type HourlyStat struct {
	HourStart   int64   `json:"hour_start"`
	AvgCharge   float64 `json:"avg_charge"`
	MinCharge   float64 `json:"min_charge"`
	MaxCharge   float64 `json:"max_charge"`
	AvgPowerW   float64 `json:"avg_power_w"`
	EnergyWh    float64 `json:"energy_wh"`
	SampleCount int64   `json:"sample_count"`
}

// DailyStat is a precomputed daily rollup, keyed by local calendar day
// ("YYYY-MM-DD").
type DailyStat struct {
	Day         string  `json:"day"`
	AvgPowerW   float64 `json:"avg_power_w"`
	EnergyWh    float64 `json:"energy_wh"`
	ScreenTimeS int64   `json:"screen_time_s"`
	MinCharge   float64 `json:"min_charge"`
	MaxCharge   float64 `json:"max_charge"`
}

// SessionKind classifies a ChargeSession.
type SessionKind string

const (
	SessionCharge    SessionKind = "charge"
	SessionDischarge SessionKind = "discharge"
	SessionIdle      SessionKind = "idle"
)

// ChargeSession is a contiguous interval in one of Charge/Discharge/Idle.
type ChargeSession struct {
	ID          int64       `json:"id"`
	Kind        SessionKind `json:"kind"`
	StartAt     int64       `json:"start_at"`
	EndAt       *int64      `json:"end_at,omitempty"`
	StartCharge float64     `json:"start_charge"`
	EndCharge   *float64    `json:"end_charge,omitempty"`
	EnergyWh    *float64    `json:"energy_wh,omitempty"`
	ChargerW    *float64    `json:"charger_w,omitempty"`
}

// Open reports whether the session has not yet been closed.
func (s ChargeSession) Open() bool { return s.EndAt == nil }

// DailyCycle accumulates partial battery cycles for one day.
type DailyCycle struct {
	Day           string  `json:"day"`
	PartialCycles float64 `json:"partial_cycles"`
}

// BatteryHealthSnapshot records one-per-day battery identity/health state.
type BatteryHealthSnapshot struct {
	Day              string  `json:"day"`
	MaxCapacityWh    float64 `json:"max_capacity_wh"`
	DesignCapacityWh float64 `json:"design_capacity_wh"`
	CycleCount       *int64  `json:"cycle_count,omitempty"`
	HealthPercent    float64 `json:"health_percent"`
}

// DailyTopProcess is one rank in a day's top-process-by-energy ranking.
type DailyTopProcess struct {
	Day         string  `json:"day"`
	Rank        int     `json:"rank"`
	Name        string  `json:"name"`
	CPUSeconds  float64 `json:"cpu_seconds"`
	EnergyScore float64 `json:"energy_score"`
}
