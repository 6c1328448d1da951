//go:build linux

package sensor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

// sysfsRoot is the mount point every sysfs path here is resolved under.
var sysfsRoot = "/sys"

// SysfsBatterySource reads /sys/class/power_supply/BAT* directly.
type SysfsBatterySource struct{}

func NewSysfsBatterySource() *SysfsBatterySource { return &SysfsBatterySource{} }

func (s *SysfsBatterySource) Read() (model.BatterySnapshot, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/BAT*"))
	if err != nil {
		return model.BatterySnapshot{}, jerr.Wrap(jerr.SensorUnavailable, "glob battery", err)
	}
	if len(matches) == 0 {
		return model.BatterySnapshot{}, jerr.New(jerr.SensorUnavailable, "no battery found")
	}

	data, err := os.ReadFile(filepath.Join(matches[0], "uevent"))
	if err != nil {
		return model.BatterySnapshot{}, jerr.Wrap(jerr.SensorUnavailable, "read uevent", err)
	}
	props := parseUevent(string(data))

	snap := model.BatterySnapshot{
		TakenAt:       time.Now().UnixMilli(),
		State:         mapStatus(props["POWER_SUPPLY_STATUS"]),
		ExternalConnected: acOnline(),
	}

	capPct, _ := strconv.ParseFloat(props["POWER_SUPPLY_CAPACITY"], 64)
	snap.ChargePercent = capPct

	fullDesignUAH, okDesign := parseInt(props["POWER_SUPPLY_CHARGE_FULL_DESIGN"])
	fullUAH, okFull := parseInt(props["POWER_SUPPLY_CHARGE_FULL"])
	voltageUV, okV := parseInt(props["POWER_SUPPLY_VOLTAGE_NOW"])
	if okV && okFull {
		snap.MaxCapacityWh = uahToWh(fullUAH, voltageUV)
	}
	if okV && okDesign {
		snap.DesignCapacityWh = uahToWh(fullDesignUAH, voltageUV)
	}

	if cycles, ok := parseInt(props["POWER_SUPPLY_CYCLE_COUNT"]); ok {
		snap.CycleCount = &cycles
	}
	if okV {
		mv := voltageUV / 1000
		snap.VoltageMV = &mv
	}
	if currentUA, ok := parseInt(props["POWER_SUPPLY_CURRENT_NOW"]); ok {
		ma := currentUA / 1000
		if snap.State == model.Discharging {
			ma = -ma
		}
		snap.CurrentMA = &ma
	}

	// Some firmware reports "Discharging" at full capacity while on AC.
	if snap.State == model.Discharging && snap.ChargePercent >= 100 && snap.ExternalConnected {
		snap.State = model.Full
	}

	if snap.State == model.Charging && snap.ExternalConnected {
		if w, ok := parseFloat(props["POWER_SUPPLY_POWER_NOW"]); ok {
			watts := w / 1_000_000
			snap.ChargerW = &watts
		}
	}

	return snap, nil
}

func mapStatus(s string) model.ChargeState {
	switch strings.TrimSpace(s) {
	case "Charging":
		return model.Charging
	case "Discharging":
		return model.Discharging
	case "Full":
		return model.Full
	case "Not charging":
		return model.NotCharging
	default:
		return model.StateUnknown
	}
}

func acOnline() bool {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/AC*/online"))
	if err != nil {
		return false
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err == nil && strings.TrimSpace(string(data)) == "1" {
			return true
		}
	}
	return false
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}

func parseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

// uahToWh converts a microamp-hour charge quantity at a given microvolt
// rail to watt-hours: Wh = (uAh / 1e6) * (uV / 1e6).
func uahToWh(uah, uv int64) float64 {
	return (float64(uah) / 1_000_000) * (float64(uv) / 1_000_000)
}

// SysfsPowerSource derives system/CPU power from Intel RAPL energy
// counters when present, falling back to battery voltage*current.
type SysfsPowerSource struct {
	battery *SysfsBatterySource

	mu       sync.Mutex
	lastUJ   int64
	lastTime time.Time
	haveLast bool
}

func NewSysfsPowerSource(battery *SysfsBatterySource) *SysfsPowerSource {
	return &SysfsPowerSource{battery: battery}
}

func (p *SysfsPowerSource) Read() (model.PowerSnapshot, error) {
	snap := model.PowerSnapshot{TakenAt: time.Now().UnixMilli()}

	if w, ok := p.raplPowerW(); ok {
		snap.CPUW = &w
		snap.SystemW = &w
		return snap, nil
	}

	if p.battery != nil {
		if bat, err := p.battery.Read(); err == nil && bat.VoltageMV != nil && bat.CurrentMA != nil {
			w := (float64(*bat.VoltageMV) / 1000) * (float64(*bat.CurrentMA) / 1000)
			if w < 0 {
				w = -w
			}
			snap.SystemW = &w
		}
	}

	return snap, nil
}

// raplPowerW reads /sys/class/powercap/intel-rapl:0/energy_uj and derives
// an average watts figure from the delta since the previous call.
func (p *SysfsPowerSource) raplPowerW() (float64, bool) {
	path := filepath.Join(sysfsRoot, "class/powercap/intel-rapl:0/energy_uj")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	uj, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.haveLast {
		p.lastUJ, p.lastTime, p.haveLast = uj, now, true
		return 0, false
	}
	deltaUJ := uj - p.lastUJ
	deltaS := now.Sub(p.lastTime).Seconds()
	p.lastUJ, p.lastTime = uj, now
	if deltaUJ < 0 || deltaS <= 0 {
		// Counter wrapped or clock didn't advance; skip this tick.
		return 0, false
	}
	watts := (float64(deltaUJ) / 1_000_000) / deltaS
	return watts, true
}
