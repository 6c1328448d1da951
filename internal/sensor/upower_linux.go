//go:build linux

package sensor

import (
	"fmt"
	"log/slog"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

const (
	upowerBusName  = "org.freedesktop.UPower"
	upowerObjPath  = "/org/freedesktop/UPower/devices/DisplayDevice"
	upowerDevIface = "org.freedesktop.UPower.Device"
	login1BusName  = "org.freedesktop.login1"
)

// UPowerBatterySource reads the DisplayDevice aggregate battery object
// over the D-Bus system bus, as an alternative to reading sysfs directly.
type UPowerBatterySource struct {
	conn *godbus.Conn
}

// NewUPowerBatterySource connects to the system bus. Returns
// SensorUnavailable if UPower is not reachable (no bus, no daemon, etc).
func NewUPowerBatterySource() (*UPowerBatterySource, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, jerr.Wrap(jerr.SensorUnavailable, "connect system bus", err)
	}
	u := &UPowerBatterySource{conn: conn}
	obj := conn.Object(upowerBusName, godbus.ObjectPath(upowerObjPath))
	if _, err := u.getFloat(obj, "Percentage"); err != nil {
		return nil, jerr.Wrap(jerr.SensorUnavailable, "query UPower display device", err)
	}
	return u, nil
}

func (u *UPowerBatterySource) Close() error {
	return u.conn.Close()
}

func (u *UPowerBatterySource) Read() (model.BatterySnapshot, error) {
	obj := u.conn.Object(upowerBusName, godbus.ObjectPath(upowerObjPath))

	percentage, err := u.getFloat(obj, "Percentage")
	if err != nil {
		return model.BatterySnapshot{}, jerr.Wrap(jerr.SensorUnavailable, "read UPower percentage", err)
	}
	state, _ := u.getUint32(obj, "State")
	energyFull, _ := u.getFloat(obj, "EnergyFull")
	energyFullDesign, _ := u.getFloat(obj, "EnergyFullDesign")
	onBattery, _ := u.getBool(obj, "OnBattery")
	voltage, _ := u.getFloat(obj, "Voltage")
	energyRate, _ := u.getFloat(obj, "EnergyRate")
	temperature, _ := u.getFloat(obj, "Temperature")
	timeToEmpty, _ := u.getInt64(obj, "TimeToEmpty")
	timeToFull, _ := u.getInt64(obj, "TimeToFull")

	snap := model.BatterySnapshot{
		TakenAt:           time.Now().UnixMilli(),
		ChargePercent:     percentage,
		State:             upowerState(state),
		MaxCapacityWh:     energyFull,
		DesignCapacityWh:  energyFullDesign,
		ExternalConnected: !onBattery,
	}
	if voltage > 0 {
		mv := int64(voltage * 1000)
		snap.VoltageMV = &mv
	}
	if energyRate != 0 && voltage > 0 {
		ma := int64((energyRate * 1000 / voltage) * 1000)
		if snap.State == model.Discharging {
			ma = -ma
		}
		snap.CurrentMA = &ma
	}
	if temperature != 0 {
		snap.TemperatureC = &temperature
	}
	if timeToEmpty > 0 {
		snap.TimeToEmptyS = &timeToEmpty
	}
	if timeToFull > 0 {
		snap.TimeToFullS = &timeToFull
	}
	if snap.State == model.Charging && snap.ExternalConnected && energyRate > 0 {
		snap.ChargerW = &energyRate
	}

	return snap, nil
}

// upowerState maps UPower's UP_DEVICE_STATE enum to our ChargeState.
func upowerState(state uint32) model.ChargeState {
	switch state {
	case 1:
		return model.Charging
	case 2:
		return model.Discharging
	case 4:
		return model.Full
	case 3:
		return model.NotCharging // "Empty"
	case 5:
		return model.NotCharging // "Pending charge"
	case 6:
		return model.Discharging // "Pending discharge"
	default:
		return model.StateUnknown
	}
}

func (u *UPowerBatterySource) getFloat(obj godbus.BusObject, prop string) (float64, error) {
	v, err := obj.GetProperty(upowerDevIface + "." + prop)
	if err != nil {
		return 0, err
	}
	f, ok := v.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("property %s: unexpected type %T", prop, v.Value())
	}
	return f, nil
}

func (u *UPowerBatterySource) getUint32(obj godbus.BusObject, prop string) (uint32, error) {
	v, err := obj.GetProperty(upowerDevIface + "." + prop)
	if err != nil {
		return 0, err
	}
	n, ok := v.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("property %s: unexpected type %T", prop, v.Value())
	}
	return n, nil
}

func (u *UPowerBatterySource) getBool(obj godbus.BusObject, prop string) (bool, error) {
	v, err := obj.GetProperty(upowerDevIface + "." + prop)
	if err != nil {
		return false, err
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s: unexpected type %T", prop, v.Value())
	}
	return b, nil
}

func (u *UPowerBatterySource) getInt64(obj godbus.BusObject, prop string) (int64, error) {
	v, err := obj.GetProperty(upowerDevIface + "." + prop)
	if err != nil {
		return 0, err
	}
	switch n := v.Value().(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("property %s: unexpected type %T", prop, v.Value())
	}
}

// WakeMonitor listens for systemd-logind PrepareForSleep signals so the
// Recorder can force an immediate session-tracker gap close on resume,
// instead of waiting for the next tick's gap detection to notice the
// wall-clock jump. Grounded on the teacher's sleep.go signal-matching.
type WakeMonitor struct {
	conn   *godbus.Conn
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

func NewWakeMonitor(logger *slog.Logger) (*WakeMonitor, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, jerr.Wrap(jerr.SensorUnavailable, "connect system bus", err)
	}
	if err := conn.AddMatchSignal(
		godbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		godbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		conn.Close()
		return nil, jerr.Wrap(jerr.SensorUnavailable, "watch PrepareForSleep", err)
	}

	m := &WakeMonitor{
		conn:   conn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go m.listen()
	return m, nil
}

// Wake emits a value each time the system resumes from suspend.
func (m *WakeMonitor) Wake() <-chan struct{} { return m.wake }

func (m *WakeMonitor) Close() error {
	close(m.done)
	return m.conn.Close()
}

func (m *WakeMonitor) listen() {
	ch := make(chan *godbus.Signal, 16)
	m.conn.Signal(ch)
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			if len(sig.Body) < 1 {
				continue
			}
			active, ok := sig.Body[0].(bool)
			if !ok || active {
				continue // only the "post" (active=false) transition is a wake
			}
			select {
			case m.wake <- struct{}{}:
			default:
			}
			if m.logger != nil {
				m.logger.Info("resume signal received", "topic", "sensor")
			}
		case <-m.done:
			return
		}
	}
}
