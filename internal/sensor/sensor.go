// Package sensor defines the narrow capability contracts the core depends
// on for reading battery and power state, and a 500ms-deadline helper for
// dispatching those synchronous reads without stalling the caller.
package sensor

import (
	"context"
	"time"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

// ReadDeadline is the soft per-read deadline imposed on every sensor
// source (spec §4.1).
const ReadDeadline = 500 * time.Millisecond

// BatterySource returns the most recent battery state. No caching: every
// call reflects the current kernel/OS view.
type BatterySource interface {
	Read() (model.BatterySnapshot, error)
}

// PowerSource returns the most recent power-rail state. Individual
// fields are independently optional; a partial reading is success.
type PowerSource interface {
	Read() (model.PowerSnapshot, error)
}

// ReadBatteryWithDeadline runs src.Read() on a blocking goroutine and
// enforces ReadDeadline, converting a timeout into SensorUnavailable.
func ReadBatteryWithDeadline(ctx context.Context, src BatterySource) (model.BatterySnapshot, error) {
	type result struct {
		snap model.BatterySnapshot
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		snap, err := src.Read()
		ch <- result{snap, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	select {
	case r := <-ch:
		if r.err != nil {
			return model.BatterySnapshot{}, jerr.Wrap(jerr.SensorUnavailable, "read battery source", r.err)
		}
		return r.snap, nil
	case <-ctx.Done():
		return model.BatterySnapshot{}, jerr.New(jerr.SensorUnavailable, "battery source exceeded read deadline")
	}
}

// ReadPowerWithDeadline is the PowerSource analogue of ReadBatteryWithDeadline.
func ReadPowerWithDeadline(ctx context.Context, src PowerSource) (model.PowerSnapshot, error) {
	type result struct {
		snap model.PowerSnapshot
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		snap, err := src.Read()
		ch <- result{snap, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	select {
	case r := <-ch:
		if r.err != nil {
			return model.PowerSnapshot{}, jerr.Wrap(jerr.SensorUnavailable, "read power source", r.err)
		}
		return r.snap, nil
	case <-ctx.Done():
		return model.PowerSnapshot{}, jerr.New(jerr.SensorUnavailable, "power source exceeded read deadline")
	}
}
