// Package recorder runs jolt's single cooperative tick loop: read
// sensors, assemble a sample, persist it, feed the session tracker,
// periodically roll up and retain, and broadcast to IPC subscribers
// (spec §4.6).
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jolt-daemon/jolt/internal/aggregate"
	"github.com/jolt-daemon/jolt/internal/assembler"
	"github.com/jolt-daemon/jolt/internal/model"
	"github.com/jolt-daemon/jolt/internal/process"
	"github.com/jolt-daemon/jolt/internal/retention"
	"github.com/jolt-daemon/jolt/internal/sensor"
	"github.com/jolt-daemon/jolt/internal/session"
)

// retentionEvery is how often the Recorder evaluates the retention
// policy (spec.md §4.6 step 7: "every 60 s").
const retentionEvery = 60 * time.Second

// Store is the subset of *storage.DB the Recorder writes through. It
// composes retention.Store and session.Store so a single concrete type
// satisfies all three.
type Store interface {
	InsertSample(model.Sample) error
	RangeSamples(from, to int64) ([]model.Sample, error)
	RecentSamples(limit int) ([]model.Sample, error)
	UpsertHourly(model.HourlyStat) error
	UpsertDaily(model.DailyStat) error
	UpsertDailyCycle(model.DailyCycle) error
	HourlyStatsRange(from, to int64) ([]model.HourlyStat, error)
	UpsertHealthSnapshot(model.BatteryHealthSnapshot) error
	ReplaceTopProcesses(day string, procs []model.DailyTopProcess) error
	LatestOpenSession() (*model.ChargeSession, error)

	retention.Store
	session.Store
}

// Broadcaster pushes a produced Sample to IPC subscribers.
type Broadcaster interface {
	Broadcast(event BroadcastEvent) error
}

// BroadcastEvent is the Recorder's output event, kept decoupled from
// package ipc so recorder never imports it (ipc imports recorder's
// sibling packages, not the reverse).
type BroadcastEvent struct {
	Sample model.Sample
}

// Recorder owns the tick loop. mu serializes Tick, ApplyConfig and
// Status, so a periodic tick from Run, an out-of-cycle Tick call and a
// config reload never interleave.
type Recorder struct {
	log     *slog.Logger
	store   Store
	battery sensor.BatterySource
	power   sensor.PowerSource
	asm     *assembler.Assembler
	sess    *session.Tracker
	agg     *aggregate.Aggregator
	ret     *retention.Runner
	procs   *process.Collector
	hub     Broadcaster

	intervalMS        int64
	topProcesses      int
	energyCoefficient float64

	startedAt      time.Time
	tickMisses     int64
	lastRetention  time.Time
	lastDay        string
	lastBattery    model.BatterySnapshot
	haveLastBattery bool

	mu sync.Mutex
}

// Config bundles the Recorder's construction-time parameters.
type Config struct {
	IntervalMS        int64
	TopProcesses      int
	EnergyCoefficient float64
	RetentionDays     int
}

// New builds a Recorder around its dependencies. procs may be nil when
// TopProcesses is 0 (process ranking disabled).
func New(log *slog.Logger, store Store, battery sensor.BatterySource, power sensor.PowerSource,
	sess *session.Tracker, procs *process.Collector, hub Broadcaster, now time.Time, cfg Config) *Recorder {
	return &Recorder{
		log:               log,
		store:             store,
		battery:           battery,
		power:             power,
		asm:               assembler.New(cfg.IntervalMS),
		sess:              sess,
		agg:               aggregate.New(cfg.IntervalMS),
		ret:               retention.New(store, retention.Policy{RetentionDays: cfg.RetentionDays}, now),
		procs:             procs,
		hub:               hub,
		intervalMS:        cfg.IntervalMS,
		topProcesses:      cfg.TopProcesses,
		energyCoefficient: cfg.EnergyCoefficient,
		startedAt:         now,
		lastRetention:     now,
		lastDay:           now.Format("2006-01-02"),
	}
}

// Run drives the tick loop on a ticker aligned to IntervalMS until ctx
// is cancelled. Each tick's errors are logged, not fatal: the Recorder
// keeps running across a single bad tick (spec.md §4.6 step 3).
func (r *Recorder) Run(ctx context.Context) error {
	interval := time.Duration(r.intervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := r.Tick(ctx, now); err != nil {
				r.log.Error("tick", "err", err)
			}
		}
	}
}

// Tick performs one iteration of spec.md §4.6 steps 2-9 for the
// instant now. Exported directly so tests can drive the Recorder
// without waiting on a real ticker.
func (r *Recorder) Tick(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	takenAt := now.UnixMilli()

	bat, pow, err := r.readSensors(ctx)
	if err != nil {
		r.tickMisses++
		r.log.Warn("tick missed", "err", err)
		return nil
	}
	bat.TakenAt = takenAt
	pow.TakenAt = takenAt
	r.lastBattery = bat
	r.haveLastBattery = true

	sample := r.asm.Assemble(takenAt, bat, pow)

	if err := r.store.InsertSample(sample); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	if err := r.sess.Observe(sample); err != nil {
		r.log.Error("session observe", "err", err)
	}

	if r.procs != nil {
		if _, err := r.procs.Tick(); err != nil {
			r.log.Warn("process collector tick", "err", err)
		}
	}

	if now.Minute() == 0 && int64(now.Second())*1000 < r.intervalMS {
		if err := r.rollupHour(now); err != nil {
			r.log.Error("hourly rollup", "err", err)
		}
	}

	day := now.Format("2006-01-02")
	if day != r.lastDay {
		if err := r.rollupDay(r.lastDay, now); err != nil {
			r.log.Error("daily rollup", "err", err)
		}
		r.lastDay = day
	}

	if now.Sub(r.lastRetention) >= retentionEvery {
		if err := r.ret.Run(now); err != nil {
			r.log.Error("retention", "err", err)
		}
		r.lastRetention = now
	}

	if r.hub != nil {
		if err := r.hub.Broadcast(BroadcastEvent{Sample: sample}); err != nil {
			r.log.Error("broadcast sample", "err", err)
		}
	}

	return nil
}

func (r *Recorder) readSensors(ctx context.Context) (model.BatterySnapshot, model.PowerSnapshot, error) {
	var (
		bat    model.BatterySnapshot
		pow    model.PowerSnapshot
		batErr error
		powErr error
		wg     sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		bat, batErr = sensor.ReadBatteryWithDeadline(ctx, r.battery)
	}()
	go func() {
		defer wg.Done()
		pow, powErr = sensor.ReadPowerWithDeadline(ctx, r.power)
	}()
	wg.Wait()

	if batErr != nil {
		return model.BatterySnapshot{}, model.PowerSnapshot{}, batErr
	}
	if powErr != nil {
		return model.BatterySnapshot{}, model.PowerSnapshot{}, powErr
	}
	return bat, pow, nil
}

// rollupHour aggregates the most recently completed hour.
func (r *Recorder) rollupHour(now time.Time) error {
	hourEnd := now.Truncate(time.Hour)
	hourStart := hourEnd.Add(-time.Hour)

	samples, err := r.store.RangeSamples(hourStart.UnixMilli(), hourEnd.UnixMilli())
	if err != nil {
		return fmt.Errorf("range samples for hourly rollup: %w", err)
	}
	stat := r.agg.Hourly(hourStart.UnixMilli(), samples)
	if err := r.store.UpsertHourly(stat); err != nil {
		return fmt.Errorf("upsert hourly: %w", err)
	}
	return nil
}

// rollupDay aggregates the day that just ended (endedDay) once now has
// crossed into the next local day, and writes the day's
// BatteryHealthSnapshot and, if enabled, its top-process ranking.
func (r *Recorder) rollupDay(endedDay string, now time.Time) error {
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayStart := dayEnd.Add(-24 * time.Hour)

	hourlies, err := r.store.HourlyStatsRange(dayStart.UnixMilli(), dayEnd.UnixMilli())
	if err != nil {
		return fmt.Errorf("hourly stats range for daily rollup: %w", err)
	}
	samples, err := r.store.RangeSamples(dayStart.UnixMilli(), dayEnd.UnixMilli())
	if err != nil {
		return fmt.Errorf("range samples for daily rollup: %w", err)
	}

	daily := r.agg.Daily(endedDay, dayEnd.UnixMilli(), hourlies, samples)
	if err := r.store.UpsertDaily(daily); err != nil {
		return fmt.Errorf("upsert daily: %w", err)
	}

	cycles := aggregate.PartialCycles(samples)
	if err := r.store.UpsertDailyCycle(model.DailyCycle{Day: endedDay, PartialCycles: cycles}); err != nil {
		return fmt.Errorf("upsert daily cycle: %w", err)
	}

	if r.haveLastBattery {
		hp, _ := r.lastBattery.HealthPercent()
		if err := r.store.UpsertHealthSnapshot(model.BatteryHealthSnapshot{
			Day:              endedDay,
			MaxCapacityWh:    r.lastBattery.MaxCapacityWh,
			DesignCapacityWh: r.lastBattery.DesignCapacityWh,
			CycleCount:       r.lastBattery.CycleCount,
			HealthPercent:    hp,
		}); err != nil {
			return fmt.Errorf("upsert health snapshot: %w", err)
		}
	}

	if r.topProcesses > 0 && r.procs != nil {
		top := r.procs.TopN(endedDay, r.topProcesses, r.energyCoefficient)
		if err := r.store.ReplaceTopProcesses(endedDay, top); err != nil {
			return fmt.Errorf("replace top processes: %w", err)
		}
		r.procs.ResetDay()
	}

	return nil
}

// ApplyConfig hot-reloads the parameters config.Watch can safely change
// without restarting the tick loop: retention horizon, top-process
// ranking size, and its energy coefficient. IntervalMS is not
// reloadable here because the ticker in Run is already started at the
// old interval; changing it requires a daemon restart.
func (r *Recorder) ApplyConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.topProcesses = cfg.TopProcesses
	r.energyCoefficient = cfg.EnergyCoefficient
	r.ret.SetPolicy(retention.Policy{RetentionDays: cfg.RetentionDays})
}

// Status answers the IPC GetStatus request.
func (r *Recorder) Status() StatusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := StatusInfo{
		Running:        true,
		UptimeS:        int64(time.Since(r.startedAt).Seconds()),
		SensorDegraded: r.tickMisses > 0,
	}
	if r.haveLastBattery {
		info.CurrentCharge = r.lastBattery.ChargePercent
		info.CurrentState = r.lastBattery.State
	}
	return info
}

// StatusInfo is the Recorder's view of live daemon status, translated
// to ipc.StatusResponse by the caller so recorder stays independent of
// the wire package.
type StatusInfo struct {
	Running        bool
	UptimeS        int64
	CurrentCharge  float64
	CurrentState   model.ChargeState
	SensorDegraded bool
}

// Restore reopens any session left open across a restart, seeding the
// tracker from the most recently persisted sample so the ordinary
// gap-close rule judges whether it is stale (spec §9).
func (r *Recorder) Restore() error {
	open, err := r.store.LatestOpenSession()
	if err != nil {
		return fmt.Errorf("latest open session: %w", err)
	}
	if open == nil {
		return nil
	}

	recent, err := r.store.RecentSamples(1)
	if err != nil {
		return fmt.Errorf("recent samples for restore: %w", err)
	}
	if len(recent) == 0 {
		return nil
	}

	r.sess.Reopen(*open, recent[0].TakenAt, recent[0].ChargePercent, recent[0].SystemW)
	return nil
}
