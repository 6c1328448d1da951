package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jolt-daemon/jolt/internal/config"
	"github.com/jolt-daemon/jolt/internal/ipc"
	"github.com/jolt-daemon/jolt/internal/paths"
	"github.com/jolt-daemon/jolt/internal/pidlock"
	"github.com/jolt-daemon/jolt/internal/process"
	"github.com/jolt-daemon/jolt/internal/recorder"
	"github.com/jolt-daemon/jolt/internal/sensor"
	"github.com/jolt-daemon/jolt/internal/session"
	"github.com/jolt-daemon/jolt/internal/storage"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the jolt background daemon",
	}
	cmd.AddCommand(
		&cobra.Command{Use: "start", Short: "Run the daemon in the foreground", RunE: runDaemonStart},
		&cobra.Command{Use: "stop", Short: "Stop a running daemon", RunE: runDaemonStop},
		&cobra.Command{Use: "status", Short: "Report whether the daemon is running", RunE: runDaemonStatus},
		&cobra.Command{Use: "install", Short: "Install a systemd --user unit for jolt", RunE: runDaemonInstall},
		&cobra.Command{Use: "uninstall", Short: "Remove the systemd --user unit", RunE: runDaemonUninstall},
	)
	return cmd
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPathFlag(cmd))
	if err != nil {
		return err
	}
	logger := buildLogger(cmd)

	lock, err := pidlock.Acquire(paths.PIDPath())
	if err != nil {
		return newExit(1, fmt.Errorf("acquire pid lock: %w", err))
	}
	defer lock.Release()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return newExit(1, fmt.Errorf("create data directory: %w", err))
	}
	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return newExit(1, fmt.Errorf("open database: %w", err))
	}
	defer db.Close()

	battery, power, closeSensors := buildSensors(logger)
	defer closeSensors()

	sess := session.New(db, cfg.Daemon.TickIntervalMS)

	var procs *process.Collector
	if cfg.Process.TopProcesses > 0 {
		procs = process.NewCollector(100)
	}

	hub := ipc.NewHub()

	rec := recorder.New(logger, db, battery, power, sess, procs, &hubBroadcaster{hub}, time.Now(), recorder.Config{
		IntervalMS:        cfg.Daemon.TickIntervalMS,
		TopProcesses:      cfg.Process.TopProcesses,
		EnergyCoefficient: cfg.Process.EnergyCoefficient,
		RetentionDays:     cfg.Retention.RetentionDays,
	})
	if err := rec.Restore(); err != nil {
		logger.Warn("restore session state from prior run", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watcher, err := config.Watch(ctx, configPathFlag(cmd)); err != nil {
		logger.Warn("config hot-reload unavailable", "err", err)
	} else {
		go watchConfig(ctx, logger, watcher, rec)
	}

	srv := ipc.NewServer(logger, db, &statusAdapter{rec}, hub)

	if wake := startWakeMonitor(logger); wake != nil {
		go func() {
			for range wake {
				_ = rec.Tick(ctx, time.Now())
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, paths.SocketPath()); err != nil {
			logger.Error("ipc server", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		_ = rec.Run(ctx)
	}()

	logger.Info("jolt daemon started", "db", cfg.Storage.DBPath, "socket", paths.SocketPath())

	select {
	case <-ctx.Done():
	case <-srv.Shutdown():
		stop()
	}
	wg.Wait()

	return nil
}

// watchConfig applies retention/top-process/energy-coefficient changes
// from a rewritten config file to the running Recorder without a
// restart (SPEC_FULL.md's AMBIENT STACK: config hot-reload). The tick
// interval is not reloadable this way since the ticker in rec.Run is
// already running at the old period.
func watchConfig(ctx context.Context, logger *slog.Logger, watcher *config.Watcher, rec *recorder.Recorder) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-watcher.Changes():
			rec.ApplyConfig(recorder.Config{
				IntervalMS:        cfg.Daemon.TickIntervalMS,
				TopProcesses:      cfg.Process.TopProcesses,
				EnergyCoefficient: cfg.Process.EnergyCoefficient,
				RetentionDays:     cfg.Retention.RetentionDays,
			})
			logger.Info("config reloaded", "top_processes", cfg.Process.TopProcesses, "retention_days", cfg.Retention.RetentionDays)
		case err := <-watcher.Errs():
			logger.Warn("config watch", "err", err)
		}
	}
}

// startWakeMonitor wires the UPower login1 sleep/wake signal (spec.md's
// supplemented feature: SPEC_FULL.md §4.1) to an immediate off-cycle
// tick, so the session tracker's gap-close fires at the actual wake
// instant instead of waiting for the next periodic tick. Returns nil
// if the D-Bus signal is unavailable (e.g. no systemd-logind).
func startWakeMonitor(logger *slog.Logger) <-chan struct{} {
	mon, err := sensor.NewWakeMonitor(logger)
	if err != nil {
		logger.Warn("sleep/wake monitor unavailable", "err", err)
		return nil
	}
	return mon.Wake()
}

func buildSensors(logger *slog.Logger) (sensor.BatterySource, sensor.PowerSource, func()) {
	if up, err := sensor.NewUPowerBatterySource(); err == nil {
		return up, sensor.NewSysfsPowerSource(nil), func() { _ = up.Close() }
	} else {
		logger.Warn("UPower battery source unavailable, falling back to sysfs", "err", err)
	}

	sysBat := sensor.NewSysfsBatterySource()
	return sysBat, sensor.NewSysfsPowerSource(sysBat), func() {}
}

// hubBroadcaster adapts *ipc.Hub to recorder.Broadcaster without
// recorder importing the wire-protocol package.
type hubBroadcaster struct{ hub *ipc.Hub }

func (h *hubBroadcaster) Broadcast(event recorder.BroadcastEvent) error {
	return h.hub.Broadcast(ipc.SampleEvent{Sample: event.Sample})
}

// statusAdapter adapts *recorder.Recorder to ipc.StatusProvider.
type statusAdapter struct{ rec *recorder.Recorder }

func (s *statusAdapter) Status() ipc.StatusResponse {
	info := s.rec.Status()
	return ipc.StatusResponse{
		Running:        info.Running,
		Version:        Version,
		UptimeS:        info.UptimeS,
		CurrentCharge:  info.CurrentCharge,
		CurrentState:   info.CurrentState,
		SensorDegraded: info.SensorDegraded,
	}
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	client, err := ipc.Dial(paths.SocketPath())
	if err != nil {
		return newExit(4, fmt.Errorf("daemon not running: %w", err))
	}
	defer client.Close()

	msg, err := client.Call(ipc.KindShutdown, nil)
	if err != nil {
		return newExit(1, fmt.Errorf("send shutdown: %w", err))
	}
	if err := ipc.AsError(msg); err != nil {
		return newExit(1, err)
	}
	fmt.Println("daemon shutting down")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	client, err := ipc.Dial(paths.SocketPath())
	if err != nil {
		pid := pidlock.ReadRunningPID(paths.PIDPath())
		if pid == 0 {
			fmt.Println("jolt daemon is not running")
			return newExit(4, fmt.Errorf("daemon not running"))
		}
		fmt.Printf("jolt daemon process %d is alive but not answering IPC\n", pid)
		return newExit(4, fmt.Errorf("daemon unreachable"))
	}
	defer client.Close()

	msg, err := client.Call(ipc.KindGetStatus, nil)
	if err != nil {
		return newExit(1, err)
	}
	var resp ipc.StatusResponse
	if err := ipc.Decode(msg, &resp); err != nil {
		return newExit(1, err)
	}

	fmt.Printf("running: %v\n", resp.Running)
	fmt.Printf("version: %s\n", resp.Version)
	fmt.Printf("uptime: %ds\n", resp.UptimeS)
	fmt.Printf("charge: %.1f%%\n", resp.CurrentCharge)
	fmt.Printf("state: %s\n", resp.CurrentState)
	if resp.SensorDegraded {
		fmt.Println("warning: sensor reads have been missing ticks")
	}
	return nil
}

const systemdUnitTemplate = `[Unit]
Description=jolt battery and power telemetry daemon

[Service]
ExecStart=%s daemon start
Restart=on-failure

[Install]
WantedBy=default.target
`

func systemdUnitPath() string {
	return filepath.Join(paths.ConfigDir(), "..", "systemd", "user", "jolt.service")
}

func runDaemonInstall(cmd *cobra.Command, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return newExit(1, fmt.Errorf("resolve executable path: %w", err))
	}

	unitPath := systemdUnitPath()
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return newExit(1, fmt.Errorf("create systemd user directory: %w", err))
	}
	if err := os.WriteFile(unitPath, []byte(fmt.Sprintf(systemdUnitTemplate, exe)), 0o644); err != nil {
		return newExit(1, fmt.Errorf("write unit file: %w", err))
	}

	fmt.Printf("installed %s\n", unitPath)
	fmt.Println("run: systemctl --user daemon-reload && systemctl --user enable --now jolt")
	return nil
}

func runDaemonUninstall(cmd *cobra.Command, args []string) error {
	unitPath := systemdUnitPath()
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return newExit(1, fmt.Errorf("remove unit file: %w", err))
	}
	fmt.Printf("removed %s\n", unitPath)
	fmt.Println("run: systemctl --user disable --now jolt && systemctl --user daemon-reload")
	return nil
}
