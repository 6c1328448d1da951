// Package config loads, validates and persists jolt's TOML
// configuration, following the same normalize-then-validate shape the
// daemon has always used, plus a watch-directory hot-reload path.
package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/jolt-daemon/jolt/internal/paths"
)

const (
	minTickIntervalMS    = 100
	maxTickIntervalMS    = 3_600_000
	minRetentionDays     = 1
	maxRetentionDays     = 3650
	minTopProcesses      = 0 // 0 disables process ranking
	maxTopProcesses      = 500
	minEnergyCoefficient = 0.0
	maxEnergyCoefficient = 1000.0
)

// Config is jolt's top-level TOML configuration.
type Config struct {
	Daemon    DaemonConfig    `toml:"daemon"`
	Storage   StorageConfig   `toml:"storage"`
	Retention RetentionConfig `toml:"retention"`
	Process   ProcessConfig   `toml:"process"`
}

// DaemonConfig controls the Recorder's tick cadence.
type DaemonConfig struct {
	TickIntervalMS int64 `toml:"tick_interval_ms"`
}

// StorageConfig locates the embedded database.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// RetentionConfig controls the retention pass (spec §4.8).
type RetentionConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// ProcessConfig controls daily top-process ranking (spec.md's Open
// Question (c): EnergyCoefficient is the configurable watts-per-CPU-second
// weight, default 1.0).
type ProcessConfig struct {
	TopProcesses      int     `toml:"top_processes"`
	EnergyCoefficient float64 `toml:"energy_coefficient"`
}

// DefaultConfig returns the built-in configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			TickIntervalMS: 1000,
		},
		Storage: StorageConfig{
			DBPath: paths.DBPath(),
		},
		Retention: RetentionConfig{
			RetentionDays: 30,
		},
		Process: ProcessConfig{
			TopProcesses:      10,
			EnergyCoefficient: 1.0,
		},
	}
}

// Load reads and validates the config at path. Fields absent from the
// file keep their DefaultConfig value. Callers distinguish a missing
// file via os.IsNotExist and fall back to DefaultConfig themselves.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

// NormalizeAndValidate clamps paths to absolute form and checks every
// range invariant, returning a sanitized copy.
func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	if err := validateRange("daemon.tick_interval_ms", sanitized.Daemon.TickIntervalMS, minTickIntervalMS, maxTickIntervalMS); err != nil {
		return nil, err
	}
	if err := validateRange("retention.retention_days", int64(sanitized.Retention.RetentionDays), minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("process.top_processes", int64(sanitized.Process.TopProcesses), minTopProcesses, maxTopProcesses); err != nil {
		return nil, err
	}
	if sanitized.Process.EnergyCoefficient < minEnergyCoefficient || sanitized.Process.EnergyCoefficient > maxEnergyCoefficient {
		return nil, fmt.Errorf("process.energy_coefficient must be between %v and %v, got %v",
			minEnergyCoefficient, maxEnergyCoefficient, sanitized.Process.EnergyCoefficient)
	}

	return &sanitized, nil
}

// Save validates cfg and atomically writes it to path (tempfile + rename,
// so a reader never observes a partially-written file).
func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

// Watcher reloads the config file whenever it changes on disk. It
// watches the file's parent directory rather than the file itself,
// since editors and atomic Save both replace the file via rename, and a
// direct file watch loses its inode across a rename.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	changes   chan *Config
	errs      chan error
}

// Watch starts watching path for changes and returns a Watcher whose
// Changes channel receives a freshly validated Config after each write.
// Invalid rewrites (a bad save mid-edit) are reported on Errs and do not
// produce a Changes event, so callers keep running on the last-good config.
func Watch(ctx context.Context, path string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      filepath.Clean(path),
		changes:   make(chan *Config, 1),
		errs:      make(chan error, 1),
	}

	go w.run(ctx)

	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.changes)
	defer close(w.errs)
	defer w.fsWatcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				select {
				case w.errs <- err:
				default:
				}
				continue
			}
			select {
			case w.changes <- cfg:
			default:
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// Changes delivers a reloaded Config after each on-disk write.
func (w *Watcher) Changes() <-chan *Config { return w.changes }

// Errs delivers reload failures (invalid TOML or a failed validation)
// encountered while watching.
func (w *Watcher) Errs() <-chan error { return w.errs }

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int64) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}
	return nil
}
