package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jolt-daemon/jolt/internal/config"
	"github.com/jolt-daemon/jolt/internal/logging"
	"github.com/jolt-daemon/jolt/internal/paths"
)

func configPathFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = paths.ConfigPath()
	}
	return path
}

// loadConfig reads the config at path, falling back to config.DefaultConfig
// when the file does not exist (the daemon's first-run behavior).
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultConfig(), nil
		}
		return nil, newExit(5, fmt.Errorf("load config %s: %w", path, err))
	}
	return cfg, nil
}

func buildLogger(cmd *cobra.Command) *slog.Logger {
	topics := make(map[string]bool)
	if raw, _ := cmd.Flags().GetString("log"); raw != "" {
		for k, v := range logging.ParseTopics(raw) {
			topics[k] = v
		}
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		topics["all"] = true
	}

	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("JOLT_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return logging.New(topics, level)
}
