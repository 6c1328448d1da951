package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jolt-daemon/jolt/internal/storage"
)

// newHistoryCmd builds the "history" command tree. These subcommands
// open the database directly rather than going through the daemon's
// IPC socket, so they work whether or not jolt is currently running
// (spec §6: export/prune/clear have no daemon-side request in the
// wire protocol).
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage recorded telemetry history",
	}
	cmd.AddCommand(newHistorySummaryCmd())
	cmd.AddCommand(newHistoryTopCmd())
	cmd.AddCommand(newHistoryExportCmd())
	cmd.AddCommand(newHistoryPruneCmd())
	cmd.AddCommand(newHistoryClearCmd())
	return cmd
}

func openHistoryDB(cmd *cobra.Command) (*storage.DB, error) {
	cfg, err := loadConfig(configPathFlag(cmd))
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, newExit(1, fmt.Errorf("open database: %w", err))
	}
	return db, nil
}

func newHistorySummaryCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print daily energy/power rollups over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			fromDay, toDay := resolveDayRange(from, to)
			stats, err := db.DailyStatsRange(fromDay, toDay)
			if err != nil {
				return newExit(1, err)
			}
			if len(stats) == 0 {
				fmt.Println("no recorded days in range")
				return nil
			}
			for _, s := range stats {
				fmt.Printf("%s  avg %.2fW  energy %.2fWh  screen %s  charge %.0f-%.0f%%\n",
					s.Day, s.AvgPowerW, s.EnergyWh, (time.Duration(s.ScreenTimeS) * time.Second).String(), s.MinCharge, s.MaxCharge)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD), default 7 days ago")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD), default today")
	return cmd
}

func newHistoryTopCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print a day's top-energy-consuming processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if day == "" {
				day = time.Now().Format("2006-01-02")
			}
			procs, err := db.TopProcesses(day)
			if err != nil {
				return newExit(1, err)
			}
			if len(procs) == 0 {
				fmt.Printf("no process ranking recorded for %s\n", day)
				return nil
			}
			for _, p := range procs {
				fmt.Printf("%2d. %-24s cpu %.1fs  score %.3f\n", p.Rank, p.Name, p.CPUSeconds, p.EnergyScore)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to rank (YYYY-MM-DD), default today")
	return cmd
}

func newHistoryExportCmd() *cobra.Command {
	var from, to, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export raw samples in a date range as JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			fromMS, toMS, err := resolveMillisRange(from, to)
			if err != nil {
				return newExit(2, err)
			}
			samples, err := db.RangeSamples(fromMS, toMS)
			if err != nil {
				return newExit(1, err)
			}

			switch format {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				for _, s := range samples {
					if err := enc.Encode(s); err != nil {
						return newExit(1, err)
					}
				}
			case "csv":
				w := csv.NewWriter(os.Stdout)
				defer w.Flush()
				w.Write([]string{"taken_at", "charge_percent", "state", "system_w", "external_connected"})
				for _, s := range samples {
					systemW := ""
					if s.SystemW != nil {
						systemW = strconv.FormatFloat(*s.SystemW, 'f', 2, 64)
					}
					w.Write([]string{
						strconv.FormatInt(s.TakenAt, 10),
						strconv.FormatFloat(s.ChargePercent, 'f', 1, 64),
						string(s.State),
						systemW,
						strconv.FormatBool(s.ExternalConnected),
					})
				}
			default:
				return newExit(2, fmt.Errorf("unknown format %q, want json or csv", format))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "range start (YYYY-MM-DD), default 7 days ago")
	cmd.Flags().StringVar(&to, "to", "", "range end (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete samples and sessions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if days <= 0 {
				cfg, err := loadConfig(configPathFlag(cmd))
				if err != nil {
					return err
				}
				days = cfg.Retention.RetentionDays
			}
			cutoff := time.Now().AddDate(0, 0, -days)
			samplesRemoved, err := db.PruneSamplesBefore(cutoff.UnixMilli())
			if err != nil {
				return newExit(1, err)
			}
			sessionsRemoved, err := db.PruneSessionsBefore(cutoff.UnixMilli())
			if err != nil {
				return newExit(1, err)
			}
			fmt.Printf("removed %d samples and %d sessions older than %s\n", samplesRemoved, sessionsRemoved, cutoff.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "prune rows older than this many days, default config retention_days")
	return cmd
}

func newHistoryClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all raw samples and closed sessions (irreversible); rollups, health snapshots and process rankings are kept",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return newExit(2, fmt.Errorf("refusing to clear history without --yes"))
			}
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := db.PruneSamplesBefore(time.Now().AddDate(100, 0, 0).UnixMilli()); err != nil {
				return newExit(1, err)
			}
			if _, err := db.PruneSessionsBefore(time.Now().AddDate(100, 0, 0).UnixMilli()); err != nil {
				return newExit(1, err)
			}
			if err := db.Vacuum(); err != nil {
				return newExit(1, err)
			}
			fmt.Println("history cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm irreversible deletion")
	return cmd
}

func resolveDayRange(from, to string) (string, string) {
	now := time.Now()
	if to == "" {
		to = now.Format("2006-01-02")
	}
	if from == "" {
		from = now.AddDate(0, 0, -7).Format("2006-01-02")
	}
	return from, to
}

func resolveMillisRange(from, to string) (int64, int64, error) {
	fromDay, toDay := resolveDayRange(from, to)
	fromT, err := time.Parse("2006-01-02", fromDay)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --from: %w", err)
	}
	toT, err := time.Parse("2006-01-02", toDay)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --to: %w", err)
	}
	return fromT.UnixMilli(), toT.AddDate(0, 0, 1).UnixMilli(), nil
}
