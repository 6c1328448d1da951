// Package process ranks processes by CPU usage over a day, producing
// the top-K DailyTopProcess rows the Recorder persists at each local-day
// boundary (spec §3, §4.6 step 9).
package process

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jolt-daemon/jolt/internal/model"
)

// Observation is one tick's ephemeral per-process reading. Never
// persisted row-by-row — only the day's top-K ranking survives.
type Observation struct {
	PID           int
	Comm          string
	CPUTicksDelta int64
	RSSBytes      int64
}

// DefaultEnergyCoefficient is the coefficient TopN uses to convert
// accumulated CPU seconds into the energy_score reported in
// DailyTopProcess when the caller passes a non-positive one (spec.md's
// Open Question (c) leaves the exact weighting abstract; a single
// watts-per-cpu-second coefficient gives a deterministic, stable ordering).
const DefaultEnergyCoefficient = 1.0

// Collector tracks per-pid CPU tick deltas across ticks and accumulates
// per-process-name CPU seconds for the running day.
type Collector struct {
	prevTicks map[int]int64
	commCache map[int]string
	cpuHz     int64

	accum map[string]float64 // comm -> accumulated cpu seconds this day
}

// NewCollector returns a Collector. clockTicksPerSecond is normally
// sysconf(_SC_CLK_TCK), which is 100 on effectively all Linux systems.
func NewCollector(clockTicksPerSecond int64) *Collector {
	if clockTicksPerSecond <= 0 {
		clockTicksPerSecond = 100
	}
	return &Collector{
		prevTicks: make(map[int]int64),
		commCache: make(map[int]string),
		cpuHz:     clockTicksPerSecond,
		accum:     make(map[string]float64),
	}
}

// Tick reads /proc/*/stat, computes tick deltas from the previous call,
// and folds the resulting CPU-second deltas into the running per-name
// accumulation. Unlike the per-tick Observation values it returns, this state
// survives across calls until ResetDay is called.
func (c *Collector) Tick() ([]Observation, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	currentTicks := make(map[int]int64, len(entries))
	var obs []Observation

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		comm, ticks, err := readProcStat(pid)
		if err != nil {
			continue
		}
		currentTicks[pid] = ticks
		c.commCache[pid] = comm

		prev, ok := c.prevTicks[pid]
		if !ok {
			continue
		}
		delta := ticks - prev
		if delta <= 0 {
			continue
		}
		cpuSeconds := float64(delta) / float64(c.cpuHz)
		c.accum[comm] += cpuSeconds
		obs = append(obs, Observation{PID: pid, Comm: comm, CPUTicksDelta: delta})
	}

	c.prevTicks = currentTicks
	for pid := range c.commCache {
		if _, alive := currentTicks[pid]; !alive {
			delete(c.commCache, pid)
		}
	}

	return obs, nil
}

// TopN returns the top n processes by accumulated CPU seconds for the
// running day, ordered by energy_score descending then name ascending
// for a stable total order (spec.md's S-series determinism requirement).
func (c *Collector) TopN(day string, n int, coefficient float64) []model.DailyTopProcess {
	if coefficient <= 0 {
		coefficient = DefaultEnergyCoefficient
	}
	type row struct {
		name    string
		cpuSecs float64
	}
	rows := make([]row, 0, len(c.accum))
	for name, secs := range c.accum {
		rows = append(rows, row{name: name, cpuSecs: secs})
	}
	sort.Slice(rows, func(i, j int) bool {
		si := rows[i].cpuSecs * coefficient
		sj := rows[j].cpuSecs * coefficient
		if si != sj {
			return si > sj
		}
		return rows[i].name < rows[j].name
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}

	out := make([]model.DailyTopProcess, len(rows))
	for i, r := range rows {
		out[i] = model.DailyTopProcess{
			Day:         day,
			Rank:        i + 1,
			Name:        r.name,
			CPUSeconds:  r.cpuSecs,
			EnergyScore: r.cpuSecs * coefficient,
		}
	}
	return out
}

// ResetDay clears the running accumulation after it has been persisted
// for the day that just ended.
func (c *Collector) ResetDay() {
	c.accum = make(map[string]float64)
}

// readProcStat parses /proc/[pid]/stat for comm, utime+stime.
func readProcStat(pid int) (comm string, ticks int64, err error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", 0, err
	}

	start := bytes.IndexByte(data, '(')
	end := bytes.LastIndexByte(data, ')')
	if start < 0 || end < 0 || end >= len(data)-1 {
		return "", 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	comm = string(data[start+1 : end])

	fields := strings.Fields(string(data[end+2:]))
	if len(fields) < 14 {
		return "", 0, fmt.Errorf("too few fields for pid %d", pid)
	}

	utime, _ := strconv.ParseInt(fields[11], 10, 64)
	stime, _ := strconv.ParseInt(fields[12], 10, 64)

	return comm, utime + stime, nil
}
