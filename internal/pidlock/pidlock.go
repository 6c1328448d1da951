// Package pidlock manages the daemon's PID file, guarded by an advisory
// flock so a second daemon instance refuses to start against the same
// data directory instead of racing the first for the database (spec §6).
package pidlock

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by Acquire when another process already
// holds the lock.
var ErrAlreadyRunning = fmt.Errorf("another jolt daemon is already running")

// Lock holds an open, flock'd PID file for the life of the daemon.
type Lock struct {
	file *os.File
	path string
}

// Acquire opens (creating if needed) the PID file at path, takes a
// non-blocking exclusive flock on it, and writes the caller's PID.
// If another process holds the lock, it returns ErrAlreadyRunning
// wrapping the PID found in the file, if any.
func Acquire(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readPID(file)
		_ = file.Close()
		if holder > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, holder)
		}
		return nil, ErrAlreadyRunning
	}

	if err := file.Truncate(0); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &Lock{file: file, path: path}, nil
}

// Release unlocks and removes the PID file. Safe to call once; the
// daemon should defer it immediately after a successful Acquire.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	removeErr := os.Remove(l.path)
	l.file = nil
	if closeErr != nil {
		return closeErr
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return removeErr
	}
	return nil
}

// ReadRunningPID returns the PID recorded at path without taking the
// lock, for the CLI's "daemon status" subcommand. It returns 0 if the
// file is absent, empty, or does not hold a live process.
func ReadRunningPID(path string) int {
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	pid := readPID(file)
	if pid <= 0 {
		return 0
	}
	if err := unix.Kill(pid, 0); err != nil {
		return 0
	}
	return pid
}

func readPID(file *os.File) int {
	buf := make([]byte, 32)
	n, err := file.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
