package util

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// CancelConfig configures a scan worker's cancellation grace period:
// SIGTERM, then SIGKILL after the grace period elapses.
type CancelConfig struct {
	GracePeriod  time.Duration // default: 5s
	PollInterval time.Duration // default: 50ms
}

// StartDetachedProcess launches executable as a detached background
// process in its own session, so it keeps running if the parent (the
// Scheduler) exits or is itself killed.
func StartDetachedProcess(executable string, args []string, env []string, extraFiles ...*os.File) (*os.Process, error) {
	cmd := exec.Command(executable, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.ExtraFiles = extraFiles
	if env != nil {
		cmd.Env = env
	} else {
		cmd.Env = os.Environ()
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting scan worker: %w", err)
	}

	return cmd.Process, nil
}

// CancelProcess signals pid with SIGTERM, waits up to GracePeriod for
// it to exit, then escalates to SIGKILL. Used by the Scheduler to
// implement running -> cancelled.
func CancelProcess(pid int, cfg CancelConfig, isRunning func() bool) error {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 5 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}

	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Signal(syscall.SIGTERM)
	}

	deadline := time.Now().Add(cfg.GracePeriod)
	for time.Now().Before(deadline) {
		if !isRunning() {
			return nil
		}
		time.Sleep(cfg.PollInterval)
	}

	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Signal(syscall.SIGKILL)
	}

	time.Sleep(200 * time.Millisecond)
	if isRunning() {
		return fmt.Errorf("scan worker (pid %d) did not stop after SIGKILL", pid)
	}
	return nil
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// GetExecutablePath returns the path to the current executable, used
// by the Scheduler to re-exec itself as a scan worker.
func GetExecutablePath() (string, error) {
	return os.Executable()
}
