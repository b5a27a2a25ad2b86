package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"spacedub/internal/config"
	"spacedub/internal/daemon"
)

// ErrDaemonNotRunning indicates no daemon holds the instance lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Status describes the daemon as seen from outside the process.
type Status struct {
	Running  bool
	PID      int
	LockPath string
	PIDPath  string
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// ProcessInfo reports whether a daemon holds the lock for cfg's state
// directory, and its pid when the pid file is readable.
func ProcessInfo(cfg *config.Config) (Status, error) {
	if cfg == nil {
		return Status{}, errors.New("configuration not available")
	}
	status := Status{LockPath: cfg.LockPath(), PIDPath: cfg.PIDPath()}

	held, err := lockHeld(status.LockPath)
	if err != nil {
		return status, err
	}
	pid, pidErr := daemon.ReadPID(status.PIDPath)
	if pidErr == nil && daemon.ProcessAlive(pid) {
		status.PID = pid
	}
	status.Running = held
	return status, nil
}

// StopAndTerminate sends SIGTERM to the daemon and force-kills it if it is
// still alive after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	status, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !status.Running || status.PID == 0 {
		return StopResult{}, ErrDaemonNotRunning
	}
	if status.PID == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", status.PID)
	}

	result := StopResult{PID: status.PID}
	if err := unix.Kill(status.PID, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, nil
		}
		return result, fmt.Errorf("signal daemon process %d: %w", status.PID, err)
	}
	if waitForExit(status.PID, gracePeriod) {
		return result, nil
	}

	if err := unix.Kill(status.PID, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", status.PID, err)
	}
	if err := os.Remove(status.PIDPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", status.PIDPath, err)
	}
	result.ForcedKill = true
	return result, nil
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !daemon.ProcessAlive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func lockHeld(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
