// Package maintenance runs the periodic graph upkeep pipeline and the
// cross-process lock that keeps two instances of it from interleaving.
package maintenance

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	// StaleLockAge is the hard ceiling on lock age. Past it the lock is
	// reclaimable even if the holder still looks alive, bounding the
	// damage of a wedged holder.
	StaleLockAge = 30 * time.Second

	lockRetries      = 5
	lockRetryBackoff = 100 * time.Millisecond
)

// lockInfo is what gets written into the lock file
type lockInfo struct {
	PID        int       `json:"pid"`
	Token      string    `json:"token"`
	Operation  string    `json:"operation"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a held file-based mutual-exclusion lock. Release it on every
// exit path.
type Lock struct {
	path   string
	token  string
	logger zerolog.Logger
}

// AcquireLock takes the lock at path for the named operation, retrying
// with backoff while a live holder has it. A lock whose holder is dead,
// or whose age exceeds StaleLockAge, is reclaimed.
func AcquireLock(path, operation string, logger zerolog.Logger) (*Lock, error) {
	log := logger.With().Str("component", "lock").Str("path", path).Logger()

	token, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}

	info := lockInfo{
		PID:       os.Getpid(),
		Token:     token,
		Operation: operation,
	}

	backoff := lockRetryBackoff
	for attempt := 0; attempt < lockRetries; attempt++ {
		info.AcquiredAt = time.Now()
		if err := writeLockFile(path, info); err == nil {
			return &Lock{path: path, token: token, logger: log}, nil
		} else if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("write lock file: %w", err)
		}

		holder, readErr := readLockFile(path)
		if readErr != nil {
			// Unreadable or vanished between our attempts; treat as stale
			os.Remove(path)
			continue
		}
		if isStale(holder) {
			log.Warn().Int("holder_pid", holder.PID).Str("operation", holder.Operation).
				Msg("reclaiming stale lock")
			os.Remove(path)
			continue
		}

		if attempt < lockRetries-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	holder, readErr := readLockFile(path)
	if readErr == nil {
		return nil, fmt.Errorf("lock held by pid %d (%s)", holder.PID, holder.Operation)
	}
	return nil, fmt.Errorf("could not acquire lock at %s", path)
}

// Release removes the lock file if this Lock still owns it. Safe to call
// more than once.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	holder, err := readLockFile(l.path)
	if err != nil {
		return
	}
	if holder.Token != l.token {
		l.logger.Warn().Int("holder_pid", holder.PID).Msg("lock was taken over, not releasing")
		return
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn().Err(err).Msg("failed to remove lock file")
	}
}

func writeLockFile(path string, info lockInfo) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(info)
}

func readLockFile(path string) (*lockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func isStale(info *lockInfo) bool {
	if time.Since(info.AcquiredAt) > StaleLockAge {
		return true
	}
	return !processAlive(info.PID)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user
	return errors.Is(err, syscall.EPERM)
}
