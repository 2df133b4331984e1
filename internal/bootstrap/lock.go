package bootstrap

import (
	"errors"
	"fmt"

	"github.com/danjacques/gofslock/fslock"

	"github.com/splax/swapdeploy/pkg/deployerr"
)

// LockName is the run lock created inside the deploy path.
const LockName = ".swapdeploy.lock"

type runLock struct {
	handle fslock.Handle
}

// acquireLock takes the exclusive run lock without blocking. The lock is
// held by the open file, so the OS drops it when the process dies and a
// leftover lock file never blocks a later run.
func acquireLock(path string) (*runLock, error) {
	handle, err := fslock.Lock(path)
	switch {
	case errors.Is(err, fslock.ErrLockHeld):
		return nil, deployerr.ConcurrentRun("another deployment is in progress")
	case err != nil:
		return nil, deployerr.IO("could not take run lock", err)
	}
	return &runLock{handle: handle}, nil
}

func (l *runLock) release() error {
	if l == nil || l.handle == nil {
		return nil
	}
	if err := l.handle.Unlock(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	l.handle = nil
	return nil
}
