package pipeline

import (
	"os"

	"github.com/gofrs/flock"

	"dubsync/internal/services"
)

type outputLock struct {
	lock *flock.Flock
}

// acquireOutputLock takes a non-blocking exclusive lock on <output>.lock so
// two runs cannot write the same output.
func acquireOutputLock(output string) (*outputLock, error) {
	lock := flock.New(output + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrOutputLocked, "lock", "acquire", lock.Path(), err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrOutputLocked, "lock", "acquire", output+" is being written by another run", nil)
	}
	return &outputLock{lock: lock}, nil
}

func (l *outputLock) release() {
	if l == nil || l.lock == nil {
		return
	}
	_ = os.Remove(l.lock.Path())
	_ = l.lock.Unlock()
}
