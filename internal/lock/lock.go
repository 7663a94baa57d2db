// Package lock keeps two pipeline runs from overlapping.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("lock is held by another run")

// Local guards runs within one process.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

// Acquire takes name or fails with ErrLocked.
func (l *Local) Acquire(_ context.Context, name string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, ErrLocked
	}
	l.held[name] = true
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
