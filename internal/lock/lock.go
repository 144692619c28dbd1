// Package lock serializes the check-then-create step of an export so two
// workers never create two remote objects for the same mapping key.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotObtained is returned when a lock could not be taken before the context ended
var ErrNotObtained = errors.New("lock not obtained")

// Locker hands out named mutual-exclusion locks
type Locker interface {
	// Acquire blocks until the named lock is held or ctx is done.
	// The returned release func must be called exactly once.
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// Local is an in-process Locker, enough for a single bridge instance
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process Locker
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

// Acquire implements Locker
func (l *Local) Acquire(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[name]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[name] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(name, e)
		return nil, errors.Join(ErrNotObtained, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(name, e)
		})
	}, nil
}

func (l *Local) unref(name string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, name)
	}
}
