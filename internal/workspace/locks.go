// Package workspace provides per-workspace mutual exclusion for
// long-running side effects such as search-index builds.
package workspace

import (
	"errors"
	"sync"

	"github.com/tandemcode/tandem/internal/logging"
)

// ErrBusy is returned when a workspace already has an operation in flight.
// Callers fail fast rather than queue.
var ErrBusy = errors.New("operation already in progress for this workspace")

// Locks is an injected, instance-scoped lock table: one exclusive slot per
// workspace path.
type Locks struct {
	mu   sync.Mutex
	held map[string]string // workspace -> operation name
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{held: make(map[string]string)}
}

// TryAcquire claims the workspace for an operation. On success the returned
// release function frees the slot; calling it more than once is harmless.
// If the workspace is already claimed, TryAcquire returns ErrBusy
// immediately.
func (l *Locks) TryAcquire(workspace, operation string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.held[workspace]; ok {
		log := logging.For("workspace")
		log.Debug().
			Str("workspace", workspace).Str("running", current).Str("requested", operation).
			Msg("workspace busy")
		return nil, ErrBusy
	}
	l.held[workspace] = operation

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, workspace)
			l.mu.Unlock()
		})
	}
	return release, nil
}

// Running reports the operation currently holding the workspace, if any.
func (l *Locks) Running(workspace string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	op, ok := l.held[workspace]
	return op, ok
}
