package engine

import (
	"sync"

	"github.com/mcoot/relsync/internal/model"
)

// Self returns a copy of the current self profile
func (e *Engine) Self() *model.SelfProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.self.Clone()
}

// Snapshot returns a copy of the committed state
func (e *Engine) Snapshot() model.StateSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Initialized reports whether Init has completed
func (e *Engine) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Authenticated reports whether a remote session is established
func (e *Engine) Authenticated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.authenticated
}

// Subscribe returns a channel that always holds the latest committed
// state. A slow reader skips intermediate states but never sees a partial
// one. The returned func stops delivery and closes the channel.
func (e *Engine) Subscribe() (<-chan model.StateSnapshot, func()) {
	ch := make(chan model.StateSnapshot, 1)

	e.mu.Lock()
	id := e.nextObserver
	e.nextObserver++
	e.observers[id] = ch
	ch <- e.snapshotLocked()
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.observers, id)
			close(ch)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) snapshotLocked() model.StateSnapshot {
	snap := model.StateSnapshot{
		Self:          e.self.Clone(),
		Initialized:   e.initialized,
		Authenticated: e.authenticated,
		Version:       e.version,
	}
	if e.lastReconciled != nil {
		t := *e.lastReconciled
		snap.LastReconciledAt = &t
	}
	return snap
}

// commitLocked publishes the current state to observers. mu must be held
// for writing.
func (e *Engine) commitLocked() {
	e.version++
	if len(e.observers) == 0 {
		return
	}
	snap := e.snapshotLocked()
	for _, ch := range e.observers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
