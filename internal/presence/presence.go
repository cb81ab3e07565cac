// Package presence tracks which users have live sessions.
package presence

import (
	"sync"

	"github.com/matheus3301/dmserver/internal/bus"
)

// Session is one live connection of a user.
type Session interface {
	ID() string
	UserID() string
	// Send queues evt for delivery without blocking. It reports false when
	// the session could not accept the event.
	Send(evt bus.Event) bool
}

type entry struct {
	mu       sync.Mutex
	sessions map[string]Session
	dead     bool
}

// Registry maps users to their live sessions. Each user entry has its own
// lock; there is no registry-wide lock on the hot path.
type Registry struct {
	users sync.Map // userID -> *entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Connect registers s and reports whether it is the user's first session.
// Registering the same session twice is a no-op.
func (r *Registry) Connect(s Session) (first bool) {
	for {
		v, _ := r.users.LoadOrStore(s.UserID(), &entry{sessions: make(map[string]Session)})
		e := v.(*entry)

		e.mu.Lock()
		if e.dead {
			// Retired by a concurrent Disconnect; retry with a fresh entry.
			e.mu.Unlock()
			continue
		}
		if _, ok := e.sessions[s.ID()]; ok {
			e.mu.Unlock()
			return false
		}
		e.sessions[s.ID()] = s
		first = len(e.sessions) == 1
		e.mu.Unlock()
		return first
	}
}

// Disconnect unregisters s and reports whether it was the user's last session.
func (r *Registry) Disconnect(s Session) (last bool) {
	v, ok := r.users.Load(s.UserID())
	if !ok {
		return false
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return false
	}
	if _, ok := e.sessions[s.ID()]; !ok {
		return false
	}
	delete(e.sessions, s.ID())
	if len(e.sessions) > 0 {
		return false
	}
	e.dead = true
	r.users.CompareAndDelete(s.UserID(), e)
	return true
}

// Sessions returns a snapshot of the live sessions of userID.
func (r *Registry) Sessions(userID string) []Session {
	v, ok := r.users.Load(userID)
	if !ok {
		return nil
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return nil
	}
	out := make([]Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions of userID.
func (r *Registry) Count(userID string) int {
	v, ok := r.users.Load(userID)
	if !ok {
		return 0
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return 0
	}
	return len(e.sessions)
}

// Online returns the users that currently have at least one session.
func (r *Registry) Online() []string {
	var out []string
	r.users.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		alive := !e.dead && len(e.sessions) > 0
		e.mu.Unlock()
		if alive {
			out = append(out, k.(string))
		}
		return true
	})
	return out
}
