// Package router fans domain events out to the live sessions of their
// target user.
package router

import (
	"hash/maphash"
	"sync"
	"time"

	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/metrics"
	"github.com/matheus3301/dmserver/internal/presence"
	"go.uber.org/zap"
)

// PresenceChange is the payload of presence.online and presence.offline.
type PresenceChange struct {
	UserID string
}

const presenceStripes = 64

// Router delivers events to sessions registered in a presence registry and
// mirrors every published event onto the bus.
type Router struct {
	registry *presence.Registry
	bus      *bus.Bus
	logger   *zap.Logger

	// A user's presence transition and its broadcast happen under the
	// user's stripe, so observers see online/offline in transition order.
	// broadcast never takes a stripe.
	seed    maphash.Seed
	stripes [presenceStripes]sync.Mutex
}

// New creates a router.
func New(registry *presence.Registry, b *bus.Bus, logger *zap.Logger) *Router {
	return &Router{
		registry: registry,
		bus:      b,
		logger:   logger.Named("router"),
		seed:     maphash.MakeSeed(),
	}
}

func (r *Router) stripe(userID string) *sync.Mutex {
	return &r.stripes[maphash.String(r.seed, userID)%presenceStripes]
}

// Publish delivers evt to every live session of target and returns how many
// accepted it. It never blocks: a session with a full buffer misses the event.
func (r *Router) Publish(evt bus.Event, target string) int {
	evt.Target = target
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	delivered := 0
	for _, s := range r.registry.Sessions(target) {
		if s.Send(evt) {
			delivered++
			continue
		}
		metrics.EventsDropped.Inc()
		r.logger.Warn("session buffer full, event dropped",
			zap.String("kind", evt.Kind),
			zap.String("user_id", target),
			zap.String("session_id", s.ID()))
	}

	if r.bus != nil {
		r.bus.Publish(evt)
	}
	return delivered
}

// Attach registers a live session. When it is the user's first session,
// every other online user is told the user came online.
// Each session must be attached at most once.
func (r *Router) Attach(s presence.Session) {
	metrics.LiveSessions.Inc()
	mu := r.stripe(s.UserID())
	mu.Lock()
	defer mu.Unlock()
	if !r.registry.Connect(s) {
		return
	}
	metrics.OnlineUsers.Inc()
	r.logger.Debug("user online", zap.String("user_id", s.UserID()))
	r.broadcast(bus.KindPresenceOnline, s.UserID())
}

// Detach unregisters a session. When it was the user's last session, every
// other online user is told the user went offline.
func (r *Router) Detach(s presence.Session) {
	metrics.LiveSessions.Dec()
	mu := r.stripe(s.UserID())
	mu.Lock()
	defer mu.Unlock()
	if !r.registry.Disconnect(s) {
		return
	}
	metrics.OnlineUsers.Dec()
	r.logger.Debug("user offline", zap.String("user_id", s.UserID()))
	r.broadcast(bus.KindPresenceOffline, s.UserID())
}

// Online reports whether userID has at least one live session.
func (r *Router) Online(userID string) bool {
	return r.registry.Count(userID) > 0
}

func (r *Router) broadcast(kind, userID string) {
	evt := bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   PresenceChange{UserID: userID},
	}
	for _, other := range r.registry.Online() {
		if other == userID {
			continue
		}
		r.Publish(evt, other)
	}
}
