package router

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/presence"
	"go.uber.org/zap"
)

type fakeSession struct {
	id, user string
	capacity int

	mu     sync.Mutex
	events []bus.Event
}

func newSession(id, user string) *fakeSession {
	return &fakeSession{id: id, user: user, capacity: 100}
}

func (s *fakeSession) ID() string     { return s.id }
func (s *fakeSession) UserID() string { return s.user }

func (s *fakeSession) Send(evt bus.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= s.capacity {
		return false
	}
	s.events = append(s.events, evt)
	return true
}

func (s *fakeSession) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func (s *fakeSession) count(kind string) int {
	n := 0
	for _, k := range s.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func newRouter() *Router {
	return New(presence.NewRegistry(), bus.New(), zap.NewNop())
}

func TestPublishFansOutToAllSessions(t *testing.T) {
	r := newRouter()
	b1, b2 := newSession("b1", "bob"), newSession("b2", "bob")
	r.Attach(b1)
	r.Attach(b2)

	n := r.Publish(bus.Event{Kind: bus.KindMessageCreated}, "bob")
	if n != 2 {
		t.Errorf("delivered = %d, want 2", n)
	}
	for _, s := range []*fakeSession{b1, b2} {
		if s.count(bus.KindMessageCreated) != 1 {
			t.Errorf("session %s kinds = %v", s.id, s.kinds())
		}
	}
}

func TestPublishToOfflineUser(t *testing.T) {
	r := newRouter()
	if n := r.Publish(bus.Event{Kind: bus.KindMessageCreated}, "nobody"); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
}

func TestPublishSkipsFullSession(t *testing.T) {
	r := newRouter()
	full := newSession("b1", "bob")
	full.capacity = 0
	ok := newSession("b2", "bob")
	r.Attach(full)
	r.Attach(ok)

	if n := r.Publish(bus.Event{Kind: bus.KindMessageCreated}, "bob"); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
}

func TestPublishMirrorsOntoBus(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()
	r := New(presence.NewRegistry(), b, zap.NewNop())

	r.Publish(bus.Event{Kind: bus.KindMessageStatusChanged}, "alice")

	select {
	case evt := <-ch:
		if evt.Target != "alice" {
			t.Errorf("target = %q, want alice", evt.Target)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("event not mirrored onto bus")
	}
}

// TestMultiSessionPresence opens two sessions for alice while bob watches:
// bob sees one online event, nothing when the first session closes, and one
// offline event when the second closes.
func TestMultiSessionPresence(t *testing.T) {
	r := newRouter()
	bob := newSession("b1", "bob")
	r.Attach(bob)

	a1, a2 := newSession("a1", "alice"), newSession("a2", "alice")
	r.Attach(a1)
	r.Attach(a2)
	if got := bob.count(bus.KindPresenceOnline); got != 1 {
		t.Fatalf("bob saw %d online events, want 1", got)
	}

	r.Detach(a1)
	if got := bob.count(bus.KindPresenceOffline); got != 0 {
		t.Fatalf("bob saw %d offline events after first close, want 0", got)
	}
	if !r.Online("alice") {
		t.Error("alice should still be online")
	}

	r.Detach(a2)
	if got := bob.count(bus.KindPresenceOffline); got != 1 {
		t.Errorf("bob saw %d offline events, want 1", got)
	}
	if r.Online("alice") {
		t.Error("alice should be offline")
	}

	for _, s := range []*fakeSession{a1, a2} {
		if n := s.count(bus.KindPresenceOnline) + s.count(bus.KindPresenceOffline); n != 0 {
			t.Errorf("alice session %s saw her own presence: %v", s.id, s.kinds())
		}
	}
}

func TestPresencePayload(t *testing.T) {
	r := newRouter()
	bob := newSession("b1", "bob")
	r.Attach(bob)
	r.Attach(newSession("a1", "alice"))

	bob.mu.Lock()
	evt := bob.events[0]
	bob.mu.Unlock()
	change, ok := evt.Payload.(PresenceChange)
	if !ok {
		t.Fatalf("payload type = %T, want PresenceChange", evt.Payload)
	}
	if change.UserID != "alice" {
		t.Errorf("user = %q, want alice", change.UserID)
	}
}

// TestPresenceChurnEndsConsistent replaces alice's only session many times
// with the close and the open racing each other. Whatever the interleaving,
// the last presence event bob received must agree with Online("alice").
func TestPresenceChurnEndsConsistent(t *testing.T) {
	for round := 0; round < 200; round++ {
		r := newRouter()
		bob := newSession("b1", "bob")
		bob.capacity = 1000
		r.Attach(bob)

		prev := newSession("a0", "alice")
		r.Attach(prev)
		for i := 1; i <= 5; i++ {
			next := newSession(fmt.Sprintf("a%d", i), "alice")
			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); r.Detach(prev) }()
			go func() { defer wg.Done(); r.Attach(next) }()
			wg.Wait()
			prev = next
		}

		last := ""
		for _, k := range bob.kinds() {
			if k == bus.KindPresenceOnline || k == bus.KindPresenceOffline {
				last = k
			}
		}
		want := bus.KindPresenceOffline
		if r.Online("alice") {
			want = bus.KindPresenceOnline
		}
		if last != want {
			t.Fatalf("round %d: last presence event = %q, Online(alice) = %v; events %v",
				round, last, r.Online("alice"), bob.kinds())
		}
	}
}
