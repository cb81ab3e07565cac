package status

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/matheus3301/dmserver/internal/apperr"
	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/store"
	"go.uber.org/zap"
)

type published struct {
	evt    bus.Event
	target string
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(evt bus.Event, target string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{evt: evt, target: target})
	return 1
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.events...)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seed creates chat alice/bob with one message from alice.
func seed(t *testing.T, db *store.DB) *store.Message {
	t.Helper()
	ctx := context.Background()
	if err := db.InsertChat(ctx, &store.Chat{ID: "c1", LoUserID: "alice", HiUserID: "bob"}); err != nil {
		t.Fatal(err)
	}
	m, err := db.InsertMessage(ctx, "c1", "alice", "hello")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestAdvanceForwardOnly(t *testing.T) {
	db := testDB(t)
	msg := seed(t, db)
	rec := &recorder{}
	m := NewMachine(db, rec, 0, zap.NewNop())
	ctx := context.Background()

	got, err := m.Advance(ctx, msg.ID, "bob", "delivered")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "delivered" {
		t.Errorf("status = %q, want delivered", got.Status)
	}

	got, err = m.Advance(ctx, msg.ID, "bob", "read")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "read" {
		t.Errorf("status = %q, want read", got.Status)
	}

	for _, target := range []string{"delivered", "sent", "read"} {
		t.Run("from read to "+target, func(t *testing.T) {
			_, err := m.Advance(ctx, msg.ID, "bob", target)
			if !errors.Is(err, apperr.ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
		})
	}

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.target != "alice" {
			t.Errorf("event sent to %q, want alice", e.target)
		}
		if e.evt.Kind != bus.KindMessageStatusChanged {
			t.Errorf("kind = %q", e.evt.Kind)
		}
	}
	last := events[1].evt.Payload.(Changed)
	if last.MessageID != msg.ID || last.Status != Read {
		t.Errorf("payload = %+v", last)
	}
}

func TestAdvanceSkipToRead(t *testing.T) {
	db := testDB(t)
	msg := seed(t, db)
	m := NewMachine(db, &recorder{}, 0, zap.NewNop())

	got, err := m.Advance(context.Background(), msg.ID, "bob", "read")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "read" {
		t.Errorf("status = %q, want read", got.Status)
	}
}

func TestAdvanceRejections(t *testing.T) {
	db := testDB(t)
	msg := seed(t, db)
	rec := &recorder{}
	m := NewMachine(db, rec, 0, zap.NewNop())

	tests := []struct {
		name      string
		messageID string
		requester string
		target    string
		wantKind  apperr.Kind
		wantErr   error
	}{
		{"unparseable target", msg.ID, "bob", "seen", apperr.KindValidation, nil},
		{"unknown message", "nope", "bob", "read", apperr.KindNotFound, apperr.ErrMessageNotFound},
		{"non participant", msg.ID, "carol", "read", apperr.KindForbidden, apperr.ErrForbidden},
		{"sender advances own message", msg.ID, "alice", "delivered", apperr.KindInvalidTransition, apperr.ErrSenderCannotAdvance},
		{"back to sent", msg.ID, "bob", "sent", apperr.KindInvalidTransition, apperr.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Advance(context.Background(), tt.messageID, tt.requester, tt.target)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperr.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if n := len(rec.all()); n != 0 {
		t.Errorf("rejected transitions published %d events", n)
	}
	got, err := db.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "sent" {
		t.Errorf("status = %q, want sent", got.Status)
	}
}

func TestAdvanceConcurrentRecipients(t *testing.T) {
	db := testDB(t)
	msg := seed(t, db)
	rec := &recorder{}
	m := NewMachine(db, rec, 0, zap.NewNop())

	var wg sync.WaitGroup
	var okCount atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Advance(context.Background(), msg.ID, "bob", "delivered"); err == nil {
				okCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if okCount.Load() != 1 {
		t.Errorf("%d concurrent advances succeeded, want 1", okCount.Load())
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("published %d events, want 1", n)
	}
}

// racingStore reports a lost swap every time.
type racingStore struct {
	msg   store.Message
	chat  store.Chat
	swaps atomic.Int32
}

func (s *racingStore) GetMessage(_ context.Context, _ string) (*store.Message, error) {
	m := s.msg
	return &m, nil
}

func (s *racingStore) GetChat(_ context.Context, _ string) (*store.Chat, error) {
	c := s.chat
	return &c, nil
}

func (s *racingStore) CompareAndSwapStatus(_ context.Context, _, _, _ string) (bool, error) {
	s.swaps.Add(1)
	return false, nil
}

func TestAdvanceConflictAfterRetries(t *testing.T) {
	s := &racingStore{
		msg:  store.Message{ID: "m1", ChatID: "c1", SenderID: "alice", Status: "sent"},
		chat: store.Chat{ID: "c1", LoUserID: "alice", HiUserID: "bob"},
	}
	rec := &recorder{}
	m := NewMachine(s, rec, 5, zap.NewNop())

	_, err := m.Advance(context.Background(), "m1", "bob", "read")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if got := s.swaps.Load(); got != 5 {
		t.Errorf("swap attempts = %d, want 5", got)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("published %d events on conflict", n)
	}
}

// overtakingStore lets a concurrent delivered->read land right after each
// successful sent->delivered swap.
type overtakingStore struct {
	*store.DB
}

func (s overtakingStore) CompareAndSwapStatus(ctx context.Context, id, from, to string) (bool, error) {
	ok, err := s.DB.CompareAndSwapStatus(ctx, id, from, to)
	if ok && to == string(Delivered) {
		if _, err := s.DB.CompareAndSwapStatus(ctx, id, to, string(Read)); err != nil {
			return false, err
		}
	}
	return ok, err
}

func TestAdvanceReportsAppliedTransition(t *testing.T) {
	db := testDB(t)
	msg := seed(t, db)
	rec := &recorder{}
	m := NewMachine(overtakingStore{db}, rec, 0, zap.NewNop())

	got, err := m.Advance(context.Background(), msg.ID, "bob", "delivered")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "delivered" {
		t.Errorf("returned status = %q, want delivered", got.Status)
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	change, ok := events[0].evt.Payload.(Changed)
	if !ok {
		t.Fatalf("payload type = %T, want Changed", events[0].evt.Payload)
	}
	if change.Status != Delivered {
		t.Errorf("published status = %q, want delivered", change.Status)
	}

	stored, err := db.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != "read" {
		t.Errorf("stored status = %q, want read", stored.Status)
	}
}

func TestAdvanceInvalidTargetMessage(t *testing.T) {
	db := testDB(t)
	msg := seed(t, db)
	m := NewMachine(db, &recorder{}, 0, zap.NewNop())

	_, err := m.Advance(context.Background(), msg.ID, "bob", "seen")
	if got := apperr.Message(err); got != "status must be delivered or read" {
		t.Errorf("message = %q, want %q", got, "status must be delivered or read")
	}
}
