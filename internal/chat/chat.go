// Package chat resolves the single conversation shared by two users and
// guards access to it.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/dmserver/internal/apperr"
	"github.com/matheus3301/dmserver/internal/store"
	"go.uber.org/zap"
)

// Store is the persistence the resolver needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	InsertChat(ctx context.Context, c *store.Chat) error
	FindChatByPair(ctx context.Context, lo, hi string) (*store.Chat, error)
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]store.ChatSummary, error)
}

// View is a chat as seen by one participant.
type View struct {
	Chat    store.Chat
	Other   store.User
	Created bool
}

// CanonicalPair orders two user IDs byte-lexicographically.
func CanonicalPair(a, b string) (lo, hi string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Authorize reports whether userID participates in c.
func Authorize(c *store.Chat, userID string) bool {
	return c != nil && c.HasParticipant(userID)
}

// Resolver maps user pairs to their chat.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(s Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: s, logger: logger.Named("chat")}
}

// Resolve returns the chat between caller and other, creating it when it
// does not exist yet. Concurrent calls for the same pair converge on one
// chat: the loser of the insert race re-reads the winner's row.
func (r *Resolver) Resolve(ctx context.Context, caller, other string) (*View, error) {
	if other == "" {
		return nil, apperr.Validation("userId is required")
	}
	if caller == other {
		return nil, apperr.ErrSelfChat
	}

	otherUser, err := r.store.GetUser(ctx, other)
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if otherUser == nil {
		return nil, apperr.ErrUserNotFound
	}

	lo, hi := CanonicalPair(caller, other)
	existing, err := r.store.FindChatByPair(ctx, lo, hi)
	if err != nil {
		return nil, apperr.Internal("find chat", err)
	}
	if existing != nil {
		return &View{Chat: *existing, Other: *otherUser}, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Internal("chat id", err)
	}
	c := &store.Chat{ID: id.String(), LoUserID: lo, HiUserID: hi}
	err = r.store.InsertChat(ctx, c)
	if errors.Is(err, store.ErrDuplicate) {
		winner, err := r.store.FindChatByPair(ctx, lo, hi)
		if err != nil {
			return nil, apperr.Internal("find chat", err)
		}
		if winner == nil {
			return nil, apperr.Internal("find chat", fmt.Errorf("pair %s/%s vanished after duplicate insert", lo, hi))
		}
		return &View{Chat: *winner, Other: *otherUser}, nil
	}
	if err != nil {
		return nil, apperr.Internal("create chat", err)
	}

	r.logger.Debug("chat created", zap.String("chat_id", c.ID), zap.String("lo", lo), zap.String("hi", hi))
	return &View{Chat: *c, Other: *otherUser, Created: true}, nil
}

// Authorized loads chatID and checks that userID participates in it. A
// missing chat and a foreign chat are indistinguishable to the caller.
func (r *Resolver) Authorized(ctx context.Context, chatID, userID string) (*store.Chat, error) {
	c, err := r.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, apperr.Internal("load chat", err)
	}
	if !Authorize(c, userID) {
		return nil, apperr.ErrChatNotFound
	}
	return c, nil
}

// Get returns chatID as seen by caller.
func (r *Resolver) Get(ctx context.Context, chatID, caller string) (*View, error) {
	c, err := r.Authorized(ctx, chatID, caller)
	if err != nil {
		return nil, err
	}
	otherID := c.Other(caller)
	other, err := r.store.GetUser(ctx, otherID)
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if other == nil {
		other = &store.User{ID: otherID}
	}
	return &View{Chat: *c, Other: *other}, nil
}

// List returns the chats of caller, newest first.
func (r *Resolver) List(ctx context.Context, caller string) ([]store.ChatSummary, error) {
	chats, err := r.store.ListChatsForUser(ctx, caller)
	if err != nil {
		return nil, apperr.Internal("list chats", err)
	}
	return chats, nil
}
