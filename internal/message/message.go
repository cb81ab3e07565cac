// Package message creates chat messages and pages through chat history.
package message

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/dmserver/internal/apperr"
	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/store"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	DefaultLimit     = 50
	MaxLimit         = 100
	MaxContentLength = 4096
)

var validate = validator.New()

// Store is the persistence the service needs.
type Store interface {
	InsertMessage(ctx context.Context, chatID, senderID, content string) (*store.Message, error)
	CursorOf(ctx context.Context, chatID, messageID string) (*store.Cursor, error)
	ListMessages(ctx context.Context, chatID string, before *store.Cursor, limit int) ([]store.Message, error)
}

// Authorizer resolves a chat for one of its participants.
type Authorizer interface {
	Authorized(ctx context.Context, chatID, userID string) (*store.Chat, error)
}

// Publisher delivers an event to the live sessions of target.
type Publisher interface {
	Publish(evt bus.Event, target string) int
}

// Page is one backward step through a chat's history, in chronological order.
type Page struct {
	Messages   []store.Message
	NextCursor *string
	HasMore    bool
}

type createRequest struct {
	ChatID  string `validate:"required"`
	Content string `validate:"required,max=4096"`
}

// Service implements message creation and history listing.
type Service struct {
	store  Store
	chats  Authorizer
	pub    Publisher
	logger *zap.Logger
}

// NewService creates a message service.
func NewService(s Store, chats Authorizer, pub Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:  s,
		chats:  chats,
		pub:    pub,
		logger: logger.Named("message"),
	}
}

// ClampLimit normalizes a requested page size: 0 selects DefaultLimit and
// anything else is clamped to [1, MaxLimit].
func ClampLimit(n int) int {
	if n == 0 {
		return DefaultLimit
	}
	return lo.Clamp(n, 1, MaxLimit)
}

// Create stores a message from senderID and pushes it to the other
// participant's live sessions.
func (s *Service) Create(ctx context.Context, chatID, senderID, content string) (*store.Message, error) {
	if err := validate.Struct(createRequest{ChatID: chatID, Content: content}); err != nil {
		return nil, apperr.Validation("chatId and content are required, content at most 4096 characters")
	}

	c, err := s.chats.Authorized(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.InsertMessage(ctx, c.ID, senderID, content)
	if err != nil {
		return nil, apperr.Internal("create message", err)
	}

	recipient := c.Other(senderID)
	n := s.pub.Publish(bus.Event{
		Kind:      bus.KindMessageCreated,
		Timestamp: time.Now(),
		Payload:   *msg,
	}, recipient)
	s.logger.Debug("message created",
		zap.String("message_id", msg.ID),
		zap.String("chat_id", c.ID),
		zap.Int("live_sessions", n))
	return msg, nil
}

// List returns up to limit messages older than cursor (a message ID in the
// same chat, exclusive), or the newest messages when cursor is empty.
func (s *Service) List(ctx context.Context, chatID, requesterID string, limit int, cursor string) (*Page, error) {
	c, err := s.chats.Authorized(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	var before *store.Cursor
	if cursor != "" {
		before, err = s.store.CursorOf(ctx, c.ID, cursor)
		if err != nil {
			return nil, apperr.Internal("resolve cursor", err)
		}
		if before == nil {
			return nil, apperr.ErrInvalidCursor
		}
	}

	rows, err := s.store.ListMessages(ctx, c.ID, before, limit+1)
	if err != nil {
		return nil, apperr.Internal("list messages", err)
	}

	page := &Page{Messages: rows}
	if len(rows) > limit {
		page.Messages = rows[:limit]
		page.HasMore = true
		next := page.Messages[limit-1].ID
		page.NextCursor = &next
	}
	page.Messages = lo.Reverse(page.Messages)
	if page.Messages == nil {
		page.Messages = []store.Message{}
	}
	return page, nil
}
