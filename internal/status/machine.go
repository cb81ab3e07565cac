package status

import (
	"context"
	"time"

	"github.com/matheus3301/dmserver/internal/apperr"
	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/metrics"
	"github.com/matheus3301/dmserver/internal/store"
	"go.uber.org/zap"
)

// DefaultRetries bounds compare-and-swap attempts when no value is configured.
const DefaultRetries = 3

// Store is the persistence the machine needs.
type Store interface {
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	CompareAndSwapStatus(ctx context.Context, id, from, to string) (bool, error)
}

// Publisher delivers an event to the live sessions of target.
type Publisher interface {
	Publish(evt bus.Event, target string) int
}

// Changed is the payload of a message.status_changed event.
type Changed struct {
	MessageID string
	Status    Status
}

// Machine advances message statuses on behalf of recipients.
type Machine struct {
	store   Store
	pub     Publisher
	retries int
	logger  *zap.Logger
}

// NewMachine creates a status machine. retries <= 0 selects DefaultRetries.
func NewMachine(s Store, pub Publisher, retries int, logger *zap.Logger) *Machine {
	if retries <= 0 {
		retries = DefaultRetries
	}
	return &Machine{
		store:   s,
		pub:     pub,
		retries: retries,
		logger:  logger.Named("status"),
	}
}

// Advance moves messageID to target on behalf of requesterID and notifies
// the sender. Concurrent writers are resolved by compare-and-swap: when the
// stored status changed underneath, the checks are re-run against the fresh
// row, and after the configured number of lost races ErrConflict is returned.
func (m *Machine) Advance(ctx context.Context, messageID, requesterID, target string) (*store.Message, error) {
	to, err := Parse(target)
	if err != nil {
		return nil, apperr.Validation("status must be delivered or read")
	}

	for attempt := 0; attempt < m.retries; attempt++ {
		msg, err := m.load(ctx, messageID, requesterID)
		if err != nil {
			return nil, err
		}
		if !Targetable(to) {
			return nil, apperr.ErrInvalidTransition
		}
		from := Status(msg.Status)
		if !CanTransition(from, to) {
			return nil, apperr.ErrInvalidTransition
		}

		ok, err := m.store.CompareAndSwapStatus(ctx, msg.ID, string(from), string(to))
		if err != nil {
			return nil, apperr.Internal("update status", err)
		}
		if !ok {
			metrics.StatusConflicts.Inc()
			m.logger.Debug("status swap lost race",
				zap.String("message_id", msg.ID),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
				zap.Int("attempt", attempt+1))
			continue
		}

		updated, err := m.store.GetMessage(ctx, msg.ID)
		if err != nil {
			return nil, apperr.Internal("reload message", err)
		}
		if updated == nil {
			return nil, apperr.ErrMessageNotFound
		}
		// A later transition may already have landed; the caller and the
		// sender are told about the one this call applied.
		updated.Status = string(to)
		m.pub.Publish(bus.Event{
			Kind:      bus.KindMessageStatusChanged,
			Timestamp: time.Now(),
			Payload:   Changed{MessageID: updated.ID, Status: to},
		}, updated.SenderID)
		return updated, nil
	}
	return nil, apperr.ErrConflict
}

// load fetches the message and enforces that requesterID is the recipient.
func (m *Machine) load(ctx context.Context, messageID, requesterID string) (*store.Message, error) {
	msg, err := m.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, apperr.Internal("load message", err)
	}
	if msg == nil {
		return nil, apperr.ErrMessageNotFound
	}
	chat, err := m.store.GetChat(ctx, msg.ChatID)
	if err != nil {
		return nil, apperr.Internal("load chat", err)
	}
	if chat == nil {
		return nil, apperr.ErrMessageNotFound
	}
	if !chat.HasParticipant(requesterID) {
		return nil, apperr.ErrForbidden
	}
	if msg.SenderID == requesterID {
		return nil, apperr.ErrSenderCannotAdvance
	}
	return msg, nil
}
