package ws

import (
	"encoding/json"

	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/router"
	"github.com/matheus3301/dmserver/internal/status"
	"github.com/matheus3301/dmserver/internal/store"
	"github.com/matheus3301/dmserver/internal/wire"
)

// Wire event names.
const (
	EventSendMessage         = "send_message"
	EventMessageStatusUpdate = "message_status_update"
	EventReceiveMessage      = "receive_message"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventMessageError        = "message_error"
)

// Envelope is a single WebSocket frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type sendMessageData struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type statusUpdateData struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// errorPayload is the payload of a message.error event.
type errorPayload struct {
	Message string
}

// encode maps a routed event onto its wire frame. Unknown kinds or payloads
// report false and are not written.
func encode(evt bus.Event) (outbound, bool) {
	switch evt.Kind {
	case bus.KindMessageCreated:
		if m, ok := evt.Payload.(store.Message); ok {
			return outbound{Event: EventReceiveMessage, Data: wire.FromMessage(m)}, true
		}
	case bus.KindMessageStatusChanged:
		if c, ok := evt.Payload.(status.Changed); ok {
			return outbound{Event: EventMessageStatusUpdate, Data: wire.StatusUpdate{MessageID: c.MessageID, Status: string(c.Status)}}, true
		}
	case bus.KindPresenceOnline:
		if p, ok := evt.Payload.(router.PresenceChange); ok {
			return outbound{Event: EventUserOnline, Data: wire.Presence{UserID: p.UserID}}, true
		}
	case bus.KindPresenceOffline:
		if p, ok := evt.Payload.(router.PresenceChange); ok {
			return outbound{Event: EventUserOffline, Data: wire.Presence{UserID: p.UserID}}, true
		}
	case bus.KindMessageError:
		if e, ok := evt.Payload.(errorPayload); ok {
			return outbound{Event: EventMessageError, Data: wire.ErrorBody{Message: e.Message}}, true
		}
	}
	return outbound{}, false
}
