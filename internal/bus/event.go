package bus

import "time"

// Event kinds routed to user sessions and mirrored on the bus.
const (
	KindMessageCreated       = "message.created"
	KindMessageStatusChanged = "message.status_changed"
	KindMessageError         = "message.error"
	KindPresenceOnline       = "presence.online"
	KindPresenceOffline      = "presence.offline"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	// Target is the user the event is addressed to. Empty for broadcast.
	Target  string
	Payload any
}
