package store

// User is the cached directory entry of an external identity.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt int64
}

// Chat is a two-party conversation. LoUserID < HiUserID always holds.
type Chat struct {
	ID        string
	LoUserID  string
	HiUserID  string
	CreatedAt int64
}

// Other returns the participant that is not userID.
func (c *Chat) Other(userID string) string {
	if c.LoUserID == userID {
		return c.HiUserID
	}
	return c.LoUserID
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Chat) HasParticipant(userID string) bool {
	return userID != "" && (c.LoUserID == userID || c.HiUserID == userID)
}

// Message is a persisted chat message. Sender is populated from the
// directory and may hold only the ID when the user is unknown there.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Sender    User
	Content   string
	Status    string
	CreatedAt int64
	UpdatedAt int64
}

// Cursor is the keyset position of a message inside its chat.
type Cursor struct {
	CreatedAt int64
	ID        string
}

// LastMessage summarizes the newest message of a chat.
type LastMessage struct {
	ID        string
	Content   string
	Status    string
	SenderID  string
	CreatedAt int64
}

// ChatSummary is a chat as listed for one participant.
type ChatSummary struct {
	Chat        Chat
	Other       User
	LastMessage *LastMessage
}
