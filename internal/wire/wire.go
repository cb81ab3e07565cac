// Package wire holds the JSON shapes shared by the HTTP and WebSocket
// gateways. Timestamps are RFC 3339 with millisecond precision.
package wire

import (
	"time"

	"github.com/matheus3301/dmserver/internal/chat"
	"github.com/matheus3301/dmserver/internal/message"
	"github.com/matheus3301/dmserver/internal/store"
	"github.com/samber/lo"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// User is the public projection of a directory entry.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message is a persisted message with its sender.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Sender    User   `json:"sender"`
}

// Chat is a chat as seen by one participant.
type Chat struct {
	ID        string `json:"id"`
	OtherUser User   `json:"otherUser"`
	CreatedAt string `json:"createdAt"`
}

// LastMessage summarizes the newest message of a chat.
type LastMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Status    string `json:"status"`
	SenderID  string `json:"senderId"`
	CreatedAt string `json:"createdAt"`
}

// ChatSummary is one entry of the chat list.
type ChatSummary struct {
	ID          string       `json:"id"`
	OtherUser   User         `json:"otherUser"`
	LastMessage *LastMessage `json:"lastMessage"`
	CreatedAt   string       `json:"createdAt"`
}

// Page is one page of chat history.
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor"`
	HasMore    bool      `json:"hasMore"`
}

// StatusUpdate carries a message status change.
type StatusUpdate struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// Presence announces that a user came online or went offline.
type Presence struct {
	UserID string `json:"userId"`
}

// ErrorBody is the error shape of both gateways.
type ErrorBody struct {
	Message string `json:"message"`
}

// Timestamp formats unix milliseconds.
func Timestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(timeLayout)
}

// FromUser projects a directory entry.
func FromUser(u store.User) User {
	return User{ID: u.ID, Name: u.Name, Email: u.Email}
}

// FromMessage projects a message; the sender falls back to its ID.
func FromMessage(m store.Message) Message {
	sender := FromUser(m.Sender)
	if sender.ID == "" {
		sender.ID = m.SenderID
	}
	return Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Status:    m.Status,
		CreatedAt: Timestamp(m.CreatedAt),
		UpdatedAt: Timestamp(m.UpdatedAt),
		Sender:    sender,
	}
}

// FromView projects a chat as seen by one participant.
func FromView(v chat.View) Chat {
	return Chat{
		ID:        v.Chat.ID,
		OtherUser: FromUser(v.Other),
		CreatedAt: Timestamp(v.Chat.CreatedAt),
	}
}

// FromSummaries projects a chat list.
func FromSummaries(s []store.ChatSummary) []ChatSummary {
	return lo.Map(s, func(item store.ChatSummary, _ int) ChatSummary {
		out := ChatSummary{
			ID:        item.Chat.ID,
			OtherUser: FromUser(item.Other),
			CreatedAt: Timestamp(item.Chat.CreatedAt),
		}
		if lm := item.LastMessage; lm != nil {
			out.LastMessage = &LastMessage{
				ID:        lm.ID,
				Content:   lm.Content,
				Status:    lm.Status,
				SenderID:  lm.SenderID,
				CreatedAt: Timestamp(lm.CreatedAt),
			}
		}
		return out
	})
}

// FromPage projects one page of history.
func FromPage(p message.Page) Page {
	return Page{
		Messages: lo.Map(p.Messages, func(item store.Message, _ int) Message {
			return FromMessage(item)
		}),
		NextCursor: p.NextCursor,
		HasMore:    p.HasMore,
	}
}
