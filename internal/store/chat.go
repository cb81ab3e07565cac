package store

import (
	"context"
	"database/sql"
	"fmt"
)

const chatColumns = `id, lo_user_id, hi_user_id, created_at`

// InsertChat creates a chat. Returns ErrDuplicate when a chat for the same
// (LoUserID, HiUserID) pair already exists.
func (db *DB) InsertChat(ctx context.Context, c *Chat) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = db.nowMillis()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO chats (id, lo_user_id, hi_user_id, created_at)
		VALUES (?, ?, ?, ?)`,
		c.ID, c.LoUserID, c.HiUserID, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

// FindChatByPair returns the chat for an already ordered pair, or nil.
func (db *DB) FindChatByPair(ctx context.Context, lo, hi string) (*Chat, error) {
	return db.scanChat(db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE lo_user_id = ? AND hi_user_id = ?`, lo, hi))
}

// GetChat returns a single chat by ID, or nil.
func (db *DB) GetChat(ctx context.Context, id string) (*Chat, error) {
	return db.scanChat(db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
}

func (db *DB) scanChat(row *sql.Row) (*Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.LoUserID, &c.HiUserID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	return &c, nil
}

// ListChatsForUser returns every chat userID participates in, newest chat
// first, with the other participant's directory entry and the newest message.
func (db *DB) ListChatsForUser(ctx context.Context, userID string) ([]ChatSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.lo_user_id, c.hi_user_id, c.created_at,
			COALESCE(u.name, ''), COALESCE(u.email, ''),
			m.id, m.content, m.status, m.sender_id, m.created_at
		FROM chats c
		LEFT JOIN users u
			ON u.id = CASE WHEN c.lo_user_id = ? THEN c.hi_user_id ELSE c.lo_user_id END
		LEFT JOIN messages m
			ON m.id = (
				SELECT id FROM messages
				WHERE chat_id = c.id
				ORDER BY created_at DESC, id DESC
				LIMIT 1)
		WHERE c.lo_user_id = ? OR c.hi_user_id = ?
		ORDER BY c.created_at DESC, c.id DESC`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChatSummary
	for rows.Next() {
		var (
			s                                ChatSummary
			msgID, content, status, senderID sql.NullString
			msgCreatedAt                     sql.NullInt64
		)
		if err := rows.Scan(
			&s.Chat.ID, &s.Chat.LoUserID, &s.Chat.HiUserID, &s.Chat.CreatedAt,
			&s.Other.Name, &s.Other.Email,
			&msgID, &content, &status, &senderID, &msgCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat summary: %w", err)
		}
		s.Other.ID = s.Chat.Other(userID)
		if msgID.Valid {
			s.LastMessage = &LastMessage{
				ID:        msgID.String,
				Content:   content.String,
				Status:    status.String,
				SenderID:  senderID.String,
				CreatedAt: msgCreatedAt.Int64,
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
