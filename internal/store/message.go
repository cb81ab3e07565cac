package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const messageSelect = `
	SELECT m.id, m.chat_id, m.sender_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
		m.content, m.status, m.created_at, m.updated_at
	FROM messages m
	LEFT JOIN users u ON u.id = m.sender_id`

// InsertMessage appends a message with status "sent". created_at is the
// current time or one millisecond past the newest message of the chat,
// whichever is larger, so it is strictly increasing per chat.
func (db *DB) InsertMessage(ctx context.Context, chatID, senderID, content string) (*Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	now := db.nowMillis()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, content, status, created_at, updated_at)
		SELECT ?, ?, ?, ?, 'sent', MAX(?, COALESCE(MAX(created_at) + 1, 0)), ?
		FROM messages WHERE chat_id = ?`,
		id.String(), chatID, senderID, content, now, now, chatID); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	m, err := db.GetMessage(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("insert message: row %s not found after insert", id)
	}
	return m, nil
}

// GetMessage returns a message by ID, or nil.
func (db *DB) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %q: %w", id, err)
	}
	return m, nil
}

// CursorOf returns the keyset position of messageID inside chatID, or nil
// when the message does not exist in that chat.
func (db *DB) CursorOf(ctx context.Context, chatID, messageID string) (*Cursor, error) {
	var c Cursor
	err := db.QueryRowContext(ctx,
		`SELECT created_at, id FROM messages WHERE id = ? AND chat_id = ?`, messageID, chatID).
		Scan(&c.CreatedAt, &c.ID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cursor of %q: %w", messageID, err)
	}
	return &c, nil
}

// ListMessages returns up to limit messages of a chat ordered newest first
// by (created_at, id). With a non-nil before, only messages strictly older
// than that position are returned.
func (db *DB) ListMessages(ctx context.Context, chatID string, before *Cursor, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	q := messageSelect + ` WHERE m.chat_id = ?`
	args := []any{chatID}
	if before != nil {
		q += ` AND (m.created_at < ? OR (m.created_at = ? AND m.id < ?))`
		args = append(args, before.CreatedAt, before.CreatedAt, before.ID)
	}
	q += ` ORDER BY m.created_at DESC, m.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// CompareAndSwapStatus moves a message from status from to status to.
// It reports false, without error, when the stored status is no longer from.
func (db *DB) CompareAndSwapStatus(ctx context.Context, id, from, to string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE messages SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, db.nowMillis(), id, from)
	if err != nil {
		return false, fmt.Errorf("update status of %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status of %q: %w", id, err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*Message, error) {
	var m Message
	if err := r.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Sender.Name, &m.Sender.Email,
		&m.Content, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Sender.ID = m.SenderID
	return &m, nil
}
