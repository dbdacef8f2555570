package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const MaxMessageLength = 4000

// GetOrCreateConversation returns the 1:1 conversation between two
// distinct users, creating it on first contact.
func GetOrCreateConversation(ctx context.Context, userID, otherID int64) (*Conversation, error) {
	if userID == otherID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalid)
	}
	if _, err := GetUserByID(ctx, otherID); err != nil {
		return nil, err
	}
	a, b := userID, otherID
	if a > b {
		a, b = b, a
	}
	_, err := DB.ExecContext(ctx,
		"INSERT OR IGNORE INTO conversations (user_a, user_b, created_at) VALUES (?, ?, ?)",
		a, b, now())
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	var c Conversation
	err = DB.QueryRowContext(ctx,
		"SELECT id, user_a, user_b, created_at FROM conversations WHERE user_a = ? AND user_b = ?", a, b,
	).Scan(&c.ID, &c.UserA, &c.UserB, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return &c, nil
}

// GetConversationForUser loads a conversation userID takes part in.
func GetConversationForUser(ctx context.Context, id, userID int64) (*Conversation, error) {
	var c Conversation
	err := DB.QueryRowContext(ctx,
		"SELECT id, user_a, user_b, created_at FROM conversations WHERE id = ?", id,
	).Scan(&c.ID, &c.UserA, &c.UserB, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if c.UserA != userID && c.UserB != userID {
		return nil, ErrForbidden
	}
	return &c, nil
}

// ListConversations returns the user's conversations, most recently
// active first, with the last message and unread count.
func ListConversations(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	rows, err := DB.QueryContext(ctx, `SELECT c.id, c.user_a, c.user_b, c.created_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id
			AND m.sender_id != ? AND m.read_at IS NULL),
		COALESCE((SELECT MAX(m.id) FROM messages m WHERE m.conversation_id = c.id), 0)
		FROM conversations c WHERE c.user_a = ? OR c.user_b = ?`,
		userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	var out []ConversationSummary
	var lastIDs []int64
	for rows.Next() {
		var s ConversationSummary
		var lastID int64
		if err := rows.Scan(&s.ID, &s.UserA, &s.UserB, &s.CreatedAt, &s.UnreadCount, &lastID); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
		lastIDs = append(lastIDs, lastID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	others := make([]int64, len(out))
	for i := range out {
		others[i] = out[i].Other(userID)
	}
	users, err := publicUsers(ctx, others)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].OtherUser = users[others[i]]
		if lastIDs[i] > 0 {
			m, err := getMessage(ctx, lastIDs[i])
			if err != nil {
				return nil, err
			}
			out[i].LastMessage = m
		}
	}

	sortSummaries(out)
	return out, nil
}

func sortSummaries(s []ConversationSummary) {
	activity := func(c ConversationSummary) time.Time {
		if c.LastMessage != nil {
			return c.LastMessage.CreatedAt
		}
		return c.CreatedAt
	}
	sort.SliceStable(s, func(i, j int) bool {
		return activity(s[i]).After(activity(s[j]))
	})
}

func getMessage(ctx context.Context, id int64) (*Message, error) {
	var m Message
	err := DB.QueryRowContext(ctx,
		"SELECT id, conversation_id, sender_id, content, created_at, read_at FROM messages WHERE id = ?", id,
	).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt, &m.ReadAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// CreateMessage appends a message from senderID to a conversation they
// belong to.
func CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalid)
	}
	if len(content) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message too long", ErrInvalid)
	}
	if _, err := GetConversationForUser(ctx, conversationID, senderID); err != nil {
		return nil, err
	}
	res, err := DB.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?)",
		conversationID, senderID, content, now())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, _ := res.LastInsertId()
	return getMessage(ctx, id)
}

// MessagesAfter returns messages with id greater than afterID, oldest
// first. Clients poll with the last id they have seen.
func MessagesAfter(ctx context.Context, conversationID, afterID int64, limit int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := DB.QueryContext(ctx, `SELECT id, conversation_id, sender_id, content, created_at, read_at
		FROM messages WHERE conversation_id = ? AND id > ? ORDER BY id LIMIT ?`,
		conversationID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkConversationRead marks every message the other participant sent as
// read and returns how many changed.
func MarkConversationRead(ctx context.Context, conversationID, userID int64) (int64, error) {
	if _, err := GetConversationForUser(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	res, err := DB.ExecContext(ctx, `UPDATE messages SET read_at = ?
		WHERE conversation_id = ? AND sender_id != ? AND read_at IS NULL`,
		now(), conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UnreadMessageCount counts unread messages across all the user's
// conversations.
func UnreadMessageCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.user_a = ? OR c.user_b = ?) AND m.sender_id != ? AND m.read_at IS NULL`,
		userID, userID, userID).Scan(&n)
	return n, err
}
