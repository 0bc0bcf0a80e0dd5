package server

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

type Conversation struct {
	ID        int64
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             int64
	UserID         string
	ConversationID int64
	Role           string
	Content        string
	Timestamp      time.Time
}

type HistoryTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationSummary struct {
	TotalConversations int        `json:"total_conversations"`
	TotalMessages      int        `json:"total_messages"`
	FirstConversation  *time.Time `json:"first_conversation"`
	LastConversation   *time.Time `json:"last_conversation"`
}

// Store is the persistence contract for the append-only message log.
// Messages are immutable once saved; there is no edit or delete path.
type Store interface {
	GetOrCreateConversation(ctx context.Context, userID string) (Conversation, error)
	SaveMessage(ctx context.Context, userID string, conversationID int64, role, content string) (Message, error)
	ConversationHistory(ctx context.Context, userID string, limit int) ([]HistoryTurn, error)
	RecentUserMessages(ctx context.Context, userID string, limit int) ([]Message, error)
	TotalMessages(ctx context.Context, userID string) (int, error)
	ConversationSummary(ctx context.Context, userID string) (ConversationSummary, error)
}

type pgxStore struct {
	db *pgxpool.Pool
}

func newPgxStore(pool *pgxpool.Pool) *pgxStore {
	return &pgxStore{db: pool}
}

// GetOrCreateConversation relies on the UNIQUE constraint on user_id so a
// user can never end up with two conversation rows. Reusing an existing
// conversation bumps updated_at, which doubles as last-activity time.
func (s *pgxStore) GetOrCreateConversation(ctx context.Context, userID string) (Conversation, error) {
	conversation := Conversation{}
	err := s.db.QueryRow(
		ctx,
		`INSERT INTO conversations (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		 RETURNING id, user_id, created_at, updated_at`,
		userID,
	).Scan(&conversation.ID, &conversation.UserID, &conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return conversation, nil
}

func (s *pgxStore) SaveMessage(ctx context.Context, userID string, conversationID int64, role, content string) (Message, error) {
	message := Message{
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	err := s.db.QueryRow(
		ctx,
		`INSERT INTO messages (user_id, conversation_id, role, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, timestamp`,
		userID,
		conversationID,
		role,
		content,
	).Scan(&message.ID, &message.Timestamp)
	if err != nil {
		return Message{}, err
	}
	return message, nil
}

// ConversationHistory returns the newest limit turns in chronological
// order, oldest first. Timestamp ties are broken by the surrogate id, so
// insertion order always wins.
func (s *pgxStore) ConversationHistory(ctx context.Context, userID string, limit int) ([]HistoryTurn, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT m.role, m.content, m.timestamp
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = $1
		 ORDER BY m.timestamp DESC, m.id DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	newestFirst := make([]HistoryTurn, 0, limit)
	for rows.Next() {
		turn := HistoryTurn{}
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history := make([]HistoryTurn, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		history = append(history, newestFirst[i])
	}
	return history, nil
}

// RecentUserMessages returns up to limit user-authored messages, newest
// first. This feeds the analysis engine's capped window.
func (s *pgxStore) RecentUserMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT m.id, m.user_id, m.conversation_id, m.role, m.content, m.timestamp
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = $1 AND m.role = 'user'
		 ORDER BY m.timestamp DESC, m.id DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		message := Message{}
		if err := rows.Scan(
			&message.ID,
			&message.UserID,
			&message.ConversationID,
			&message.Role,
			&message.Content,
			&message.Timestamp,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (s *pgxStore) TotalMessages(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRow(
		ctx,
		`SELECT COUNT(*)::int FROM messages WHERE user_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ConversationSummary reports zero values for unknown users; a missing
// conversation is valid data, not an error.
func (s *pgxStore) ConversationSummary(ctx context.Context, userID string) (ConversationSummary, error) {
	var conversationID int64
	var createdAt, updatedAt time.Time
	err := s.db.QueryRow(
		ctx,
		`SELECT id, created_at, updated_at FROM conversations WHERE user_id = $1`,
		userID,
	).Scan(&conversationID, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConversationSummary{}, nil
	}
	if err != nil {
		return ConversationSummary{}, err
	}

	var messageCount int
	err = s.db.QueryRow(
		ctx,
		`SELECT COUNT(*)::int FROM messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&messageCount)
	if err != nil {
		return ConversationSummary{}, err
	}

	return ConversationSummary{
		TotalConversations: 1,
		TotalMessages:      messageCount,
		FirstConversation:  &createdAt,
		LastConversation:   &updatedAt,
	}, nil
}
