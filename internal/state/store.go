package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type Conversation struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	ConversationRunning   = "running"
	ConversationSuspended = "suspended"
	ConversationIdle      = "idle"
	ConversationClosed    = "closed"
)

func (s *Store) CreateConversation(ctx context.Context, id, agent string) (Conversation, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO conversations (id, agent, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, agent, ConversationRunning, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return Conversation{ID: id, Agent: agent, Status: ConversationRunning, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) UpdateConversation(ctx context.Context, id, agent, status string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET agent = ?, status = ?, updated_at = ? WHERE id = ?`,
		agent, status, now.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, agent, status, created_at, updated_at FROM conversations WHERE id = ?`, id)
	var conv Conversation
	var createdAtStr, updatedAtStr string
	if err := row.Scan(&conv.ID, &conv.Agent, &conv.Status, &createdAtStr, &updatedAtStr); err != nil {
		if err == sql.ErrNoRows {
			return Conversation{}, fmt.Errorf("conversation %s not found", id)
		}
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
	conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, agent, status, created_at, updated_at FROM conversations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var conv Conversation
		var createdAtStr, updatedAtStr string
		if err := rows.Scan(&conv.ID, &conv.Agent, &conv.Status, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}
