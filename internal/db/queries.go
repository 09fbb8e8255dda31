package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ARIHARAN-KC/nexa/internal/pipeline"
)

// Conversation is one row of conversations with its messages in order.
type Conversation struct {
	ID          int64              `json:"id"`
	UserID      string             `json:"user_id"`
	Timestamp   string             `json:"timestamp"`
	ProjectName string             `json:"project_name"`
	ProjectPlan json.RawMessage    `json:"project_plan"`
	Messages    []pipeline.Message `json:"messages"`
}

// CreateConversation starts a conversation for userID whose first message is
// first, and returns its ID.
func (d *DB) CreateConversation(ctx context.Context, userID string, first pipeline.Message) (int64, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := d.timestamp()
	var id int64
	err = tx.QueryRowContext(ctx,
		d.Rebind(`INSERT INTO conversations (user_id, created_at) VALUES (?, ?) RETURNING id`),
		userID, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	if err := insertMessage(ctx, tx, d, id, first, now); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit conversation: %w", err)
	}
	return id, nil
}

// AppendMessage adds m to the end of a conversation.
func (d *DB) AppendMessage(ctx context.Context, conversationID int64, m pipeline.Message) error {
	var exists int
	err := d.queryRow(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("append message to conversation %d: %w", conversationID, ErrNotFound)
	}
	return insertMessage(ctx, d.conn, d, conversationID, m, d.timestamp())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, ex execer, d *DB, conversationID int64, m pipeline.Message, now string) error {
	data, err := marshalNullable(m.Data)
	if err != nil {
		return fmt.Errorf("marshal message data: %w", err)
	}
	_, err = ex.ExecContext(ctx,
		d.Rebind(`INSERT INTO messages (conversation_id, role, content, type, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		conversationID, m.Role, m.Content, m.Type, data, now,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// SetProject records the project name and plan produced for a conversation.
func (d *DB) SetProject(ctx context.Context, conversationID int64, name string, plan any) error {
	data, err := marshalNullable(plan)
	if err != nil {
		return fmt.Errorf("marshal project plan: %w", err)
	}
	res, err := d.exec(ctx,
		`UPDATE conversations SET project_name = ?, project_plan = ? WHERE id = ?`,
		name, data, conversationID,
	)
	if err != nil {
		return fmt.Errorf("set project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set project on conversation %d: %w", conversationID, ErrNotFound)
	}
	return nil
}

// ListConversations returns userID's conversations, newest first.
func (d *DB) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := d.query(ctx,
		`SELECT id, user_id, created_at, project_name, project_plan
		 FROM conversations WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range convs {
		msgs, err := d.messages(ctx, convs[i].ID)
		if err != nil {
			return nil, err
		}
		convs[i].Messages = msgs
	}
	return convs, nil
}

// GetConversation returns one of userID's conversations.
func (d *DB) GetConversation(ctx context.Context, userID string, id int64) (*Conversation, error) {
	row := d.queryRow(ctx,
		`SELECT id, user_id, created_at, project_name, project_plan
		 FROM conversations WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if c.Messages, err = d.messages(ctx, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteConversation removes one of userID's conversations and its messages.
func (d *DB) DeleteConversation(ctx context.Context, userID string, id int64) error {
	res, err := d.exec(ctx, `DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClearConversations removes all of userID's conversations and returns how
// many were deleted.
func (d *DB) ClearConversations(ctx context.Context, userID string) (int64, error) {
	res, err := d.exec(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (d *DB) messages(ctx context.Context, conversationID int64) ([]pipeline.Message, error) {
	rows, err := d.query(ctx,
		`SELECT role, content, type, data FROM messages WHERE conversation_id = ? ORDER BY id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []pipeline.Message{}
	for rows.Next() {
		var m pipeline.Message
		var data sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &m.Type, &data); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if data.Valid {
			m.Data = json.RawMessage(data.String)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (Conversation, error) {
	var c Conversation
	var name, plan sql.NullString
	if err := s.Scan(&c.ID, &c.UserID, &c.Timestamp, &name, &plan); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan conversation: %w", err)
	}
	c.ProjectName = name.String
	if plan.Valid {
		c.ProjectPlan = json.RawMessage(plan.String)
	}
	return c, nil
}

// marshalNullable encodes v as JSON text, or SQL NULL when v is nil.
func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return sql.NullString{String: string(raw), Valid: len(raw) > 0}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
