package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catcharity/internal/models"
	"catcharity/internal/store"
)

const messageColumns = `id, sender_id, content, replied, reply_content, charity_worker_id, created_at, updated_at`

type MessageRepository struct {
	q querier
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	now := time.Now().UTC()
	m.ID = newID()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.Content, m.Replied,
		ptrToNullString(m.ReplyContent), ptrToNullString(m.CharityWorker),
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating message: %w", err)
	}
	return nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) FindBySender(ctx context.Context, senderID string) ([]*models.Message, error) {
	return r.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE sender_id = ? ORDER BY created_at, rowid`, senderID)
}

func (r *MessageRepository) FindAll(ctx context.Context) ([]*models.Message, error) {
	return r.query(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY created_at, rowid`)
}

func (r *MessageRepository) Save(ctx context.Context, m *models.Message) error {
	m.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx,
		`UPDATE messages SET replied = ?, reply_content = ?, charity_worker_id = ?, updated_at = ? WHERE id = ?`,
		m.Replied, ptrToNullString(m.ReplyContent), ptrToNullString(m.CharityWorker), m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *MessageRepository) query(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var replyContent, charityWorker sql.NullString

	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.Content,
		&m.Replied,
		&replyContent,
		&charityWorker,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.ReplyContent = nullStringToPtr(replyContent)
	m.CharityWorker = nullStringToPtr(charityWorker)
	return &m, nil
}
