package sql

import (
	"context"
	"database/sql"
	"errors"

	"tempinbox/backend/internal/domain"
)

type messageRow struct {
	ID            int64         `db:"id"`
	InboxID       string        `db:"inbox_id"`
	Sender        string        `db:"sender"`
	Recipient     string        `db:"recipient"`
	Subject       string        `db:"subject"`
	Body          string        `db:"body"`
	ReceivedAt    int64         `db:"received_at"`
	Code          string        `db:"code"`
	CodeExpiresAt sql.NullInt64 `db:"code_expires_at"`
	Deleted       bool          `db:"deleted"`
}

func (r messageRow) toDomain() domain.Message {
	m := domain.Message{
		ID:         r.ID,
		InboxID:    r.InboxID,
		Sender:     r.Sender,
		Recipient:  r.Recipient,
		Subject:    r.Subject,
		Body:       r.Body,
		ReceivedAt: fromNanos(r.ReceivedAt),
		Code:       r.Code,
		Deleted:    r.Deleted,
	}
	if r.CodeExpiresAt.Valid {
		t := fromNanos(r.CodeExpiresAt.Int64)
		m.CodeExpiresAt = &t
	}
	return m
}

const messageColumns = `id, inbox_id, sender, recipient, subject, body, received_at, code, code_expires_at, deleted`

// SaveMessage 保存邮件并回填自增 ID
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	var codeExpiresAt sql.NullInt64
	if message.CodeExpiresAt != nil {
		codeExpiresAt = sql.NullInt64{Int64: message.CodeExpiresAt.UnixNano(), Valid: true}
	}
	args := []interface{}{
		message.InboxID, message.Sender, message.Recipient, message.Subject, message.Body,
		message.ReceivedAt.UnixNano(), message.Code, codeExpiresAt, message.Deleted,
	}
	query := `INSERT INTO messages (inbox_id, sender, recipient, subject, body, received_at, code, code_expires_at, deleted)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if s.returning() {
		return s.db.QueryRowxContext(ctx, s.db.Rebind(query+` RETURNING id`), args...).Scan(&message.ID)
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	message.ID = id
	return nil
}

// GetMessage 获取单封邮件，软删除的同样返回
func (s *Store) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	m := row.toDomain()
	return &m, nil
}

// ListMessages 按接收时间倒序列出邮件
func (s *Store) ListMessages(ctx context.Context, inboxID string, includeDeleted bool) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE inbox_id = ?`
	args := []interface{}{inboxID}
	if !includeDeleted {
		query += ` AND deleted = ?`
		args = append(args, false)
	}
	query += ` ORDER BY received_at DESC, id DESC`

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toDomain())
	}
	return messages, nil
}

// SoftDeleteMessage 将邮件标记为已删除
func (s *Store) SoftDeleteMessage(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE messages SET deleted = ? WHERE id = ?`), true, id)
	return err
}

// SoftDeleteMessages 单条语句批量标记
func (s *Store) SoftDeleteMessages(ctx context.Context, inboxID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE messages SET deleted = ? WHERE inbox_id = ? AND deleted = ?`),
		true, inboxID, false)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PruneOrphanMessages 删除所属收件箱已不存在的邮件
func (s *Store) PruneOrphanMessages(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE inbox_id NOT IN (SELECT id FROM inboxes)`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
