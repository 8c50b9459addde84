package sql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tempinbox/backend/internal/domain"
)

type inboxRow struct {
	ID        string `db:"id"`
	Address   string `db:"email_address"`
	CreatedAt int64  `db:"created_at"`
	ExpiresAt int64  `db:"expires_at"`
}

func (r inboxRow) toDomain() *domain.Inbox {
	return &domain.Inbox{
		ID:        r.ID,
		Address:   r.Address,
		CreatedAt: fromNanos(r.CreatedAt),
		ExpiresAt: fromNanos(r.ExpiresAt),
	}
}

const inboxColumns = `id, email_address, created_at, expires_at`

// CreateInbox 插入收件箱
func (s *Store) CreateInbox(ctx context.Context, inbox *domain.Inbox) error {
	query := s.db.Rebind(`INSERT INTO inboxes (` + inboxColumns + `) VALUES (?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, inbox.ID, inbox.Address, inbox.CreatedAt.UnixNano(), inbox.ExpiresAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAddressConflict
		}
		return err
	}
	return nil
}

// GetInbox 根据 ID 获取收件箱
func (s *Store) GetInbox(ctx context.Context, id string) (*domain.Inbox, error) {
	return s.getInbox(ctx, `SELECT `+inboxColumns+` FROM inboxes WHERE id = ?`, id)
}

// GetInboxByAddress 通过唯一索引按地址查询
func (s *Store) GetInboxByAddress(ctx context.Context, address string) (*domain.Inbox, error) {
	return s.getInbox(ctx, `SELECT `+inboxColumns+` FROM inboxes WHERE email_address = ?`, address)
}

func (s *Store) getInbox(ctx context.Context, query string, arg interface{}) (*domain.Inbox, error) {
	var row inboxRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInboxNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// UpdateInbox 更新地址与时间戳
func (s *Store) UpdateInbox(ctx context.Context, inbox *domain.Inbox) error {
	query := s.db.Rebind(`UPDATE inboxes SET email_address = ?, created_at = ?, expires_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, inbox.Address, inbox.CreatedAt.UnixNano(), inbox.ExpiresAt.UnixNano(), inbox.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAddressConflict
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// MySQL 在值未变化时同样返回 0，需要再确认一次
		if _, err := s.GetInbox(ctx, inbox.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListInboxes 返回全部收件箱的快照
func (s *Store) ListInboxes(ctx context.Context) ([]domain.Inbox, error) {
	var rows []inboxRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+inboxColumns+` FROM inboxes`); err != nil {
		return nil, err
	}
	inboxes := make([]domain.Inbox, 0, len(rows))
	for _, row := range rows {
		inboxes = append(inboxes, *row.toDomain())
	}
	return inboxes, nil
}

// DeleteInbox 在事务中删除收件箱及其邮件
func (s *Store) DeleteInbox(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE inbox_id = ?`), id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM inboxes WHERE id = ?`), id); err != nil {
		return err
	}
	return tx.Commit()
}

// PurgeExpiredInbox 仅删除在 now 时刻仍过期的收件箱
func (s *Store) PurgeExpiredInbox(ctx context.Context, id string, now time.Time) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM inboxes WHERE id = ? AND expires_at <= ?`), id, now.UnixNano())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE inbox_id = ?`), id); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
