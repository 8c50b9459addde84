package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// Options 连接池配置。
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DefaultOptions 返回默认连接池配置。
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// Store 基于 GORM 的关系型存储实现，支持 PostgreSQL 与 MySQL。
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, opts Options) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), opts)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, opts Options) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), opts)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	store := &Store{db: db}
	if opts.AutoMigrate {
		if err := store.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return store, nil
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&domain.Inbox{}, &domain.Message{})
}

// ========== Inbox Repository ==========

// CreateInbox 插入收件箱，唯一索引冲突转换为 ErrAddressConflict
func (s *Store) CreateInbox(ctx context.Context, inbox *domain.Inbox) error {
	if err := s.db.WithContext(ctx).Create(inbox).Error; err != nil {
		return translate(err)
	}
	return nil
}

// GetInbox 根据 ID 获取收件箱
func (s *Store) GetInbox(ctx context.Context, id string) (*domain.Inbox, error) {
	var inbox domain.Inbox
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&inbox).Error; err != nil {
		return nil, translateInbox(err)
	}
	return &inbox, nil
}

// GetInboxByAddress 根据地址获取收件箱
func (s *Store) GetInboxByAddress(ctx context.Context, address string) (*domain.Inbox, error) {
	var inbox domain.Inbox
	if err := s.db.WithContext(ctx).Where("email_address = ?", address).First(&inbox).Error; err != nil {
		return nil, translateInbox(err)
	}
	return &inbox, nil
}

// UpdateInbox 更新地址与时间戳
func (s *Store) UpdateInbox(ctx context.Context, inbox *domain.Inbox) error {
	result := s.db.WithContext(ctx).Model(&domain.Inbox{}).
		Where("id = ?", inbox.ID).
		Updates(map[string]interface{}{
			"email_address": inbox.Address,
			"created_at":    inbox.CreatedAt,
			"expires_at":    inbox.ExpiresAt,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInboxNotFound
	}
	return nil
}

// ListInboxes 返回全部收件箱的快照
func (s *Store) ListInboxes(ctx context.Context) ([]domain.Inbox, error) {
	var inboxes []domain.Inbox
	err := s.db.WithContext(ctx).Find(&inboxes).Error
	return inboxes, err
}

// DeleteInbox 在事务中删除收件箱及其邮件
func (s *Store) DeleteInbox(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("inbox_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Inbox{}).Error
	})
}

// PurgeExpiredInbox 条件删除：收件箱在 now 时刻仍过期才会被删除
func (s *Store) PurgeExpiredInbox(ctx context.Context, id string, now time.Time) (bool, error) {
	purged := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND expires_at <= ?", id, now).Delete(&domain.Inbox{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		purged = true
		return tx.Where("inbox_id = ?", id).Delete(&domain.Message{}).Error
	})
	if err != nil {
		return false, err
	}
	return purged, nil
}

// ========== Message Repository ==========

// SaveMessage 保存邮件，ID 由数据库自增生成
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	message.ID = 0
	return s.db.WithContext(ctx).Create(message).Error
}

// GetMessage 获取单封邮件
func (s *Store) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	var message domain.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}

// ListMessages 返回某个收件箱下的邮件，最新的在前
func (s *Store) ListMessages(ctx context.Context, inboxID string, includeDeleted bool) ([]domain.Message, error) {
	query := s.db.WithContext(ctx).Where("inbox_id = ?", inboxID)
	if !includeDeleted {
		query = query.Where("deleted = ?", false)
	}
	messages := make([]domain.Message, 0)
	err := query.Order("received_at DESC").Order("id DESC").Find(&messages).Error
	return messages, err
}

// SoftDeleteMessage 将邮件标记为已删除
func (s *Store) SoftDeleteMessage(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Update("deleted", true).Error
}

// SoftDeleteMessages 单条语句批量标记，返回受影响行数
func (s *Store) SoftDeleteMessages(ctx context.Context, inboxID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("inbox_id = ? AND deleted = ?", inboxID, false).
		Update("deleted", true)
	return result.RowsAffected, result.Error
}

// PruneOrphanMessages 删除所属收件箱已不存在的邮件
func (s *Store) PruneOrphanMessages(ctx context.Context) (int64, error) {
	orphans := s.db.Model(&domain.Inbox{}).Select("id")
	result := s.db.WithContext(ctx).
		Where("inbox_id NOT IN (?)", orphans).
		Delete(&domain.Message{})
	return result.RowsAffected, result.Error
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连通性
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translateInbox(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrInboxNotFound
	}
	return err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAddressConflict
	}
	return err
}
