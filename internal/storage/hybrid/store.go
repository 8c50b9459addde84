package hybrid

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/redis"
)

// Store 混合存储实现：关系型数据库为准，Redis 缓存收件箱的读路径。
//
// 邮件操作直接委托给底层存储；收件箱写操作先落库，再使缓存失效。
type Store struct {
	storage.Store
	cache  *redis.Cache
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建混合存储实例
func NewStore(primary storage.Store, cache *redis.Cache, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{Store: primary, cache: cache, logger: logger}
}

// ========== Inbox Repository ==========

// CreateInbox 保存收件箱并写入缓存
func (s *Store) CreateInbox(ctx context.Context, inbox *domain.Inbox) error {
	version, verr := s.cache.Version(ctx, inbox.ID)
	if err := s.Store.CreateInbox(ctx, inbox); err != nil {
		return err
	}
	s.fill(ctx, inbox, version, verr)
	return nil
}

// GetInbox 先读缓存，未命中时回源并按版本回填
func (s *Store) GetInbox(ctx context.Context, id string) (*domain.Inbox, error) {
	if inbox, err := s.cache.GetCachedInbox(ctx, id); err == nil {
		return inbox, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		s.logger.Warn("inbox cache read failed", zap.String("inbox_id", id), zap.Error(err))
	}

	// 版本必须先于回源读取
	version, verr := s.cache.Version(ctx, id)
	inbox, err := s.Store.GetInbox(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, inbox, version, verr)
	return inbox, nil
}

// GetInboxByAddress 先读地址索引缓存，未命中时回源。
//
// 地址查询无法预先取得版本，因此按 ID 重新读取，并确认地址未被轮换。
func (s *Store) GetInboxByAddress(ctx context.Context, address string) (*domain.Inbox, error) {
	if inbox, err := s.cache.GetCachedInboxByAddress(ctx, address); err == nil {
		return inbox, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		s.logger.Warn("inbox cache read failed", zap.String("address", address), zap.Error(err))
	}

	found, err := s.Store.GetInboxByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	inbox, err := s.GetInbox(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if inbox.Address != found.Address {
		return nil, domain.ErrInboxNotFound
	}
	return inbox, nil
}

// UpdateInbox 落库后失效新旧地址缓存，旧地址随即无法解析；下次读取时回填
func (s *Store) UpdateInbox(ctx context.Context, inbox *domain.Inbox) error {
	previous, err := s.Store.GetInbox(ctx, inbox.ID)
	if err != nil {
		return err
	}
	if err := s.Store.UpdateInbox(ctx, inbox); err != nil {
		return err
	}
	s.invalidate(ctx, inbox.ID, previous.Address, inbox.Address)
	return nil
}

// DeleteInbox 删除收件箱并清除缓存
func (s *Store) DeleteInbox(ctx context.Context, id string) error {
	var address string
	if current, err := s.Store.GetInbox(ctx, id); err == nil {
		address = current.Address
	}
	if err := s.Store.DeleteInbox(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id, address)
	return nil
}

// PurgeExpiredInbox 删除过期收件箱并清除缓存
func (s *Store) PurgeExpiredInbox(ctx context.Context, id string, now time.Time) (bool, error) {
	var address string
	if current, err := s.Store.GetInbox(ctx, id); err == nil {
		address = current.Address
	}
	purged, err := s.Store.PurgeExpiredInbox(ctx, id, now)
	if err != nil || !purged {
		return purged, err
	}
	s.invalidate(ctx, id, address)
	return true, nil
}

// Health 同时检查数据库与 Redis
func (s *Store) Health(ctx context.Context) error {
	if err := s.Store.Health(ctx); err != nil {
		return err
	}
	return s.cache.Ping(ctx)
}

// fill 按读取前的版本回填，版本未知时不回填
func (s *Store) fill(ctx context.Context, inbox *domain.Inbox, version int64, verr error) {
	if verr != nil {
		s.logger.Warn("inbox cache version read failed", zap.String("inbox_id", inbox.ID), zap.Error(verr))
		return
	}
	if _, err := s.cache.CacheInboxIfVersion(ctx, inbox, version); err != nil {
		s.logger.Warn("inbox cache write failed", zap.String("inbox_id", inbox.ID), zap.Error(err))
	}
}

func (s *Store) invalidate(ctx context.Context, id string, addresses ...string) {
	if err := s.cache.DeleteCachedInbox(ctx, id, addresses...); err != nil {
		s.logger.Warn("inbox cache invalidation failed", zap.String("inbox_id", id), zap.Error(err))
	}
}
