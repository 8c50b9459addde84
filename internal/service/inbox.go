package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/storage"
)

// CreateHook 收件箱创建成功后的回调。
type CreateHook func(ctx context.Context, inbox *domain.Inbox)

// Evictor 在收件箱消失时关闭其实时订阅。
type Evictor interface {
	Evict(inboxID string)
}

// InboxService 封装收件箱生命周期：创建、查询、地址轮换与删除。
type InboxService struct {
	repo    storage.InboxRepository
	gen     *AddressGenerator
	ttl     time.Duration
	now     func() time.Time
	hooks   []CreateHook
	evictor Evictor
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewInboxService 创建收件箱服务。
func NewInboxService(repo storage.InboxRepository, gen *AddressGenerator, ttl time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *InboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboxService{
		repo:    repo,
		gen:     gen,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
}

// OnCreate 注册创建后回调，例如写入演示邮件。
func (s *InboxService) OnCreate(hook CreateHook) {
	s.hooks = append(s.hooks, hook)
}

// SetEvictor 设置订阅清理器（避免循环依赖）
func (s *InboxService) SetEvictor(evictor Evictor) {
	s.evictor = evictor
}

// TTL 返回默认生存时间。
func (s *InboxService) TTL() time.Duration {
	return s.ttl
}

// Create 创建新的收件箱，ttl 不大于 0 时使用默认值。
func (s *InboxService) Create(ctx context.Context, ttl time.Duration) (*domain.Inbox, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	for attempt := 1; attempt <= maxAddressAttempts; attempt++ {
		id, address := s.gen.NewAddress()
		now := s.now().UTC()
		inbox := &domain.Inbox{
			ID:        id,
			Address:   address,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}

		err := s.repo.CreateInbox(ctx, inbox)
		if err == nil {
			s.metrics.RecordInboxCreated()
			s.logger.Info("inbox created",
				zap.String("inbox_id", inbox.ID),
				zap.String("address", inbox.Address),
				zap.Time("expires_at", inbox.ExpiresAt),
			)
			for _, hook := range s.hooks {
				hook(ctx, inbox.Clone())
			}
			return inbox, nil
		}
		if !errors.Is(err, domain.ErrAddressConflict) {
			return nil, fmt.Errorf("create inbox: %w", err)
		}
		s.logger.Warn("address collision, regenerating", zap.Int("attempt", attempt))
	}
	return nil, domain.ErrResourceExhausted
}

// Get 根据 ID 获取收件箱。
func (s *InboxService) Get(ctx context.Context, id string) (*domain.Inbox, error) {
	return s.repo.GetInbox(ctx, id)
}

// FindByAddress 解析投递地址，已过期但尚未清理的收件箱视为不存在。
func (s *InboxService) FindByAddress(ctx context.Context, address string) (*domain.Inbox, error) {
	address = domain.NormalizeAddress(address)
	if address == "" {
		return nil, domain.ErrInboxNotFound
	}
	inbox, err := s.repo.GetInboxByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if inbox.Expired(s.now()) {
		return nil, domain.ErrInboxNotFound
	}
	return inbox, nil
}

// Rotate 为收件箱生成新地址并重置生命周期，旧地址立即失效。
func (s *InboxService) Rotate(ctx context.Context, id string) (*domain.Inbox, error) {
	current, err := s.repo.GetInbox(ctx, id)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxAddressAttempts; attempt++ {
		_, address := s.gen.NewAddress()
		now := s.now().UTC()
		rotated := &domain.Inbox{
			ID:        current.ID,
			Address:   address,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}

		err := s.repo.UpdateInbox(ctx, rotated)
		if err == nil {
			s.metrics.RecordInboxRotated()
			s.logger.Info("inbox address rotated",
				zap.String("inbox_id", id),
				zap.String("old_address", current.Address),
				zap.String("address", rotated.Address),
			)
			return rotated, nil
		}
		if !errors.Is(err, domain.ErrAddressConflict) {
			return nil, err
		}
		s.logger.Warn("address collision on rotate, regenerating", zap.Int("attempt", attempt))
	}
	return nil, domain.ErrResourceExhausted
}

// Delete 删除收件箱及其邮件，重复删除不报错。
func (s *InboxService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteInbox(ctx, id); err != nil {
		return fmt.Errorf("delete inbox: %w", err)
	}
	if s.evictor != nil {
		s.evictor.Evict(id)
	}
	s.metrics.RecordInboxDeleted()
	s.logger.Info("inbox deleted", zap.String("inbox_id", id))
	return nil
}
