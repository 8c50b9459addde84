package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// Store 使用内存保存收件箱与邮件数据，适合单实例部署与测试。
type Store struct {
	mu        sync.RWMutex
	inboxes   map[string]*domain.Inbox
	byAddress map[string]string                      // address -> inboxID
	messages  map[int64]*domain.Message              // messageID -> message
	byInbox   map[string]map[int64]*domain.Message   // inboxID -> messageID -> message
	seq       *atomic.Int64
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		inboxes:   make(map[string]*domain.Inbox),
		byAddress: make(map[string]string),
		messages:  make(map[int64]*domain.Message),
		byInbox:   make(map[string]map[int64]*domain.Message),
		seq:       atomic.NewInt64(0),
	}
}

// CreateInbox 保存新收件箱，地址已被占用时返回 ErrAddressConflict。
func (s *Store) CreateInbox(_ context.Context, inbox *domain.Inbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.inboxes[inbox.ID]; exists {
		return domain.ErrAddressConflict
	}
	if _, taken := s.byAddress[inbox.Address]; taken {
		return domain.ErrAddressConflict
	}
	s.inboxes[inbox.ID] = inbox.Clone()
	s.byAddress[inbox.Address] = inbox.ID
	return nil
}

// GetInbox 根据 ID 获取收件箱。
func (s *Store) GetInbox(_ context.Context, id string) (*domain.Inbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inbox, ok := s.inboxes[id]
	if !ok {
		return nil, domain.ErrInboxNotFound
	}
	return inbox.Clone(), nil
}

// GetInboxByAddress 通过地址索引查询收件箱。
func (s *Store) GetInboxByAddress(_ context.Context, address string) (*domain.Inbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, domain.ErrInboxNotFound
	}
	return s.inboxes[id].Clone(), nil
}

// UpdateInbox 更新收件箱，地址变化时同步维护索引。
func (s *Store) UpdateInbox(_ context.Context, inbox *domain.Inbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.inboxes[inbox.ID]
	if !ok {
		return domain.ErrInboxNotFound
	}
	if current.Address != inbox.Address {
		if owner, taken := s.byAddress[inbox.Address]; taken && owner != inbox.ID {
			return domain.ErrAddressConflict
		}
		delete(s.byAddress, current.Address)
		s.byAddress[inbox.Address] = inbox.ID
	}
	s.inboxes[inbox.ID] = inbox.Clone()
	return nil
}

// ListInboxes 返回全部收件箱的快照。
func (s *Store) ListInboxes(_ context.Context) ([]domain.Inbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Inbox, 0, len(s.inboxes))
	for _, inbox := range s.inboxes {
		result = append(result, *inbox)
	}
	return result, nil
}

// DeleteInbox 删除收件箱及其全部邮件，不存在时不报错。
func (s *Store) DeleteInbox(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteInboxLocked(id)
	return nil
}

// PurgeExpiredInbox 在锁内复核过期状态后物理删除。
func (s *Store) PurgeExpiredInbox(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox, ok := s.inboxes[id]
	if !ok || !inbox.Expired(now) {
		return false, nil
	}
	s.deleteInboxLocked(id)
	return true, nil
}

func (s *Store) deleteInboxLocked(id string) {
	if inbox, ok := s.inboxes[id]; ok {
		delete(s.byAddress, inbox.Address)
		delete(s.inboxes, id)
	}
	for msgID := range s.byInbox[id] {
		delete(s.messages, msgID)
	}
	delete(s.byInbox, id)
}

// SaveMessage 保存邮件并分配自增 ID。
func (s *Store) SaveMessage(_ context.Context, message *domain.Message) error {
	message.ID = s.seq.Inc()
	stored := message.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[stored.ID] = stored
	bucket, ok := s.byInbox[stored.InboxID]
	if !ok {
		bucket = make(map[int64]*domain.Message)
		s.byInbox[stored.InboxID] = bucket
	}
	bucket[stored.ID] = stored
	return nil
}

// GetMessage 根据 ID 获取邮件，软删除的邮件同样可见。
func (s *Store) GetMessage(_ context.Context, id int64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return message.Clone(), nil
}

// ListMessages 列出收件箱邮件，按接收时间倒序。
func (s *Store) ListMessages(_ context.Context, inboxID string, includeDeleted bool) ([]domain.Message, error) {
	s.mu.RLock()
	bucket := s.byInbox[inboxID]
	result := make([]domain.Message, 0, len(bucket))
	for _, message := range bucket {
		if message.Deleted && !includeDeleted {
			continue
		}
		result = append(result, *message.Clone())
	}
	s.mu.RUnlock()

	storage.SortMessages(result)
	return result, nil
}

// SoftDeleteMessage 标记邮件为已删除。
func (s *Store) SoftDeleteMessage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message, ok := s.messages[id]; ok {
		message.Deleted = true
	}
	return nil
}

// SoftDeleteMessages 标记收件箱内全部邮件为已删除，返回本次变更数量。
func (s *Store) SoftDeleteMessages(_ context.Context, inboxID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, message := range s.byInbox[inboxID] {
		if !message.Deleted {
			message.Deleted = true
			count++
		}
	}
	return count, nil
}

// PruneOrphanMessages 清理收件箱已被删除的孤立邮件。
func (s *Store) PruneOrphanMessages(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for inboxID, bucket := range s.byInbox {
		if _, ok := s.inboxes[inboxID]; ok {
			continue
		}
		for msgID := range bucket {
			delete(s.messages, msgID)
			count++
		}
		delete(s.byInbox, inboxID)
	}
	return count, nil
}

// Close 内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

// Health 内存存储始终可用。
func (s *Store) Health(_ context.Context) error {
	return nil
}
