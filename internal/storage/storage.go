package storage

import (
	"context"
	"sort"
	"time"

	"tempinbox/backend/internal/domain"
)

// InboxRepository 定义收件箱数据存取操作。
//
// 未找到时返回 domain.ErrInboxNotFound，地址重复时返回 domain.ErrAddressConflict。
type InboxRepository interface {
	CreateInbox(ctx context.Context, inbox *domain.Inbox) error
	GetInbox(ctx context.Context, id string) (*domain.Inbox, error)
	GetInboxByAddress(ctx context.Context, address string) (*domain.Inbox, error)
	UpdateInbox(ctx context.Context, inbox *domain.Inbox) error
	ListInboxes(ctx context.Context) ([]domain.Inbox, error)
	DeleteInbox(ctx context.Context, id string) error // 幂等，级联删除邮件
	// PurgeExpiredInbox 仅当收件箱在 now 时刻仍处于过期状态时，物理删除它及其全部邮件。
	PurgeExpiredInbox(ctx context.Context, id string, now time.Time) (bool, error)
}

// MessageRepository 定义邮件数据存取操作。
type MessageRepository interface {
	SaveMessage(ctx context.Context, message *domain.Message) error // 写入后回填 ID
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	ListMessages(ctx context.Context, inboxID string, includeDeleted bool) ([]domain.Message, error)
	SoftDeleteMessage(ctx context.Context, id int64) error
	SoftDeleteMessages(ctx context.Context, inboxID string) (int64, error)
	PruneOrphanMessages(ctx context.Context) (int64, error) // 清理所属收件箱已不存在的邮件
}

// Store 定义完整的存储接口。
type Store interface {
	InboxRepository
	MessageRepository

	// 工具方法
	Close() error
	Health(ctx context.Context) error
}

// SortMessages 按接收时间倒序排列，时间相同时按 ID 倒序。
func SortMessages(messages []domain.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].ReceivedAt.Equal(messages[j].ReceivedAt) {
			return messages[i].ReceivedAt.After(messages[j].ReceivedAt)
		}
		return messages[i].ID > messages[j].ID
	})
}
