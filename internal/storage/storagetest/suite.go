// Package storagetest 提供各存储实现共用的一致性测试。
package storagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// Factory 为每个子测试创建一个全新的存储实例。
type Factory func(t *testing.T) storage.Store

// NewInbox 构造测试用收件箱，时间截断到毫秒以适配各数据库精度。
func NewInbox(id string, now time.Time, ttl time.Duration) *domain.Inbox {
	now = now.UTC().Truncate(time.Millisecond)
	return &domain.Inbox{
		ID:        id,
		Address:   fmt.Sprintf("%s@test.local", id),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// NewMessage 构造测试用邮件。
func NewMessage(inboxID string, receivedAt time.Time, subject string) *domain.Message {
	return &domain.Message{
		InboxID:    inboxID,
		Sender:     "sender@example.com",
		Recipient:  inboxID + "@test.local",
		Subject:    subject,
		Body:       "body of " + subject,
		ReceivedAt: receivedAt.UTC().Truncate(time.Millisecond),
	}
}

// Run 执行完整的存储一致性测试。
func Run(t *testing.T, factory Factory) {
	t.Run("收件箱增删改查", func(t *testing.T) { testInboxCRUD(t, factory(t)) })
	t.Run("地址冲突", func(t *testing.T) { testAddressConflict(t, factory(t)) })
	t.Run("更新地址后旧地址失效", func(t *testing.T) { testUpdateAddress(t, factory(t)) })
	t.Run("邮件排序与软删除", func(t *testing.T) { testMessages(t, factory(t)) })
	t.Run("验证码字段往返", func(t *testing.T) { testCodeFields(t, factory(t)) })
	t.Run("超长主题与发件人", func(t *testing.T) { testLongHeaderFields(t, factory(t)) })
	t.Run("清理过期收件箱", func(t *testing.T) { testPurge(t, factory(t)) })
	t.Run("清理孤立邮件", func(t *testing.T) { testPruneOrphans(t, factory(t)) })
	t.Run("并发写入邮件", func(t *testing.T) { testConcurrentSave(t, factory(t)) })
}

func testInboxCRUD(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inbox := NewInbox("inbox-a", time.Now(), 10*time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))

	got, err := s.GetInbox(ctx, inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, inbox.Address, got.Address)
	assert.True(t, inbox.ExpiresAt.Equal(got.ExpiresAt))

	got, err = s.GetInboxByAddress(ctx, inbox.Address)
	require.NoError(t, err)
	assert.Equal(t, inbox.ID, got.ID)

	list, err := s.ListInboxes(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteInbox(ctx, inbox.ID))
	require.NoError(t, s.DeleteInbox(ctx, inbox.ID), "删除应幂等")

	_, err = s.GetInbox(ctx, inbox.ID)
	assert.ErrorIs(t, err, domain.ErrInboxNotFound)
	_, err = s.GetInboxByAddress(ctx, inbox.Address)
	assert.ErrorIs(t, err, domain.ErrInboxNotFound)
}

func testAddressConflict(t *testing.T, s storage.Store) {
	ctx := context.Background()
	first := NewInbox("inbox-a", time.Now(), time.Minute)
	require.NoError(t, s.CreateInbox(ctx, first))

	second := NewInbox("inbox-b", time.Now(), time.Minute)
	second.Address = first.Address
	assert.ErrorIs(t, s.CreateInbox(ctx, second), domain.ErrAddressConflict)
}

func testUpdateAddress(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inbox := NewInbox("inbox-a", time.Now(), time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))
	other := NewInbox("inbox-b", time.Now(), time.Minute)
	require.NoError(t, s.CreateInbox(ctx, other))

	oldAddress := inbox.Address
	inbox.Address = "rotated@test.local"
	inbox.ExpiresAt = inbox.ExpiresAt.Add(time.Hour)
	require.NoError(t, s.UpdateInbox(ctx, inbox))

	_, err := s.GetInboxByAddress(ctx, oldAddress)
	assert.ErrorIs(t, err, domain.ErrInboxNotFound)
	got, err := s.GetInboxByAddress(ctx, "rotated@test.local")
	require.NoError(t, err)
	assert.Equal(t, inbox.ID, got.ID)
	assert.True(t, inbox.ExpiresAt.Equal(got.ExpiresAt))

	inbox.Address = other.Address
	assert.ErrorIs(t, s.UpdateInbox(ctx, inbox), domain.ErrAddressConflict)

	missing := NewInbox("missing", time.Now(), time.Minute)
	assert.ErrorIs(t, s.UpdateInbox(ctx, missing), domain.ErrInboxNotFound)
}

func testMessages(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inbox := NewInbox("inbox-a", time.Now(), time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))

	base := time.Now()
	first := NewMessage(inbox.ID, base, "first")
	second := NewMessage(inbox.ID, base.Add(time.Second), "second")
	third := NewMessage(inbox.ID, base.Add(time.Second), "third")
	for _, m := range []*domain.Message{first, second, third} {
		require.NoError(t, s.SaveMessage(ctx, m))
		assert.NotZero(t, m.ID)
	}
	assert.Greater(t, second.ID, first.ID)
	assert.Greater(t, third.ID, second.ID)

	list, err := s.ListMessages(ctx, inbox.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"third", "second", "first"}, subjects(list))

	require.NoError(t, s.SoftDeleteMessage(ctx, second.ID))
	require.NoError(t, s.SoftDeleteMessage(ctx, second.ID), "软删除应幂等")
	require.NoError(t, s.SoftDeleteMessage(ctx, 987654), "不存在的邮件不报错")

	got, err := s.GetMessage(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	list, err = s.ListMessages(ctx, inbox.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "first"}, subjects(list))

	list, err = s.ListMessages(ctx, inbox.ID, true)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	n, err := s.SoftDeleteMessages(ctx, inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err = s.ListMessages(ctx, inbox.ID, false)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetMessage(ctx, 987654)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func testCodeFields(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inbox := NewInbox("inbox-a", time.Now(), time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))

	expires := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Millisecond)
	withCode := NewMessage(inbox.ID, time.Now(), "code")
	withCode.Code = "482913"
	withCode.CodeExpiresAt = &expires
	require.NoError(t, s.SaveMessage(ctx, withCode))

	plain := NewMessage(inbox.ID, time.Now(), "plain")
	require.NoError(t, s.SaveMessage(ctx, plain))

	got, err := s.GetMessage(ctx, withCode.ID)
	require.NoError(t, err)
	assert.Equal(t, "482913", got.Code)
	require.NotNil(t, got.CodeExpiresAt)
	assert.True(t, expires.Equal(*got.CodeExpiresAt))

	got, err = s.GetMessage(ctx, plain.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Code)
	assert.Nil(t, got.CodeExpiresAt)
}

func testLongHeaderFields(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inbox := NewInbox("inbox-a", time.Now(), time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))

	// 折叠后解码的主题可以超过单行 998 字节
	subject := strings.Repeat("验证码通知 ", 400)
	sender := strings.Repeat("a", 400) + "@example.com"
	m := NewMessage(inbox.ID, time.Now(), subject)
	m.Sender = sender
	require.NoError(t, s.SaveMessage(ctx, m))

	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, subject, got.Subject)
	assert.Equal(t, sender, got.Sender)
}

func testPurge(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := time.Now()
	expired := NewInbox("expired", now.Add(-time.Hour), time.Minute)
	live := NewInbox("live", now, time.Hour)
	require.NoError(t, s.CreateInbox(ctx, expired))
	require.NoError(t, s.CreateInbox(ctx, live))
	require.NoError(t, s.SaveMessage(ctx, NewMessage(expired.ID, now, "old")))
	require.NoError(t, s.SaveMessage(ctx, NewMessage(live.ID, now, "new")))

	purged, err := s.PurgeExpiredInbox(ctx, live.ID, now)
	require.NoError(t, err)
	assert.False(t, purged, "未过期的收件箱不应被删除")

	purged, err = s.PurgeExpiredInbox(ctx, expired.ID, now)
	require.NoError(t, err)
	assert.True(t, purged)

	purged, err = s.PurgeExpiredInbox(ctx, expired.ID, now)
	require.NoError(t, err)
	assert.False(t, purged)

	_, err = s.GetInbox(ctx, expired.ID)
	assert.ErrorIs(t, err, domain.ErrInboxNotFound)
	list, err := s.ListMessages(ctx, expired.ID, true)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListMessages(ctx, live.ID, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testPruneOrphans(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inbox := NewInbox("inbox-a", time.Now(), time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))
	require.NoError(t, s.SaveMessage(ctx, NewMessage(inbox.ID, time.Now(), "kept")))
	require.NoError(t, s.SaveMessage(ctx, NewMessage("ghost", time.Now(), "orphan")))

	n, err := s.PruneOrphanMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.ListMessages(ctx, inbox.ID, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testConcurrentSave(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inbox := NewInbox("inbox-a", time.Now(), time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))

	const writers = 8
	const perWriter = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				errs <- s.SaveMessage(ctx, NewMessage(inbox.ID, time.Now(), fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := s.ListMessages(ctx, inbox.ID, false)
	require.NoError(t, err)
	assert.Len(t, list, writers*perWriter)
}

func subjects(list []domain.Message) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.Subject
	}
	return out
}
