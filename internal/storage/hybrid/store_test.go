package hybrid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/memory"
	"tempinbox/backend/internal/storage/redis"
	"tempinbox/backend/internal/storage/storagetest"
)

func newHybrid(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	primary := memory.NewStore()
	return newHybridOver(t, primary), primary
}

func newHybridOver(t *testing.T, primary storage.Store) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cache := redis.NewCache(redis.NewFromClient(rdb, zap.NewNop()))
	return NewStore(primary, cache, zap.NewNop())
}

// pausedLookup 第一次地址查询读到底层记录之后暂停，直到测试放行
type pausedLookup struct {
	storage.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *pausedLookup) GetInboxByAddress(ctx context.Context, address string) (*domain.Inbox, error) {
	inbox, err := s.Store.GetInboxByAddress(ctx, address)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return inbox, err
}

func TestHybridStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, _ := newHybrid(t)
		return s
	})
}

func TestHybridStore_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	s, primary := newHybrid(t)

	inbox := storagetest.NewInbox("inbox-a", time.Now(), 10*time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))

	// 绕过缓存直接删除底层数据，缓存仍可命中
	require.NoError(t, primary.DeleteInbox(ctx, inbox.ID))
	got, err := s.GetInboxByAddress(ctx, inbox.Address)
	require.NoError(t, err)
	assert.Equal(t, inbox.ID, got.ID)
}

func TestHybridStore_RotationInvalidatesOldAddress(t *testing.T) {
	ctx := context.Background()
	s, _ := newHybrid(t)

	inbox := storagetest.NewInbox("inbox-a", time.Now(), 10*time.Minute)
	require.NoError(t, s.CreateInbox(ctx, inbox))
	_, err := s.GetInboxByAddress(ctx, inbox.Address)
	require.NoError(t, err)

	oldAddress := inbox.Address
	rotated := inbox.Clone()
	rotated.Address = "fresh@test.local"
	require.NoError(t, s.UpdateInbox(ctx, rotated))

	_, err = s.GetInboxByAddress(ctx, oldAddress)
	assert.ErrorIs(t, err, domain.ErrInboxNotFound)

	got, err := s.GetInbox(ctx, inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh@test.local", got.Address)
}

func TestHybridStore_LookupRacingWrite(t *testing.T) {
	tests := []struct {
		name  string
		write func(ctx context.Context, s *Store, inbox *domain.Inbox) error
		check func(t *testing.T, s *Store, inbox *domain.Inbox)
	}{
		{
			name: "轮换",
			write: func(ctx context.Context, s *Store, inbox *domain.Inbox) error {
				rotated := inbox.Clone()
				rotated.Address = "fresh@test.local"
				return s.UpdateInbox(ctx, rotated)
			},
			check: func(t *testing.T, s *Store, inbox *domain.Inbox) {
				got, err := s.GetInbox(context.Background(), inbox.ID)
				require.NoError(t, err)
				assert.Equal(t, "fresh@test.local", got.Address)

				got, err = s.GetInboxByAddress(context.Background(), "fresh@test.local")
				require.NoError(t, err)
				assert.Equal(t, inbox.ID, got.ID)
			},
		},
		{
			name: "删除",
			write: func(ctx context.Context, s *Store, inbox *domain.Inbox) error {
				return s.DeleteInbox(ctx, inbox.ID)
			},
			check: func(t *testing.T, s *Store, inbox *domain.Inbox) {
				_, err := s.GetInbox(context.Background(), inbox.ID)
				assert.ErrorIs(t, err, domain.ErrInboxNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			primary := memory.NewStore()
			inbox := storagetest.NewInbox("inbox-a", time.Now(), 10*time.Minute)
			// 直接写入底层存储，缓存为空
			require.NoError(t, primary.CreateInbox(ctx, inbox))

			paused := &pausedLookup{Store: primary, read: make(chan struct{}), release: make(chan struct{})}
			s := newHybridOver(t, paused)

			type lookup struct {
				inbox *domain.Inbox
				err   error
			}
			done := make(chan lookup, 1)
			go func() {
				got, err := s.GetInboxByAddress(ctx, inbox.Address)
				done <- lookup{got, err}
			}()

			<-paused.read
			require.NoError(t, tt.write(ctx, s, inbox))
			close(paused.release)

			racing := <-done
			assert.ErrorIs(t, racing.err, domain.ErrInboxNotFound)
			assert.Nil(t, racing.inbox)

			// 旧地址不得被写回缓存
			_, err := s.GetInboxByAddress(ctx, inbox.Address)
			assert.ErrorIs(t, err, domain.ErrInboxNotFound)
			tt.check(t, s, inbox)
		})
	}
}

func TestHybridStore_Health(t *testing.T) {
	s, _ := newHybrid(t)
	assert.NoError(t, s.Health(context.Background()))
}
