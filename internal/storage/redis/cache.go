package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tempinbox/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// Cache 收件箱缓存，键的过期时间与收件箱剩余寿命一致
type Cache struct {
	client *Client
}

// NewCache 创建收件箱缓存
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

func inboxKey(id string) string {
	return fmt.Sprintf("inbox:id:%s", id)
}

func addressKey(address string) string {
	return fmt.Sprintf("inbox:addr:%s", address)
}

// versionKey 每次失效递增，回填前比对，防止并发写入后旧记录被写回
func versionKey(id string) string {
	return fmt.Sprintf("inbox:ver:%s", id)
}

// versionTTL 需长于任何收件箱的缓存寿命
const versionTTL = 48 * time.Hour

// CacheInbox 缓存收件箱及地址索引，已过期的收件箱不缓存
func (c *Cache) CacheInbox(ctx context.Context, inbox *domain.Inbox) error {
	ttl := time.Until(inbox.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(inbox)
	if err != nil {
		return err
	}
	_, err = c.client.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, inboxKey(inbox.ID), data, ttl)
		pipe.Set(ctx, addressKey(inbox.Address), inbox.ID, ttl)
		return nil
	})
	return err
}

// Version 返回收件箱缓存版本，从未失效过时为 0
func (c *Cache) Version(ctx context.Context, id string) (int64, error) {
	version, err := c.client.rdb.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return version, err
}

// CacheInboxIfVersion 仅当版本仍为 version 时写入缓存。
//
// 调用方须在读取底层存储之前取得 version；期间发生的任何失效都会使写入放弃，
// 返回 false。
func (c *Cache) CacheInboxIfVersion(ctx context.Context, inbox *domain.Inbox, version int64) (bool, error) {
	ttl := time.Until(inbox.ExpiresAt)
	if ttl <= 0 {
		return false, nil
	}
	data, err := json.Marshal(inbox)
	if err != nil {
		return false, err
	}

	written := false
	err = c.client.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, versionKey(inbox.ID)).Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, inboxKey(inbox.ID), data, ttl)
			pipe.Set(ctx, addressKey(inbox.Address), inbox.ID, ttl)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, versionKey(inbox.ID))
	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil
	}
	return written, err
}

// GetCachedInbox 按 ID 读取缓存
func (c *Cache) GetCachedInbox(ctx context.Context, id string) (*domain.Inbox, error) {
	data, err := c.client.rdb.Get(ctx, inboxKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	var inbox domain.Inbox
	if err := json.Unmarshal(data, &inbox); err != nil {
		return nil, err
	}
	return &inbox, nil
}

// GetCachedInboxByAddress 通过地址索引读取缓存
func (c *Cache) GetCachedInboxByAddress(ctx context.Context, address string) (*domain.Inbox, error) {
	id, err := c.client.rdb.Get(ctx, addressKey(address)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	inbox, err := c.GetCachedInbox(ctx, id)
	if err != nil {
		return nil, err
	}
	// 地址索引可能落后于已轮换的收件箱
	if inbox.Address != address {
		return nil, ErrCacheMiss
	}
	return inbox, nil
}

// DeleteCachedInbox 删除收件箱缓存并递增版本，addresses 为需要一并失效的地址
func (c *Cache) DeleteCachedInbox(ctx context.Context, id string, addresses ...string) error {
	keys := make([]string, 0, len(addresses)+1)
	keys = append(keys, inboxKey(id))
	for _, address := range addresses {
		if address != "" {
			keys = append(keys, addressKey(address))
		}
	}
	_, err := c.client.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Incr(ctx, versionKey(id))
		pipe.Expire(ctx, versionKey(id), versionTTL)
		return nil
	})
	return err
}

// Ping 检查缓存连通性
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}
