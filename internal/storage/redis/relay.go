package redis

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/hub"
)

const (
	eventChannelPrefix = "tempinbox:events:"
	evictChannelPrefix = "tempinbox:evict:"
)

// LocalHub 本实例的订阅注册表
type LocalHub interface {
	hub.Publisher
	Evict(inboxID string)
}

// Relay 通过 Redis 发布订阅在多个实例之间转发新邮件与订阅关闭事件。
//
// Publish/Evict 写入 Redis 频道；Run 订阅全部频道并转交本地 Hub，
// 因此订阅者连接在任意实例上都能收到任意实例接收的邮件，
// 收件箱在任意实例上被删除或清理时也都会收到关闭通知。
type Relay struct {
	client    *Client
	local     LocalHub
	log       *zap.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

var _ hub.Publisher = (*Relay)(nil)

// NewRelay 创建事件转发器
func NewRelay(client *Client, local LocalHub, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		client: client,
		local:  local,
		log:    log,
		ready:  make(chan struct{}),
	}
}

// Publish 发布事件；Redis 不可用时退回到本地投递
func (r *Relay) Publish(inboxID string, message *domain.Message) {
	data, err := json.Marshal(message)
	if err != nil {
		r.log.Error("failed to encode event", zap.String("inbox_id", inboxID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := r.client.rdb.Publish(ctx, eventChannelPrefix+inboxID, data).Err(); err != nil {
		r.log.Warn("redis publish failed, delivering locally",
			zap.String("inbox_id", inboxID),
			zap.Error(err),
		)
		r.local.Publish(inboxID, message)
	}
}

// Evict 广播订阅关闭；Redis 不可用时只关闭本实例的订阅
func (r *Relay) Evict(inboxID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := r.client.rdb.Publish(ctx, evictChannelPrefix+inboxID, "").Err(); err != nil {
		r.log.Warn("redis evict publish failed, evicting locally",
			zap.String("inbox_id", inboxID),
			zap.Error(err),
		)
		r.local.Evict(inboxID)
	}
}

// Ready 在订阅建立后关闭
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run 订阅事件频道直到 ctx 取消
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.rdb.PSubscribe(ctx, eventChannelPrefix+"*", evictChannelPrefix+"*")
	defer pubsub.Close()

	// 每个模式各有一条订阅确认
	for i := 0; i < 2; i++ {
		if _, err := pubsub.Receive(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.log.Info("event relay subscribed",
		zap.Strings("patterns", []string{eventChannelPrefix + "*", evictChannelPrefix + "*"}),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if inboxID, ok := strings.CutPrefix(msg.Channel, evictChannelPrefix); ok {
				r.local.Evict(inboxID)
				continue
			}
			inboxID := strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			var message domain.Message
			if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
				r.log.Warn("discarding malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			r.local.Publish(inboxID, &message)
		}
	}
}
