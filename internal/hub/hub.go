// Package hub 按收件箱分发新邮件事件。
package hub

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/monitoring"
)

// 订阅被关闭的原因
var (
	ErrReplaced = errors.New("subscription replaced by a newer subscriber")
	ErrEvicted  = errors.New("inbox removed")
	ErrClosed   = errors.New("hub closed")
)

// Publisher 发布新邮件事件。
type Publisher interface {
	Publish(inboxID string, message *domain.Message)
}

// Subscription 表示某个收件箱的一个实时订阅。
//
// C 在订阅被移除时关闭，Err 返回关闭原因。
type Subscription struct {
	inboxID string
	c       chan *domain.Message
	err     error
}

// C 返回事件通道。
func (s *Subscription) C() <-chan *domain.Message {
	return s.c
}

// InboxID 返回订阅的收件箱 ID。
func (s *Subscription) InboxID() string {
	return s.inboxID
}

// Err 返回订阅被关闭的原因，仅在 C 关闭后有意义。
func (s *Subscription) Err() error {
	return s.err
}

// Hub 持有收件箱到订阅的映射，每个收件箱最多一个活跃订阅。
type Hub struct {
	mu         sync.Mutex
	subs       map[string]*Subscription
	bufferSize int
	closed     bool
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

var _ Publisher = (*Hub)(nil)

// New 创建 Hub，bufferSize 为每个订阅的事件缓冲长度。
func New(bufferSize int, logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
		metrics:    metrics,
	}
}

// Subscribe 订阅收件箱，已有订阅会被替换并关闭。
func (h *Hub) Subscribe(inboxID string) *Subscription {
	sub := &Subscription{
		inboxID: inboxID,
		c:       make(chan *domain.Message, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.err = ErrClosed
		close(sub.c)
		return sub
	}
	if old, ok := h.subs[inboxID]; ok {
		h.removeLocked(old, ErrReplaced)
		h.logger.Debug("subscription replaced", zap.String("inbox_id", inboxID))
	}
	h.subs[inboxID] = sub
	h.metrics.UpdateSubscribers(len(h.subs))
	return sub
}

// Unsubscribe 取消订阅；订阅已被替换或移除时不做任何事。
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[sub.inboxID] == sub {
		h.removeLocked(sub, nil)
	}
}

// Publish 非阻塞投递事件；无订阅时直接返回，缓冲已满的订阅会被移除。
func (h *Hub) Publish(inboxID string, message *domain.Message) {
	if message == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[inboxID]
	if !ok {
		return
	}
	select {
	case sub.c <- message:
		h.metrics.RecordEventPublished()
	default:
		h.removeLocked(sub, domain.ErrTransportFailure)
		h.metrics.RecordEventDropped()
		h.logger.Warn("subscriber too slow, dropped",
			zap.String("inbox_id", inboxID),
			zap.Int64("message_id", message.ID),
		)
	}
}

// Evict 关闭收件箱的订阅，用于收件箱删除或过期。
func (h *Hub) Evict(inboxID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[inboxID]; ok {
		h.removeLocked(sub, ErrEvicted)
	}
}

// Count 返回当前订阅数。
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close 关闭全部订阅，之后的 Subscribe 会立即得到已关闭的订阅。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		h.removeLocked(sub, ErrClosed)
	}
	h.closed = true
}

// removeLocked 调用方必须持有 h.mu；发送同样在锁内进行，因此关闭通道是安全的。
func (h *Hub) removeLocked(sub *Subscription, reason error) {
	delete(h.subs, sub.inboxID)
	sub.err = reason
	close(sub.c)
	h.metrics.UpdateSubscribers(len(h.subs))
}
