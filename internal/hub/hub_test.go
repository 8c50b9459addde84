package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/monitoring"
)

func newTestHub(buffer int) *Hub {
	return New(buffer, zap.NewNop(), nil)
}

func TestHub_PublishWithoutSubscriber(t *testing.T) {
	h := newTestHub(1)
	done := make(chan struct{})
	go func() {
		h.Publish("nobody", &domain.Message{ID: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish 不应阻塞")
	}
	assert.Equal(t, 0, h.Count())
}

func TestHub_SubscribeAndPublish(t *testing.T) {
	h := newTestHub(4)
	sub := h.Subscribe("inbox-1")
	other := h.Subscribe("inbox-2")

	h.Publish("inbox-1", &domain.Message{ID: 7, Subject: "hello"})

	select {
	case msg := <-sub.C():
		assert.Equal(t, int64(7), msg.ID)
	case <-time.After(time.Second):
		t.Fatal("未收到事件")
	}
	assert.Len(t, other.C(), 0, "其他收件箱不应收到事件")
}

func TestHub_SecondSubscribeReplacesFirst(t *testing.T) {
	h := newTestHub(1)
	first := h.Subscribe("inbox-1")
	second := h.Subscribe("inbox-1")

	_, open := <-first.C()
	assert.False(t, open, "旧订阅应被关闭")
	assert.ErrorIs(t, first.Err(), ErrReplaced)
	assert.Equal(t, 1, h.Count())

	// 旧句柄取消订阅不应影响新订阅
	h.Unsubscribe(first)
	assert.Equal(t, 1, h.Count())

	h.Publish("inbox-1", &domain.Message{ID: 1})
	msg := <-second.C()
	assert.Equal(t, int64(1), msg.ID)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := newTestHub(1)
	sub := h.Subscribe("inbox-1")
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	_, open := <-sub.C()
	assert.False(t, open)
	assert.NoError(t, sub.Err())
	assert.Equal(t, 0, h.Count())
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	h := New(1, zap.NewNop(), metrics)
	sub := h.Subscribe("inbox-1")

	h.Publish("inbox-1", &domain.Message{ID: 1})
	h.Publish("inbox-1", &domain.Message{ID: 2}) // 缓冲已满

	msg, open := <-sub.C()
	require.True(t, open)
	assert.Equal(t, int64(1), msg.ID)
	_, open = <-sub.C()
	assert.False(t, open)
	assert.ErrorIs(t, sub.Err(), domain.ErrTransportFailure)
	assert.Equal(t, 0, h.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsDropped))
}

func TestHub_EvictAndClose(t *testing.T) {
	h := newTestHub(1)
	a := h.Subscribe("a")
	b := h.Subscribe("b")

	h.Evict("a")
	h.Evict("missing")
	_, open := <-a.C()
	assert.False(t, open)
	assert.ErrorIs(t, a.Err(), ErrEvicted)

	h.Close()
	_, open = <-b.C()
	assert.False(t, open)
	assert.ErrorIs(t, b.Err(), ErrClosed)

	late := h.Subscribe("c")
	_, open = <-late.C()
	assert.False(t, open)
	assert.Equal(t, 0, h.Count())
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := newTestHub(8)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := h.Subscribe("shared")
			for range sub.C() {
			}
		}()
		go func(i int) {
			defer wg.Done()
			h.Publish("shared", &domain.Message{ID: int64(i)})
		}(i)
	}
	// 最后一个订阅需要手动关闭才能让其消费协程退出
	time.Sleep(20 * time.Millisecond)
	h.Close()
	wg.Wait()
}
