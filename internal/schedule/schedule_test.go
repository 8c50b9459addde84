package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

func TestEvery_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})

	go func() {
		Every(ctx, "test", 5*time.Millisecond, zap.NewNop(), func(context.Context) {
			if runs.Inc() == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("任务未在取消后退出")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestEvery_SurvivesPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var runs atomic.Int32
	done := make(chan struct{})

	go func() {
		Every(ctx, "panicky", 5*time.Millisecond, zap.NewNop(), func(context.Context) {
			if runs.Inc() >= 2 {
				cancel()
				return
			}
			panic("first run fails")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panic 后循环应继续")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestRunOnce(t *testing.T) {
	assert.True(t, RunOnce(context.Background(), "ok", zap.NewNop(), func(context.Context) {}))
	assert.False(t, RunOnce(context.Background(), "bad", zap.NewNop(), func(context.Context) { panic("x") }))
}
