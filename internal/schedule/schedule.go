// Package schedule 提供基于定时器的周期任务抽象。
package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task 周期执行的任务
type Task func(ctx context.Context)

// Every 按固定间隔执行任务，直到 ctx 取消。
//
// 单次执行中的 panic 会被捕获并记录，不会终止循环。
func Every(ctx context.Context, name string, interval time.Duration, logger *zap.Logger, task Task) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("starting periodic task", zap.String("task", name), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("periodic task stopped", zap.String("task", name))
			return
		case <-ticker.C:
			RunOnce(ctx, name, logger, task)
		}
	}
}

// RunOnce 执行一次任务并捕获 panic，返回是否正常结束。
func RunOnce(ctx context.Context, name string, logger *zap.Logger, task Task) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("periodic task panicked",
				zap.String("task", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			ok = false
		}
	}()
	task(ctx)
	return true
}
