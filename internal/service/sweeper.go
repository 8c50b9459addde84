package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/pool"
	"tempinbox/backend/internal/schedule"
	"tempinbox/backend/internal/storage"
)

// SweepResult 单轮清理统计
type SweepResult struct {
	Scanned int
	Expired int
	Purged  int
	Failed  int
	Orphans int64
}

// Sweeper 周期性删除已过期收件箱及其邮件。
type Sweeper struct {
	store    storage.Store
	pool     *pool.WorkerPool
	evictor  Evictor
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewSweeper 创建清理器，workers 为 nil 时在当前协程内逐个清理。
func NewSweeper(store storage.Store, workers *pool.WorkerPool, interval time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		pool:     workers,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		metrics:  metrics,
	}
}

// SetEvictor 设置订阅清理器
func (s *Sweeper) SetEvictor(evictor Evictor) {
	s.evictor = evictor
}

// Sweep 执行一轮清理。
//
// 删除以存储层的过期条件为准，扫描后被轮换的收件箱不会被误删。
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var result SweepResult

	inboxes, err := s.store.ListInboxes(ctx)
	if err != nil {
		return result, fmt.Errorf("list inboxes: %w", err)
	}
	result.Scanned = len(inboxes)

	now := s.now()
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	purge := func(id string) {
		defer wg.Done()
		var (
			purged bool
			err    = ctx.Err()
		)
		// 已取消时不再访问存储，留待下一轮
		if err == nil {
			purged, err = s.store.PurgeExpiredInbox(ctx, id, now)
		}

		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			result.Failed++
			if ctx.Err() == nil {
				s.logger.Warn("failed to purge inbox", zap.String("inbox_id", id), zap.Error(err))
			}
		case purged:
			result.Purged++
			if s.evictor != nil {
				s.evictor.Evict(id)
			}
		}
	}

	for i := range inboxes {
		if !inboxes[i].Expired(now) {
			continue
		}
		result.Expired++
		id := inboxes[i].ID
		wg.Add(1)
		if s.pool == nil || ctx.Err() != nil {
			purge(id)
			continue
		}
		if err := s.pool.Submit(ctx, func() { purge(id) }); err != nil {
			// 未进入队列的任务在当前协程执行
			purge(id)
		}
	}
	// 协程池在停止前会执行完所有已入队任务
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}

	orphans, err := s.store.PruneOrphanMessages(ctx)
	if err != nil {
		s.logger.Warn("failed to prune orphan messages", zap.Error(err))
	}
	result.Orphans = orphans

	s.metrics.RecordSweep(result.Scanned-result.Purged, result.Purged, result.Failed, result.Orphans, time.Since(start))
	if result.Purged > 0 || result.Failed > 0 || result.Orphans > 0 {
		s.logger.Info("sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("purged", result.Purged),
			zap.Int("failed", result.Failed),
			zap.Int64("orphans", result.Orphans),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return result, nil
}

// Run 按固定间隔执行清理，直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) {
	schedule.Every(ctx, "inbox-sweeper", s.interval, s.logger, func(ctx context.Context) {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	})
}
