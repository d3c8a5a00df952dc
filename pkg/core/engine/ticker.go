package engine

import (
	"context"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/logger"
	"go.uber.org/zap"
)

// Ticker 周期性触发定时调度和过期清理（对外导出）
type Ticker struct {
	engine          *Engine
	cleaner         *Cleaner
	pollInterval    time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	log             *zap.SugaredLogger
}

// NewTicker 创建Ticker（对外导出）
// cleaner为nil时不做清理
func NewTicker(eng *Engine, cleaner *Cleaner, pollInterval, cleanupInterval time.Duration) *Ticker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &Ticker{
		engine:          eng,
		cleaner:         cleaner,
		pollInterval:    pollInterval,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		log:             logger.Named("ticker"),
	}
}

// Run 阻塞运行直到ctx取消
func (t *Ticker) Run(ctx context.Context) {
	t.log.Infow("定时器已启动", "poll_interval", t.pollInterval, "cleanup_interval", t.cleanupInterval)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	var lastCleanup time.Time
	for {
		now := t.now()
		t.tick(ctx, now)
		if t.cleaner != nil && now.Sub(lastCleanup) >= t.cleanupInterval {
			if _, err := t.cleaner.Purge(ctx, now); err != nil {
				t.log.Errorw("清理过期Workflow失败", "error", err)
			}
			lastCleanup = now
		}

		select {
		case <-ctx.Done():
			t.log.Info("定时器已停止")
			return
		case <-ticker.C:
		}
	}
}

func (t *Ticker) tick(ctx context.Context, now time.Time) {
	dispatched, err := t.engine.Tick(ctx, now)
	if err != nil {
		t.log.Errorw("定时调度扫描失败", "error", err)
		return
	}
	if dispatched > 0 {
		t.log.Infow("定时调度扫描完成", "dispatched", dispatched)
	}
}
