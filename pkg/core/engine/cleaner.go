package engine

import (
	"context"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/LENAX/pipeline-engine/pkg/storage"
	"go.uber.org/zap"
)

// Purger Cleaner需要的存储能力
type Purger interface {
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (storage.PurgeResult, error)
}

// Cleaner 按保留期清理已结束的Workflow（对外导出）
// 只清理COMPLETED/FAILED且非定时的Workflow，连同其Task一起删除
type Cleaner struct {
	store     Purger
	retention time.Duration
	log       *zap.SugaredLogger
}

// NewCleaner 创建Cleaner，retentionDays<=0 时不清理（对外导出）
func NewCleaner(store Purger, retentionDays int) *Cleaner {
	return &Cleaner{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		log:       logger.Named("cleaner"),
	}
}

// Purge 删除now减去保留期之前结束的Workflow
func (c *Cleaner) Purge(ctx context.Context, now time.Time) (storage.PurgeResult, error) {
	if c.retention <= 0 {
		return storage.PurgeResult{}, nil
	}
	cutoff := now.Add(-c.retention)
	result, err := c.store.PurgeFinishedBefore(ctx, cutoff)
	if err != nil {
		return result, err
	}
	if result.Workflows > 0 || result.Tasks > 0 {
		c.log.Infow("已清理过期Workflow", "cutoff", cutoff.UTC(), "workflows", result.Workflows, "tasks", result.Tasks)
	}
	return result, nil
}
