package engine

import (
	"context"
	"strings"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/plugin"
	"github.com/robfig/cron/v3"
)

// cronParser 标准5段Cron表达式：分 时 日 月 周
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron 校验Cron表达式：必须是5段且可解析（对外导出）
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return errors.WithHint(
			errors.Configurationf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields)),
			"format: minute hour day-of-month month day-of-week",
		)
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return errors.Mark(errors.Wrapf(err, "invalid cron expression %q", expr), errors.ErrConfiguration)
	}
	return nil
}

// ComputeNextRun 计算from之后（不含）的下一次触发时间，结果为UTC（对外导出）
// 表达式按tz时区解释，tz为空时使用UTC
func ComputeNextRun(cronExpr, tz string, from time.Time) (time.Time, error) {
	if err := ValidateCron(cronExpr); err != nil {
		return time.Time{}, err
	}
	if tz == "" {
		tz = types.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, errors.Mark(errors.Wrapf(err, "invalid timezone %q", tz), errors.ErrConfiguration)
	}
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, errors.Mark(errors.Wrapf(err, "invalid cron expression %q", cronExpr), errors.ErrConfiguration)
	}
	next := schedule.Next(from.In(loc))
	if next.IsZero() {
		return time.Time{}, errors.Configurationf("cron expression %q never fires", cronExpr)
	}
	return next.UTC(), nil
}

// EnableSchedule 开启定时调度并计算下次运行时间（对外导出）
// 只写入调度字段，不影响正在进行的运行
func (e *Engine) EnableSchedule(ctx context.Context, workflowID, cronExpr, tz string) (*types.Workflow, error) {
	if tz == "" {
		tz = types.DefaultTimezone
	}
	next, err := ComputeNextRun(cronExpr, tz, time.Now())
	if err != nil {
		return nil, err
	}
	schedule := &types.Workflow{
		ID:             workflowID,
		IsScheduled:    true,
		CronExpression: cronExpr,
		Timezone:       tz,
		NextRunAt:      types.TimePtr(next),
	}
	if err := e.store.UpdateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	e.log.Infow("定时调度已开启", "workflow_id", workflowID, "cron", cronExpr, "timezone", tz, "next_run_at", next)
	return e.store.GetWorkflow(ctx, workflowID)
}

// DisableSchedule 关闭定时调度，保留Cron表达式和时区（对外导出）
func (e *Engine) DisableSchedule(ctx context.Context, workflowID string) (*types.Workflow, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	schedule := &types.Workflow{
		ID:             workflowID,
		IsScheduled:    false,
		CronExpression: wf.CronExpression,
		Timezone:       wf.Timezone,
	}
	if err := e.store.UpdateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	e.log.Infow("定时调度已关闭", "workflow_id", workflowID)
	return e.store.GetWorkflow(ctx, workflowID)
}

// Tick 扫描到期的定时Workflow并派发，返回成功派发的数量（对外导出）
// 单个Workflow的错误只记录日志，不影响其余Workflow。
// 扫描之后已被手动派发或关闭调度的Workflow会被跳过。
func (e *Engine) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := e.store.ListDueWorkflows(ctx, now)
	if err != nil {
		return 0, errors.Infrastructure(err, "查询到期Workflow失败")
	}

	dispatched := 0
	for _, wf := range due {
		log := e.log.With("workflow_id", wf.ID, "name", wf.Name)

		next, err := ComputeNextRun(wf.CronExpression, wf.Timezone, now)
		if err != nil {
			log.Warnw("计算下次运行时间失败，稍后重试", "cron", wf.CronExpression, "timezone", wf.Timezone, "error", err)
			next = now.Add(e.opts.RetryInterval)
		}
		claimed, err := e.store.ClaimScheduledRun(ctx, wf.ID, now, next)
		if err != nil {
			log.Errorw("更新调度信息失败", "error", err)
			continue
		}
		if !claimed {
			log.Infow("Workflow正在运行或已关闭调度，跳过本次触发")
			continue
		}
		runCount := wf.RunCount + 1

		e.notify(ctx, plugin.Notification{
			Event:        plugin.EventWorkflowScheduled,
			WorkflowID:   wf.ID,
			WorkflowName: wf.Name,
			Priority:     plugin.PriorityLow,
			Metadata: map[string]any{
				"run_count":   runCount,
				"next_run_at": next.Format(time.RFC3339),
			},
		})

		if _, err := e.Dispatch(ctx, wf.ID); err != nil {
			log.Errorw("派发定时Workflow失败", "error", err)
			continue
		}
		log.Infow("定时Workflow已派发", "run_count", runCount, "next_run_at", next)
		dispatched++
	}
	return dispatched, nil
}
