package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/executor"
	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/LENAX/pipeline-engine/pkg/plugin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/LENAX/pipeline-engine/pkg/core/task"

// Store Runner需要的存储能力
type Store interface {
	GetTask(ctx context.Context, id string) (*types.Task, error)
	UpdateTask(ctx context.Context, t *types.Task) error
	ListCompletedBefore(ctx context.Context, workflowID string, order int) ([]*types.Task, error)
	GetWorkflow(ctx context.Context, id string) (*types.Workflow, error)
}

// BackendFactory 按名称创建执行器，*executor.Registry 满足该接口
type BackendFactory interface {
	Create(name string) (executor.Backend, error)
}

// RunnerConfig Runner配置
type RunnerConfig struct {
	DefaultExecutor string
	Timeout         time.Duration
}

// Runner 执行单个Task并提交状态（对外导出）
type Runner struct {
	store    Store
	backends BackendFactory
	notifier plugin.Notifier
	cfg      RunnerConfig
	tracer   trace.Tracer
	log      *zap.SugaredLogger
}

// NewRunner 创建Runner（对外导出）
func NewRunner(store Store, backends BackendFactory, notifier plugin.Notifier, cfg RunnerConfig) *Runner {
	if notifier == nil {
		notifier = plugin.NopNotifier{}
	}
	if cfg.DefaultExecutor == "" {
		cfg.DefaultExecutor = executor.NameVirtualenv
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}
	return &Runner{
		store:    store,
		backends: backends,
		notifier: notifier,
		cfg:      cfg,
		tracer:   otel.Tracer(tracerName),
		log:      logger.Named("runner"),
	}
}

// Run 执行一个Task（对外导出）
// upstream为链上前一个Task的结果，首个Task为nil。上游失败时当前Task直接标记失败，不创建执行器。
// 所有Task级别的失败都体现在返回的Outcome中，只有存储等基础设施错误才设置Outcome.Err。
func (r *Runner) Run(ctx context.Context, taskID string, upstream *Outcome) (out *Outcome) {
	ctx, span := r.tracer.Start(ctx, "task.run", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	// 状态写入不受取消影响，CANCELLED也需要落库
	dbCtx := context.WithoutCancel(ctx)

	t, err := r.store.GetTask(dbCtx, taskID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load task")
		return &Outcome{TaskID: taskID, Status: types.StatusFailed, ErrorMessage: err.Error(), Err: errors.Infrastructure(err, "加载Task失败")}
	}

	ctx = WithTaskName(WithTaskID(WithWorkflowID(ctx, t.WorkflowID), t.ID), t.Name)
	log := r.log.With(logFields(ctx)...)
	span.SetAttributes(
		attribute.String("task.name", t.Name),
		attribute.String("workflow.id", t.WorkflowID),
		attribute.Int("task.order", t.Order),
	)

	workflowName := ""
	if wf, err := r.store.GetWorkflow(dbCtx, t.WorkflowID); err == nil {
		workflowName = wf.Name
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("Task执行panic", "panic", rec, "stack", string(debug.Stack()))
			msg := fmt.Sprintf("Execution failed: panic: %v", rec)
			out = r.fail(dbCtx, log, t, workflowName, msg, msg, 0)
		}
		if out != nil {
			span.SetAttributes(attribute.String("task.status", out.Status.String()))
			if out.Status == types.StatusFailed {
				span.SetStatus(codes.Error, out.ErrorMessage)
			}
		}
	}()

	if upstream.Failed() {
		root := upstream.rootError()
		log.Infow("上游Task失败，跳过执行", "upstream", upstream.TaskName)
		return r.fail(dbCtx, log, t, workflowName, UpstreamFailurePrefix+root, root, 0)
	}

	t.Status = types.StatusRunning
	t.StartedAt = types.TimePtr(time.Now())
	t.CompletedAt = nil
	t.ErrorMessage = ""
	if err := r.store.UpdateTask(dbCtx, t); err != nil {
		return r.infraFailure(t, err)
	}
	r.notify(dbCtx, log, plugin.Notification{
		Event:        plugin.EventTaskStarted,
		WorkflowID:   t.WorkflowID,
		WorkflowName: workflowName,
		TaskID:       t.ID,
		TaskName:     t.Name,
		Priority:     plugin.PriorityLow,
	})

	completed, err := r.store.ListCompletedBefore(dbCtx, t.WorkflowID, t.Order)
	if err != nil {
		return r.infraFailure(t, err)
	}
	previous := pipeline.Collect(completed)

	backendName := t.Executor
	if backendName == "" {
		backendName = r.cfg.DefaultExecutor
	}
	span.SetAttributes(attribute.String("task.executor", backendName))

	backend, err := r.backends.Create(backendName)
	if err != nil {
		log.Warnw("创建执行器失败", "executor", backendName, "error", err)
		return r.fail(dbCtx, log, t, workflowName, err.Error(), err.Error(), 0)
	}
	defer backend.Cleanup()

	log.Infow("开始执行Task", "executor", backendName, "upstream", len(previous))
	result := backend.Execute(ctx, t.ScriptContent, t.Requirements, r.cfg.Timeout, previous)

	switch {
	case ctx.Err() != nil:
		return r.finish(dbCtx, log, t, types.StatusCancelled, result)
	case result.Success:
		out := r.finish(dbCtx, log, t, types.StatusCompleted, result)
		if out.Err == nil {
			r.notify(dbCtx, log, plugin.Notification{
				Event:        plugin.EventTaskCompleted,
				WorkflowID:   t.WorkflowID,
				WorkflowName: workflowName,
				TaskID:       t.ID,
				TaskName:     t.Name,
				Priority:     plugin.PriorityNormal,
				Metadata: map[string]any{
					"execution_time": result.ExecutionTime,
					"output_size":    len(result.Output),
				},
			})
		}
		return out
	default:
		out := r.finish(dbCtx, log, t, types.StatusFailed, result)
		if out.Err == nil {
			r.notifyFailed(dbCtx, log, t, workflowName, result.ErrorMessage, result.ExecutionTime)
		}
		return out
	}
}

// finish 写入执行结果
func (r *Runner) finish(ctx context.Context, log *zap.SugaredLogger, t *types.Task, status types.Status, result *types.ExecutionResult) *Outcome {
	t.Status = status
	t.CompletedAt = types.TimePtr(time.Now())
	t.Output = result.Output
	t.TaskOutputs = result.TaskOutputs
	if t.TaskOutputs == nil {
		t.TaskOutputs = map[string]any{}
	}
	if status == types.StatusCompleted {
		t.ErrorMessage = ""
	} else {
		t.ErrorMessage = result.ErrorMessage
	}
	if err := r.store.UpdateTask(ctx, t); err != nil {
		return r.infraFailure(t, err)
	}

	if status == types.StatusCompleted {
		log.Infow("Task执行完成", "execution_time", result.ExecutionTime, "outputs", len(t.TaskOutputs))
	} else {
		log.Warnw("Task执行未成功", "status", status, "error", t.ErrorMessage, "cause", result.Cause)
	}
	return &Outcome{
		TaskID:        t.ID,
		TaskName:      t.Name,
		Status:        status,
		ErrorMessage:  t.ErrorMessage,
		ExecutionTime: result.ExecutionTime,
		TaskOutputs:   t.TaskOutputs,
	}
}

// fail 不经过执行器直接标记失败（上游短路、执行器不可用、panic）
func (r *Runner) fail(ctx context.Context, log *zap.SugaredLogger, t *types.Task, workflowName, message, root string, executionTime float64) *Outcome {
	t.Status = types.StatusFailed
	t.ErrorMessage = message
	t.CompletedAt = types.TimePtr(time.Now())
	if t.TaskOutputs == nil {
		t.TaskOutputs = map[string]any{}
	}
	if err := r.store.UpdateTask(ctx, t); err != nil {
		return r.infraFailure(t, err)
	}
	r.notifyFailed(ctx, log, t, workflowName, message, executionTime)
	return &Outcome{
		TaskID:        t.ID,
		TaskName:      t.Name,
		Status:        types.StatusFailed,
		ErrorMessage:  message,
		ExecutionTime: executionTime,
		TaskOutputs:   t.TaskOutputs,
		RootError:     root,
	}
}

func (r *Runner) infraFailure(t *types.Task, err error) *Outcome {
	r.log.Errorw("写入Task状态失败", "task_id", t.ID, "error", err)
	return &Outcome{
		TaskID:       t.ID,
		TaskName:     t.Name,
		Status:       t.Status,
		ErrorMessage: err.Error(),
		Err:          errors.Infrastructure(err, "写入Task状态失败"),
	}
}

func (r *Runner) notifyFailed(ctx context.Context, log *zap.SugaredLogger, t *types.Task, workflowName, message string, executionTime float64) {
	r.notify(ctx, log, plugin.Notification{
		Event:        plugin.EventTaskFailed,
		WorkflowID:   t.WorkflowID,
		WorkflowName: workflowName,
		TaskID:       t.ID,
		TaskName:     t.Name,
		Priority:     plugin.PriorityHigh,
		ErrorMessage: message,
		Metadata:     map[string]any{"execution_time": executionTime},
	})
}

// notify 通知失败只记录日志
func (r *Runner) notify(ctx context.Context, log *zap.SugaredLogger, n plugin.Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warnw("发送通知panic", "event", n.Event, "panic", rec)
		}
	}()
	for _, res := range r.notifier.Notify(ctx, n) {
		if !res.Success && res.Error != "" {
			log.Debugw("通知投递失败", "event", n.Event, "provider", res.Provider, "error", res.Error)
		}
	}
}
