package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/executor"
	"github.com/LENAX/pipeline-engine/pkg/core/queue"
	"github.com/LENAX/pipeline-engine/pkg/core/task"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/LENAX/pipeline-engine/pkg/plugin"
	"github.com/LENAX/pipeline-engine/pkg/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName = "github.com/LENAX/pipeline-engine/pkg/core/engine"

	// MessageTasksFailed 存在失败Task时Workflow的错误信息
	MessageTasksFailed = "One or more tasks failed"
	// MessageInterrupted 引擎重启时仍处于RUNNING的Workflow的错误信息
	MessageInterrupted = "Workflow interrupted by engine restart"
)

// errRunInactive 链所属的运行已被取消或被新的派发替代
var errRunInactive = errors.New("workflow run is no longer active")

// Backends 执行器注册表，*executor.Registry 满足该接口
type Backends interface {
	task.BackendFactory
	Has(name string) bool
	Names() []string
}

// Options Engine运行参数（对外导出）
type Options struct {
	// DefaultExecutor Task未指定执行器时使用
	DefaultExecutor string
	// TaskTimeout 单个Task的执行超时
	TaskTimeout time.Duration
	// RetryInterval 计算下次运行时间失败时的重试间隔
	RetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultExecutor == "" {
		o.DefaultExecutor = executor.NameVirtualenv
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = time.Hour
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 5 * time.Minute
	}
	return o
}

// Engine 工作流编排引擎（对外导出）
// 负责Workflow的创建、派发、收尾、取消以及定时调度。
// 每次派发生成一条Chain投递到WorkQueue，Dispatch不等待执行结束。
type Engine struct {
	store    storage.Store
	queue    queue.WorkQueue
	backends Backends
	runner   *task.Runner
	notifier plugin.Notifier
	opts     Options
	tracer   trace.Tracer
	log      *zap.SugaredLogger

	// 以下由EngineBuilder装配，直接NewEngine时为空
	plugins  plugin.PluginManager
	eventBus *plugin.EventBusPlugin
	cleaner  *Cleaner
	ticker   *Ticker
	closers  []func() error

	// statusMu 串行化Workflow终态写入（Finalize/Cancel/finalizeOnError）
	statusMu   sync.Mutex
	running    bool
	stopped    bool
	stopTicker context.CancelFunc
	tickerDone chan struct{}
	mu         sync.Mutex
}

// NewEngine 创建Engine（对外导出）
// notifier为nil时不发送通知
func NewEngine(store storage.Store, wq queue.WorkQueue, backends Backends, notifier plugin.Notifier, opts Options) *Engine {
	opts = opts.withDefaults()
	if notifier == nil {
		notifier = plugin.NopNotifier{}
	}
	return &Engine{
		store:    store,
		queue:    wq,
		backends: backends,
		runner: task.NewRunner(store, backends, notifier, task.RunnerConfig{
			DefaultExecutor: opts.DefaultExecutor,
			Timeout:         opts.TaskTimeout,
		}),
		notifier: notifier,
		opts:     opts,
		tracer:   otel.Tracer(tracerName),
		log:      logger.Named("engine"),
	}
}

// Start 启动引擎（对外导出）
// 进程重启后，上次遗留的RUNNING Workflow已没有对应的Chain，统一标记为FAILED
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return errors.New("engine already stopped")
	}
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	recovered, err := e.recoverInterrupted(ctx)
	if err != nil {
		return err
	}

	if e.ticker != nil {
		tickerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		e.mu.Lock()
		e.stopTicker = cancel
		e.tickerDone = done
		e.mu.Unlock()
		go func() {
			defer close(done)
			e.ticker.Run(tickerCtx)
		}()
	}
	e.log.Infow("引擎已启动", "default_executor", e.opts.DefaultExecutor, "executors", e.backends.Names(), "recovered", recovered)
	return nil
}

// Stop 停止引擎，取消所有正在执行的Chain并释放存储等资源（对外导出）
// 未调用Start时同样会释放资源，重复调用无副作用
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.running = false
	stopTicker, tickerDone := e.stopTicker, e.tickerDone
	e.mu.Unlock()

	if stopTicker != nil {
		stopTicker()
		<-tickerDone
	}
	e.queue.Stop()
	if e.eventBus != nil {
		if err := e.eventBus.Close(); err != nil {
			e.log.Warnw("关闭事件总线失败", "error", err)
		}
	}
	for _, closeFn := range e.closers {
		if err := closeFn(); err != nil {
			e.log.Warnw("释放资源失败", "error", err)
		}
	}
	e.log.Info("引擎已停止")
}

// PluginManager 通知插件管理器，直接NewEngine时为nil（对外导出）
func (e *Engine) PluginManager() plugin.PluginManager {
	return e.plugins
}

// EventBus 实时事件总线，直接NewEngine时为nil（对外导出）
func (e *Engine) EventBus() *plugin.EventBusPlugin {
	return e.eventBus
}

// Purge 按保留期清理已结束的Workflow
func (e *Engine) Purge(ctx context.Context) (storage.PurgeResult, error) {
	if e.cleaner == nil {
		return storage.PurgeResult{}, nil
	}
	return e.cleaner.Purge(ctx, time.Now())
}

func (e *Engine) recoverInterrupted(ctx context.Context) (int, error) {
	workflows, err := e.store.ListWorkflows(ctx)
	if err != nil {
		return 0, errors.Infrastructure(err, "加载Workflow列表失败")
	}
	count := 0
	for _, wf := range workflows {
		if wf.Status != types.StatusRunning {
			continue
		}
		tasks, err := e.store.ListTasks(ctx, wf.ID)
		if err != nil {
			return count, errors.Infrastructure(err, "加载Task列表失败")
		}
		now := time.Now()
		for _, t := range tasks {
			if t.Status != types.StatusRunning {
				continue
			}
			t.Status = types.StatusFailed
			t.ErrorMessage = MessageInterrupted
			t.CompletedAt = types.TimePtr(now)
			if err := e.store.UpdateTask(ctx, t); err != nil {
				return count, errors.Infrastructure(err, "更新Task状态失败")
			}
		}
		wf.Status = types.StatusFailed
		wf.ErrorMessage = MessageInterrupted
		wf.CompletedAt = types.TimePtr(now)
		if err := e.store.UpdateWorkflowStatus(ctx, wf); err != nil {
			return count, errors.Infrastructure(err, "更新Workflow状态失败")
		}
		e.log.Warnw("回收中断的Workflow", "workflow_id", wf.ID, "name", wf.Name)
		count++
	}
	return count, nil
}

// CreateWorkflow 保存Workflow及其Task（对外导出）
// 定时Workflow会校验Cron表达式并计算首次运行时间
func (e *Engine) CreateWorkflow(ctx context.Context, wf *types.Workflow, tasks []*types.Task) (*types.Workflow, error) {
	if wf == nil || strings.TrimSpace(wf.Name) == "" {
		return nil, errors.Mark(errors.New("workflow name is required"), errors.ErrInvalidRequest)
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Timezone == "" {
		wf.Timezone = types.DefaultTimezone
	}
	if wf.Status == "" {
		wf.Status = types.StatusPending
	}
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	if wf.IsScheduled {
		next, err := ComputeNextRun(wf.CronExpression, wf.Timezone, now)
		if err != nil {
			return nil, err
		}
		wf.NextRunAt = types.TimePtr(next)
	}

	for _, t := range tasks {
		if err := e.validateTask(t); err != nil {
			return nil, err
		}
		t.WorkflowID = wf.ID
	}
	if err := e.store.CreateWorkflow(ctx, wf, tasks); err != nil {
		return nil, err
	}
	e.log.Infow("Workflow已创建", "workflow_id", wf.ID, "name", wf.Name, "tasks", len(tasks), "scheduled", wf.IsScheduled)
	return wf, nil
}

// AddTask 向Workflow添加Task，运行中的Workflow拒绝修改（对外导出）
func (e *Engine) AddTask(ctx context.Context, workflowID string, t *types.Task) (*types.Task, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status == types.StatusRunning {
		return nil, errors.Mark(errors.Newf("workflow %s is running and cannot be modified", workflowID), errors.ErrConflict)
	}
	if err := e.validateTask(t); err != nil {
		return nil, err
	}
	t.WorkflowID = workflowID
	if err := e.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RemoveTask 从Workflow删除Task（对外导出）
func (e *Engine) RemoveTask(ctx context.Context, workflowID, taskID string) error {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status == types.StatusRunning {
		return errors.Mark(errors.Newf("workflow %s is running and cannot be modified", workflowID), errors.ErrConflict)
	}
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.WorkflowID != workflowID {
		return errors.Mark(errors.Newf("task %s not found in workflow %s", taskID, workflowID), errors.ErrNotFound)
	}
	return e.store.DeleteTask(ctx, taskID)
}

// DeleteWorkflow 删除Workflow及其Task（对外导出）
func (e *Engine) DeleteWorkflow(ctx context.Context, workflowID string) error {
	if err := e.store.DeleteWorkflow(ctx, workflowID); err != nil {
		return err
	}
	e.log.Infow("Workflow已删除", "workflow_id", workflowID)
	return nil
}

// GetWorkflow 查询Workflow（对外导出）
func (e *Engine) GetWorkflow(ctx context.Context, workflowID string) (*types.Workflow, error) {
	return e.store.GetWorkflow(ctx, workflowID)
}

// ListWorkflows 查询全部Workflow（对外导出）
func (e *Engine) ListWorkflows(ctx context.Context) ([]*types.Workflow, error) {
	return e.store.ListWorkflows(ctx)
}

// ListTasks 查询Workflow下的Task，按执行顺序排列（对外导出）
func (e *Engine) ListTasks(ctx context.Context, workflowID string) ([]*types.Task, error) {
	if _, err := e.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return e.store.ListTasks(ctx, workflowID)
}

// Executors 可用的执行器名称
func (e *Engine) Executors() []string {
	return e.backends.Names()
}

// DefaultExecutor 默认执行器名称
func (e *Engine) DefaultExecutor() string {
	return e.opts.DefaultExecutor
}

func (e *Engine) validateTask(t *types.Task) error {
	if t == nil || strings.TrimSpace(t.Name) == "" {
		return errors.Mark(errors.New("task name is required"), errors.ErrInvalidRequest)
	}
	if t.Executor != "" && !e.backends.Has(t.Executor) {
		return errors.WithHintf(
			errors.Configurationf("unknown executor %q for task %s", t.Executor, t.Name),
			"available executors: %v", e.backends.Names(),
		)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = types.StatusPending
	}
	if t.Requirements == nil {
		t.Requirements = []string{}
	}
	if t.TaskOutputs == nil {
		t.TaskOutputs = map[string]any{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Dispatch 派发一次Workflow运行，投递Chain后立即返回链ID（对外导出）
// 已在运行时返回 errors.ErrConflict。派发途中的错误会把Workflow标记为FAILED。
func (e *Engine) Dispatch(ctx context.Context, workflowID string) (handle string, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.dispatch", trace.WithAttributes(attribute.String("workflow.id", workflowID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	handle = uuid.NewString()
	wf, err := e.store.MarkWorkflowRunning(ctx, workflowID, time.Now(), handle)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("workflow.name", wf.Name), attribute.String("workflow.handle", handle))
	log := e.log.With("workflow_id", wf.ID, "handle", handle)

	if err := e.store.ResetTasks(ctx, wf.ID); err != nil {
		return "", e.failDispatch(ctx, wf.ID, handle, errors.Infrastructure(err, "重置Task失败"))
	}
	e.notify(ctx, plugin.Notification{
		Event:        plugin.EventWorkflowStarted,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Priority:     plugin.PriorityNormal,
	})

	tasks, err := e.store.ListTasks(ctx, wf.ID)
	if err != nil {
		return "", e.failDispatch(ctx, wf.ID, handle, errors.Infrastructure(err, "加载Task失败"))
	}
	types.SortTasks(tasks)
	span.SetAttributes(attribute.Int("workflow.tasks", len(tasks)))

	if len(tasks) == 0 {
		log.Infow("Workflow没有Task，直接完成")
		if err := e.finalize(ctx, wf.ID, handle); err != nil {
			return "", e.failDispatch(ctx, wf.ID, handle, err)
		}
		return handle, nil
	}

	chain := &queue.Chain{
		ID:      handle,
		Links:   make([]queue.Link, 0, len(tasks)+1),
		OnError: e.finalizeOnError(wf.ID, handle),
	}
	for _, t := range tasks {
		chain.Links = append(chain.Links, e.taskLink(wf.ID, handle, t.ID))
	}
	chain.Links = append(chain.Links, func(ctx context.Context, _ any) (any, error) {
		return nil, e.finalize(ctx, wf.ID, handle)
	})

	if err := e.queue.Submit(chain); err != nil {
		return "", e.failDispatch(ctx, wf.ID, handle, errors.Infrastructure(err, "投递Chain失败"))
	}
	log.Infow("Workflow已派发", "name", wf.Name, "tasks", len(tasks))
	return handle, nil
}

// taskLink 链上执行一个Task的单元
// 执行前确认Workflow仍在以该handle运行，派发与提交之间发生的取消在这里生效
func (e *Engine) taskLink(workflowID, handle, taskID string) queue.Link {
	return func(ctx context.Context, prev any) (any, error) {
		wf, err := e.store.GetWorkflow(context.WithoutCancel(ctx), workflowID)
		if err != nil {
			return prev, errors.Infrastructure(err, "加载Workflow失败")
		}
		if !activeRun(wf, handle) {
			e.log.Infow("Workflow运行已结束，跳过剩余Task", "workflow_id", workflowID, "handle", handle, "status", wf.Status)
			return prev, errRunInactive
		}
		upstream, _ := prev.(*task.Outcome)
		ctx = task.WithExecutionHandle(task.WithWorkflowID(ctx, workflowID), handle)
		out := e.runner.Run(ctx, taskID, upstream)
		if out.Err != nil {
			return out, out.Err
		}
		return out, nil
	}
}

// failDispatch 派发失败：标记Workflow为FAILED并返回原始错误
// 运行已被取消或替代时不覆盖其状态
func (e *Engine) failDispatch(ctx context.Context, workflowID, handle string, cause error) error {
	dbCtx := context.WithoutCancel(ctx)
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	wf, err := e.store.GetWorkflow(dbCtx, workflowID)
	if err != nil {
		e.log.Errorw("派发失败后加载Workflow出错", "workflow_id", workflowID, "error", err, "cause", cause)
		return cause
	}
	if !activeRun(wf, handle) {
		e.log.Warnw("Workflow派发失败，运行已结束", "workflow_id", workflowID, "status", wf.Status, "error", cause)
		return cause
	}
	wf.Status = types.StatusFailed
	wf.ErrorMessage = cause.Error()
	wf.CompletedAt = types.TimePtr(time.Now())
	if err := e.store.UpdateWorkflowStatus(dbCtx, wf); err != nil {
		e.log.Errorw("标记Workflow失败状态时出错", "workflow_id", wf.ID, "error", err)
	}
	e.notify(dbCtx, plugin.Notification{
		Event:        plugin.EventWorkflowFailed,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Priority:     plugin.PriorityHigh,
		ErrorMessage: wf.ErrorMessage,
	})
	e.log.Errorw("Workflow派发失败", "workflow_id", wf.ID, "error", cause)
	return cause
}

// Finalize 根据Task状态决定Workflow终态（对外导出）
// 已是终态时不做任何修改；存在FAILED的Task则FAILED；全部COMPLETED则COMPLETED；否则保持不变
func (e *Engine) Finalize(ctx context.Context, workflowID string) error {
	return e.finalize(ctx, workflowID, "")
}

// finalize handle非空时只收尾该次运行，Workflow已被重新派发则不做修改
func (e *Engine) finalize(ctx context.Context, workflowID, handle string) error {
	dbCtx := context.WithoutCancel(ctx)
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	wf, err := e.store.GetWorkflow(dbCtx, workflowID)
	if err != nil {
		return errors.Infrastructure(err, "加载Workflow失败")
	}
	if wf.IsTerminal() || (handle != "" && wf.ExecutionHandle != handle) {
		return nil
	}
	tasks, err := e.store.ListTasks(dbCtx, workflowID)
	if err != nil {
		return errors.Infrastructure(err, "加载Task失败")
	}

	anyFailed, allCompleted := false, true
	for _, t := range tasks {
		if t.Status == types.StatusFailed {
			anyFailed = true
		}
		if t.Status != types.StatusCompleted {
			allCompleted = false
		}
	}

	switch {
	case anyFailed:
		wf.Status = types.StatusFailed
		wf.ErrorMessage = MessageTasksFailed
	case allCompleted:
		wf.Status = types.StatusCompleted
		wf.ErrorMessage = ""
	default:
		e.log.Debugw("Workflow仍有未结束的Task，保持当前状态", "workflow_id", workflowID)
		return nil
	}
	wf.CompletedAt = types.TimePtr(time.Now())
	if err := e.store.UpdateWorkflowStatus(dbCtx, wf); err != nil {
		return errors.Infrastructure(err, "更新Workflow状态失败")
	}

	if wf.Status == types.StatusCompleted {
		e.log.Infow("Workflow执行完成", "workflow_id", wf.ID, "tasks", len(tasks))
		e.notify(dbCtx, plugin.Notification{
			Event:        plugin.EventWorkflowCompleted,
			WorkflowID:   wf.ID,
			WorkflowName: wf.Name,
			Priority:     plugin.PriorityNormal,
			Metadata:     map[string]any{"total_tasks": len(tasks)},
		})
	} else {
		e.log.Warnw("Workflow执行失败", "workflow_id", wf.ID, "error", wf.ErrorMessage)
		e.notify(dbCtx, plugin.Notification{
			Event:        plugin.EventWorkflowFailed,
			WorkflowID:   wf.ID,
			WorkflowName: wf.Name,
			Priority:     plugin.PriorityHigh,
			ErrorMessage: wf.ErrorMessage,
			Metadata:     map[string]any{"total_tasks": len(tasks)},
		})
	}
	return nil
}

// finalizeOnError Chain出错时的收尾：先按Task状态收尾，仍未结束则按基础设施错误标记FAILED，
// 停留在RUNNING的Task一并标记为FAILED
func (e *Engine) finalizeOnError(workflowID, handle string) queue.ErrorLink {
	return func(ctx context.Context, cause error) {
		dbCtx := context.WithoutCancel(ctx)
		if err := e.finalize(dbCtx, workflowID, handle); err != nil {
			e.log.Errorw("Chain出错后收尾失败", "workflow_id", workflowID, "error", err)
		}

		e.statusMu.Lock()
		defer e.statusMu.Unlock()
		wf, err := e.store.GetWorkflow(dbCtx, workflowID)
		if err != nil {
			e.log.Errorw("Chain出错后加载Workflow失败", "workflow_id", workflowID, "error", err)
			return
		}
		if !activeRun(wf, handle) {
			return
		}
		wf.Status = types.StatusFailed
		wf.ErrorMessage = cause.Error()
		wf.CompletedAt = types.TimePtr(time.Now())
		if err := e.store.UpdateWorkflowStatus(dbCtx, wf); err != nil {
			e.log.Errorw("标记Workflow失败状态时出错", "workflow_id", workflowID, "error", err)
			return
		}
		e.failRunningTasks(dbCtx, workflowID, wf.ErrorMessage, *wf.CompletedAt)
		e.log.Errorw("Workflow因基础设施错误终止", "workflow_id", workflowID, "error", cause)
		e.notify(dbCtx, plugin.Notification{
			Event:        plugin.EventWorkflowFailed,
			WorkflowID:   wf.ID,
			WorkflowName: wf.Name,
			Priority:     plugin.PriorityHigh,
			ErrorMessage: wf.ErrorMessage,
		})
	}
}

// failRunningTasks 将停留在RUNNING的Task标记为FAILED，写入失败只记录日志
func (e *Engine) failRunningTasks(ctx context.Context, workflowID, message string, at time.Time) {
	tasks, err := e.store.ListTasks(ctx, workflowID)
	if err != nil {
		e.log.Errorw("加载Task失败，RUNNING的Task将保持原状态", "workflow_id", workflowID, "error", err)
		return
	}
	for _, t := range tasks {
		if t.Status != types.StatusRunning {
			continue
		}
		t.Status = types.StatusFailed
		t.ErrorMessage = message
		t.CompletedAt = types.TimePtr(at)
		if err := e.store.UpdateTask(ctx, t); err != nil {
			e.log.Errorw("标记Task失败状态时出错", "workflow_id", workflowID, "task_id", t.ID, "error", err)
		}
	}
}

// activeRun Workflow仍在以handle运行
func activeRun(wf *types.Workflow, handle string) bool {
	return wf.Status == types.StatusRunning && wf.ExecutionHandle == handle
}

// Cancel 取消Workflow（对外导出）
// 已结束的Workflow直接返回nil；否则撤销Chain并强制标记为CANCELLED
func (e *Engine) Cancel(ctx context.Context, workflowID string) (*types.Workflow, error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.IsTerminal() {
		return wf, nil
	}
	if wf.ExecutionHandle != "" {
		if err := e.queue.Revoke(wf.ExecutionHandle); err != nil {
			e.log.Warnw("撤销Chain失败", "workflow_id", workflowID, "handle", wf.ExecutionHandle, "error", err)
		}
	}
	wf.Status = types.StatusCancelled
	wf.CompletedAt = types.TimePtr(time.Now())
	if err := e.store.UpdateWorkflowStatus(ctx, wf); err != nil {
		return nil, err
	}
	e.log.Infow("Workflow已取消", "workflow_id", workflowID)
	return wf, nil
}

// Wait 阻塞直到Workflow当前的Chain结束（对外导出）
func (e *Engine) Wait(ctx context.Context, workflowID string) error {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.ExecutionHandle == "" {
		return nil
	}
	return e.queue.Wait(ctx, wf.ExecutionHandle)
}

// notify 通知失败只记录日志
func (e *Engine) notify(ctx context.Context, n plugin.Notification) {
	for _, res := range e.notifier.Notify(ctx, n) {
		if !res.Success && res.Error != "" {
			e.log.Debugw("通知投递失败", "event", n.Event, "provider", res.Provider, "error", res.Error)
		}
	}
}
