package storage

import (
	"context"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
)

// WorkflowRepository Workflow持久化接口（对外导出）
type WorkflowRepository interface {
	// CreateWorkflow 在同一事务中保存Workflow及其Task
	CreateWorkflow(ctx context.Context, wf *types.Workflow, tasks []*types.Task) error
	// GetWorkflow 不存在时返回 errors.ErrNotFound
	GetWorkflow(ctx context.Context, id string) (*types.Workflow, error)
	// ListWorkflows 按创建时间倒序
	ListWorkflows(ctx context.Context) ([]*types.Workflow, error)
	// UpdateWorkflow 写入整行，仅用于没有并发写入者的场景
	UpdateWorkflow(ctx context.Context, wf *types.Workflow) error
	// UpdateWorkflowStatus 只写入 status、error_message、completed_at
	UpdateWorkflowStatus(ctx context.Context, wf *types.Workflow) error
	// UpdateSchedule 只写入 is_scheduled、cron_expression、timezone、next_run_at
	UpdateSchedule(ctx context.Context, wf *types.Workflow) error
	// ClaimScheduledRun 记录一次定时运行并推进next_run_at。
	// Workflow正在运行或已关闭定时调度时不做修改，返回false
	ClaimScheduledRun(ctx context.Context, id string, ranAt, nextRunAt time.Time) (bool, error)
	// MarkWorkflowRunning 条件更新为RUNNING，已在运行时返回 errors.ErrConflict
	MarkWorkflowRunning(ctx context.Context, id string, startedAt time.Time, handle string) (*types.Workflow, error)
	// DeleteWorkflow 级联删除Task，运行中返回 errors.ErrConflict
	DeleteWorkflow(ctx context.Context, id string) error
	// ListDueWorkflows 已到期且未在运行的定时Workflow
	ListDueWorkflows(ctx context.Context, now time.Time) ([]*types.Workflow, error)
	// PurgeFinishedBefore 删除cutoff之前结束的非定时Workflow及其Task
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (PurgeResult, error)
}

// TaskRepository Task持久化接口（对外导出）
type TaskRepository interface {
	CreateTask(ctx context.Context, t *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	// ListTasks 按 (order, id) 升序
	ListTasks(ctx context.Context, workflowID string) ([]*types.Task, error)
	// ListCompletedBefore 同一Workflow中order小于给定值且已完成的Task
	ListCompletedBefore(ctx context.Context, workflowID string, order int) ([]*types.Task, error)
	UpdateTask(ctx context.Context, t *types.Task) error
	// ResetTasks 将Workflow下所有Task重置为PENDING并清空运行结果
	ResetTasks(ctx context.Context, workflowID string) error
	DeleteTask(ctx context.Context, id string) error
}

// Store 引擎使用的完整存储（对外导出）
type Store interface {
	WorkflowRepository
	TaskRepository
	Close() error
}

// PurgeResult 清理统计
type PurgeResult struct {
	Workflows int64 `json:"workflows"`
	Tasks     int64 `json:"tasks"`
}

// Dialect 数据库方言（对外导出）
// 不同数据库的驱动名、建表语句和连接初始化SQL
type Dialect interface {
	// Name 方言名称：sqlite/mysql/postgres
	Name() string
	// DriverName database/sql 驱动名，sqlx据此选择占位符风格
	DriverName() string
	// Schema 建表与索引语句，需可重复执行
	Schema() []string
	// ConfigureDB 连接建立后执行的配置SQL
	ConfigureDB() []string
}
