package task

import "context"

// context key类型，用于类型安全的context.Value访问
type contextKey string

const (
	// TaskIDKey Task ID在context中的key
	TaskIDKey contextKey = "task.id"
	// TaskNameKey Task名称在context中的key
	TaskNameKey contextKey = "task.name"
	// WorkflowIDKey Workflow ID在context中的key
	WorkflowIDKey contextKey = "workflow.id"
	// ExecutionHandleKey 当前运行所在链的ID
	ExecutionHandleKey contextKey = "workflow.execution_handle"
)

// WithTaskID 将Task ID添加到context中（对外导出）
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskID 从context中获取Task ID（对外导出）
func GetTaskID(ctx context.Context) string {
	if id, ok := ctx.Value(TaskIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTaskName 将Task名称添加到context中（对外导出）
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, TaskNameKey, name)
}

// GetTaskName 从context中获取Task名称（对外导出）
func GetTaskName(ctx context.Context) string {
	if name, ok := ctx.Value(TaskNameKey).(string); ok {
		return name
	}
	return ""
}

// WithWorkflowID 将Workflow ID添加到context中（对外导出）
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, WorkflowIDKey, workflowID)
}

// GetWorkflowID 从context中获取Workflow ID（对外导出）
func GetWorkflowID(ctx context.Context) string {
	if id, ok := ctx.Value(WorkflowIDKey).(string); ok {
		return id
	}
	return ""
}

// WithExecutionHandle 将链ID添加到context中（对外导出）
func WithExecutionHandle(ctx context.Context, handle string) context.Context {
	return context.WithValue(ctx, ExecutionHandleKey, handle)
}

// GetExecutionHandle 从context中获取链ID（对外导出）
func GetExecutionHandle(ctx context.Context) string {
	if h, ok := ctx.Value(ExecutionHandleKey).(string); ok {
		return h
	}
	return ""
}

// logFields 从context中提取日志字段
func logFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)
	if id := GetWorkflowID(ctx); id != "" {
		fields = append(fields, "workflow_id", id)
	}
	if h := GetExecutionHandle(ctx); h != "" {
		fields = append(fields, "handle", h)
	}
	if id := GetTaskID(ctx); id != "" {
		fields = append(fields, "task_id", id)
	}
	if name := GetTaskName(ctx); name != "" {
		fields = append(fields, "task", name)
	}
	return fields
}
