package dto

import (
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// WorkflowSummary Workflow摘要信息
type WorkflowSummary struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Status         types.Status `json:"status"`
	IsScheduled    bool         `json:"is_scheduled"`
	CronExpression string       `json:"cron_expression,omitempty"`
	Timezone       string       `json:"timezone"`
	NextRunAt      *time.Time   `json:"next_run_at,omitempty"`
	RunCount       int          `json:"run_count"`
	CreatedAt      time.Time    `json:"created_at"`
}

// WorkflowDetail Workflow详细信息
type WorkflowDetail struct {
	*types.Workflow
	Progress ProgressInfo  `json:"progress"`
	Tasks    []*types.Task `json:"tasks"`
}

// ProgressInfo 进度信息
type ProgressInfo struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Cancelled int `json:"cancelled"`
}

// ExecuteResponse 执行响应
type ExecuteResponse struct {
	WorkflowID      string `json:"workflow_id"`
	ExecutionHandle string `json:"execution_handle"`
	Message         string `json:"message"`
}

// ExecutorsResponse 执行器列表响应
type ExecutorsResponse struct {
	Default   string   `json:"default"`
	Executors []string `json:"executors"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}

// NewWorkflowSummary 由Workflow生成摘要
func NewWorkflowSummary(wf *types.Workflow) WorkflowSummary {
	return WorkflowSummary{
		ID:             wf.ID,
		Name:           wf.Name,
		Description:    wf.Description,
		Status:         wf.Status,
		IsScheduled:    wf.IsScheduled,
		CronExpression: wf.CronExpression,
		Timezone:       wf.Timezone,
		NextRunAt:      wf.NextRunAt,
		RunCount:       wf.RunCount,
		CreatedAt:      wf.CreatedAt,
	}
}

// NewProgressInfo 统计Task状态分布
func NewProgressInfo(tasks []*types.Task) ProgressInfo {
	p := ProgressInfo{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case types.StatusCompleted:
			p.Completed++
		case types.StatusRunning:
			p.Running++
		case types.StatusFailed:
			p.Failed++
		case types.StatusCancelled:
			p.Cancelled++
		default:
			p.Pending++
		}
	}
	return p
}
