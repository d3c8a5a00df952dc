package dto

import (
	"strings"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
)

// CreateTaskRequest 创建Task请求
type CreateTaskRequest struct {
	Name          string   `json:"name" binding:"required"`
	Order         int      `json:"order"`
	ScriptContent string   `json:"script_content"`
	Requirements  []string `json:"requirements"`
	Executor      string   `json:"executor"`
}

// CreateWorkflowRequest 创建Workflow请求
type CreateWorkflowRequest struct {
	Name           string              `json:"name" binding:"required"`
	Description    string              `json:"description"`
	CreatedBy      string              `json:"created_by"`
	CronExpression string              `json:"cron_expression"`
	Timezone       string              `json:"timezone"`
	Tasks          []CreateTaskRequest `json:"tasks"`
}

// ScheduleRequest 开启定时调度请求
type ScheduleRequest struct {
	CronExpression string `json:"cron_expression" binding:"required"`
	Timezone       string `json:"timezone"`
}

// ListQueryRequest 通用列表查询请求
type ListQueryRequest struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Status string `form:"status" binding:"omitempty"`
}

// GetDefaultLimit 获取默认limit
func (r *ListQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}

// ToTask 转换为领域Task，order为0时按位置补齐
func (r CreateTaskRequest) ToTask(workflowID string, position int) *types.Task {
	order := r.Order
	if order == 0 {
		order = position
	}
	t := types.NewTask(workflowID, strings.TrimSpace(r.Name), order, r.ScriptContent, r.Requirements)
	t.Executor = r.Executor
	return t
}

// ToWorkflow 转换为领域Workflow和Task
func (r CreateWorkflowRequest) ToWorkflow() (*types.Workflow, []*types.Task) {
	wf := types.NewWorkflow(strings.TrimSpace(r.Name), r.Description)
	wf.CreatedBy = r.CreatedBy
	if r.CronExpression != "" {
		wf.IsScheduled = true
		wf.CronExpression = r.CronExpression
	}
	if r.Timezone != "" {
		wf.Timezone = r.Timezone
	}

	tasks := make([]*types.Task, 0, len(r.Tasks))
	for i, t := range r.Tasks {
		tasks = append(tasks, t.ToTask(wf.ID, i+1))
	}
	return wf, tasks
}
