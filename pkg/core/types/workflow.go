package types

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTimezone 未指定时区时使用UTC
const DefaultTimezone = "UTC"

// Workflow 工作流（对外导出）
// 持有一组按Order排序的Task，由Orchestrator和Scheduler修改
type Workflow struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	CreatedBy       string     `json:"created_by"`
	Status          Status     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	IsScheduled     bool       `json:"is_scheduled"`
	CronExpression  string     `json:"cron_expression,omitempty"`
	Timezone        string     `json:"timezone"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	RunCount        int        `json:"run_count"`
	ExecutionHandle string     `json:"execution_handle,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewWorkflow 创建PENDING状态的Workflow（对外导出）
func NewWorkflow(name, description string) *Workflow {
	now := time.Now().UTC()
	return &Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      StatusPending,
		Timezone:    DefaultTimezone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsTerminal Workflow是否已结束
func (w *Workflow) IsTerminal() bool {
	return w.Status.IsTerminal()
}

// TimePtr 返回UTC时间指针
func TimePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
