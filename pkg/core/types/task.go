package types

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Task 工作流中的单个脚本执行单元（对外导出）
type Task struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	Name          string         `json:"name"`
	Order         int            `json:"order"`
	ScriptContent string         `json:"script_content"`
	Requirements  []string       `json:"requirements"`
	Executor      string         `json:"executor,omitempty"` // 为空时使用默认执行器
	Status        Status         `json:"status"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Output        string         `json:"output,omitempty"`
	TaskOutputs   map[string]any `json:"task_outputs"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewTask 创建PENDING状态的Task（对外导出）
func NewTask(workflowID, name string, order int, script string, requirements []string) *Task {
	if requirements == nil {
		requirements = []string{}
	}
	return &Task{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		Name:          name,
		Order:         order,
		ScriptContent: script,
		Requirements:  requirements,
		Status:        StatusPending,
		TaskOutputs:   map[string]any{},
		CreatedAt:     time.Now().UTC(),
	}
}

// ResetForRun 清空上一次运行的结果，回到PENDING
func (t *Task) ResetForRun() {
	t.Status = StatusPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.ErrorMessage = ""
	t.Output = ""
	t.TaskOutputs = map[string]any{}
}

// SortTasks 按Order升序排序，Order相同按ID排序
func SortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
}
