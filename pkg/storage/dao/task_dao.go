package dao

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
)

// TaskColumns tasks表列名，与TaskDAO的db标签一致
const TaskColumns = "id, workflow_id, name, task_order, script_content, requirements, executor, status, " +
	"started_at, completed_at, error_message, output, task_outputs, created_at"

// TaskDAO tasks表的数据访问对象（内部使用）
type TaskDAO struct {
	ID            string       `db:"id"`
	WorkflowID    string       `db:"workflow_id"`
	Name          string       `db:"name"`
	Order         int          `db:"task_order"`
	ScriptContent string       `db:"script_content"`
	Requirements  string       `db:"requirements"` // JSON数组
	Executor      string       `db:"executor"`
	Status        string       `db:"status"`
	StartedAt     sql.NullTime `db:"started_at"`
	CompletedAt   sql.NullTime `db:"completed_at"`
	ErrorMessage  string       `db:"error_message"`
	Output        string       `db:"output"`
	TaskOutputs   string       `db:"task_outputs"` // JSON对象
	CreatedAt     time.Time    `db:"created_at"`
}

// FromTask 领域对象转DAO
func FromTask(t *types.Task) (*TaskDAO, error) {
	requirements := t.Requirements
	if requirements == nil {
		requirements = []string{}
	}
	reqJSON, err := json.Marshal(requirements)
	if err != nil {
		return nil, errors.Wrap(err, "序列化requirements失败")
	}
	outputs := t.TaskOutputs
	if outputs == nil {
		outputs = map[string]any{}
	}
	outJSON, err := json.Marshal(outputs)
	if err != nil {
		return nil, errors.Wrapf(err, "序列化Task %s 的输出失败", t.Name)
	}
	return &TaskDAO{
		ID:            t.ID,
		WorkflowID:    t.WorkflowID,
		Name:          t.Name,
		Order:         t.Order,
		ScriptContent: t.ScriptContent,
		Requirements:  string(reqJSON),
		Executor:      t.Executor,
		Status:        t.Status.String(),
		StartedAt:     NullTime(t.StartedAt),
		CompletedAt:   NullTime(t.CompletedAt),
		ErrorMessage:  t.ErrorMessage,
		Output:        t.Output,
		TaskOutputs:   string(outJSON),
		CreatedAt:     Normalize(t.CreatedAt),
	}, nil
}

// ToTask DAO转领域对象，JSON列为空或损坏时退化为空值
func (d *TaskDAO) ToTask() *types.Task {
	requirements := []string{}
	if d.Requirements != "" {
		_ = json.Unmarshal([]byte(d.Requirements), &requirements)
		if requirements == nil {
			requirements = []string{}
		}
	}
	outputs := map[string]any{}
	if d.TaskOutputs != "" {
		_ = json.Unmarshal([]byte(d.TaskOutputs), &outputs)
		if outputs == nil {
			outputs = map[string]any{}
		}
	}
	return &types.Task{
		ID:            d.ID,
		WorkflowID:    d.WorkflowID,
		Name:          d.Name,
		Order:         d.Order,
		ScriptContent: d.ScriptContent,
		Requirements:  requirements,
		Executor:      d.Executor,
		Status:        types.Status(d.Status),
		StartedAt:     timePtr(d.StartedAt),
		CompletedAt:   timePtr(d.CompletedAt),
		ErrorMessage:  d.ErrorMessage,
		Output:        d.Output,
		TaskOutputs:   outputs,
		CreatedAt:     d.CreatedAt.UTC(),
	}
}
