package dao

import (
	"database/sql"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
)

// WorkflowColumns workflows表列名，与WorkflowDAO的db标签一致
const WorkflowColumns = "id, name, description, created_by, status, started_at, completed_at, error_message, " +
	"is_scheduled, cron_expression, timezone, next_run_at, last_run_at, run_count, execution_handle, created_at, updated_at"

// WorkflowDAO workflows表的数据访问对象（内部使用）
type WorkflowDAO struct {
	ID              string       `db:"id"`
	Name            string       `db:"name"`
	Description     string       `db:"description"`
	CreatedBy       string       `db:"created_by"`
	Status          string       `db:"status"`
	StartedAt       sql.NullTime `db:"started_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
	ErrorMessage    string       `db:"error_message"`
	IsScheduled     bool         `db:"is_scheduled"`
	CronExpression  string       `db:"cron_expression"`
	Timezone        string       `db:"timezone"`
	NextRunAt       sql.NullTime `db:"next_run_at"`
	LastRunAt       sql.NullTime `db:"last_run_at"`
	RunCount        int          `db:"run_count"`
	ExecutionHandle string       `db:"execution_handle"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

// FromWorkflow 领域对象转DAO
func FromWorkflow(wf *types.Workflow) *WorkflowDAO {
	return &WorkflowDAO{
		ID:              wf.ID,
		Name:            wf.Name,
		Description:     wf.Description,
		CreatedBy:       wf.CreatedBy,
		Status:          wf.Status.String(),
		StartedAt:       NullTime(wf.StartedAt),
		CompletedAt:     NullTime(wf.CompletedAt),
		ErrorMessage:    wf.ErrorMessage,
		IsScheduled:     wf.IsScheduled,
		CronExpression:  wf.CronExpression,
		Timezone:        wf.Timezone,
		NextRunAt:       NullTime(wf.NextRunAt),
		LastRunAt:       NullTime(wf.LastRunAt),
		RunCount:        wf.RunCount,
		ExecutionHandle: wf.ExecutionHandle,
		CreatedAt:       Normalize(wf.CreatedAt),
		UpdatedAt:       Normalize(wf.UpdatedAt),
	}
}

// ToWorkflow DAO转领域对象
func (d *WorkflowDAO) ToWorkflow() *types.Workflow {
	timezone := d.Timezone
	if timezone == "" {
		timezone = types.DefaultTimezone
	}
	return &types.Workflow{
		ID:              d.ID,
		Name:            d.Name,
		Description:     d.Description,
		CreatedBy:       d.CreatedBy,
		Status:          types.Status(d.Status),
		StartedAt:       timePtr(d.StartedAt),
		CompletedAt:     timePtr(d.CompletedAt),
		ErrorMessage:    d.ErrorMessage,
		IsScheduled:     d.IsScheduled,
		CronExpression:  d.CronExpression,
		Timezone:        timezone,
		NextRunAt:       timePtr(d.NextRunAt),
		LastRunAt:       timePtr(d.LastRunAt),
		RunCount:        d.RunCount,
		ExecutionHandle: d.ExecutionHandle,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

// Normalize 统一存储精度：UTC、微秒
// MySQL DATETIME(6) 和 PostgreSQL TIMESTAMP 都只保留到微秒
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NullTime 可空时间转数据库值，统一存储精度
func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: Normalize(*t), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
