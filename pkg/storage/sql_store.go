package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/LENAX/pipeline-engine/pkg/storage/dao"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SQLStore 基于sqlx的Store实现（对外导出）
// SQL统一使用?占位符，通过db.Rebind适配各方言
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
	log     *zap.SugaredLogger
}

// NewSQLStore 执行方言配置和建表，返回Store（对外导出）
func NewSQLStore(db *sqlx.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		log:     logger.Named("storage." + dialect.Name()),
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, errors.Wrapf(err, "执行数据库配置失败: %s", stmt)
		}
	}
	if err := s.initSchema(); err != nil {
		return nil, errors.Wrap(err, "初始化表结构失败")
	}
	return s, nil
}

// Open 打开数据库连接并创建Store（对外导出）
func Open(dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, errors.Wrap(err, "打开数据库失败")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "数据库连接失败")
	}
	store, err := NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB 获取底层数据库连接（对外导出）
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

// Close 关闭数据库连接（对外导出）
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) initSchema() error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "建表失败: %s", stmt)
		}
	}
	return nil
}

func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

// ---- Workflow ----

const insertWorkflowSQL = `INSERT INTO workflows (` + dao.WorkflowColumns + `) VALUES (
	:id, :name, :description, :created_by, :status, :started_at, :completed_at, :error_message,
	:is_scheduled, :cron_expression, :timezone, :next_run_at, :last_run_at, :run_count, :execution_handle, :created_at, :updated_at)`

const insertTaskSQL = `INSERT INTO tasks (` + dao.TaskColumns + `) VALUES (
	:id, :workflow_id, :name, :task_order, :script_content, :requirements, :executor, :status,
	:started_at, :completed_at, :error_message, :output, :task_outputs, :created_at)`

// CreateWorkflow 实现WorkflowRepository接口
func (s *SQLStore) CreateWorkflow(ctx context.Context, wf *types.Workflow, tasks []*types.Task) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, insertWorkflowSQL, dao.FromWorkflow(wf)); err != nil {
		return errors.Wrapf(err, "保存Workflow %s 失败", wf.ID)
	}
	for _, t := range tasks {
		row, err := dao.FromTask(t)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, insertTaskSQL, row); err != nil {
			return errors.Wrapf(err, "保存Task %s 失败", t.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "提交事务失败")
	}
	return nil
}

// GetWorkflow 实现WorkflowRepository接口
func (s *SQLStore) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	return getWorkflow(ctx, s.db, id)
}

// queryer *sqlx.DB 与 *sqlx.Tx 的公共部分
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

// getWorkflow 在给定连接或事务上查询，事务内的存在性检查不能再占用新连接
func getWorkflow(ctx context.Context, q queryer, id string) (*types.Workflow, error) {
	var row dao.WorkflowDAO
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`SELECT `+dao.WorkflowColumns+` FROM workflows WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("workflow %s not found", id), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "查询Workflow %s 失败", id)
	}
	return row.ToWorkflow(), nil
}

// ListWorkflows 实现WorkflowRepository接口
func (s *SQLStore) ListWorkflows(ctx context.Context) ([]*types.Workflow, error) {
	return s.selectWorkflows(ctx, `SELECT `+dao.WorkflowColumns+` FROM workflows ORDER BY created_at DESC, id`)
}

// UpdateWorkflow 实现WorkflowRepository接口，UpdatedAt由存储层刷新
func (s *SQLStore) UpdateWorkflow(ctx context.Context, wf *types.Workflow) error {
	wf.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `UPDATE workflows SET
		name = :name, description = :description, created_by = :created_by, status = :status,
		started_at = :started_at, completed_at = :completed_at, error_message = :error_message,
		is_scheduled = :is_scheduled, cron_expression = :cron_expression, timezone = :timezone,
		next_run_at = :next_run_at, last_run_at = :last_run_at, run_count = :run_count,
		execution_handle = :execution_handle, updated_at = :updated_at
		WHERE id = :id`, dao.FromWorkflow(wf))
	if err != nil {
		return errors.Wrapf(err, "更新Workflow %s 失败", wf.ID)
	}
	return s.requireWorkflowRow(ctx, res, wf.ID)
}

// UpdateWorkflowStatus 实现WorkflowRepository接口
func (s *SQLStore) UpdateWorkflowStatus(ctx context.Context, wf *types.Workflow) error {
	wf.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE workflows SET
		status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`),
		wf.Status.String(), wf.ErrorMessage, dao.NullTime(wf.CompletedAt), dao.Normalize(wf.UpdatedAt), wf.ID)
	if err != nil {
		return errors.Wrapf(err, "更新Workflow %s 状态失败", wf.ID)
	}
	return s.requireWorkflowRow(ctx, res, wf.ID)
}

// UpdateSchedule 实现WorkflowRepository接口
func (s *SQLStore) UpdateSchedule(ctx context.Context, wf *types.Workflow) error {
	wf.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE workflows SET
		is_scheduled = ?, cron_expression = ?, timezone = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?`),
		wf.IsScheduled, wf.CronExpression, wf.Timezone, dao.NullTime(wf.NextRunAt), dao.Normalize(wf.UpdatedAt), wf.ID)
	if err != nil {
		return errors.Wrapf(err, "更新Workflow %s 调度信息失败", wf.ID)
	}
	return s.requireWorkflowRow(ctx, res, wf.ID)
}

// ClaimScheduledRun 实现WorkflowRepository接口
func (s *SQLStore) ClaimScheduledRun(ctx context.Context, id string, ranAt, nextRunAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE workflows SET
		run_count = run_count + 1, last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ? AND is_scheduled = ? AND status <> ?`),
		dao.Normalize(ranAt), dao.Normalize(nextRunAt), dao.Normalize(time.Now()),
		id, true, types.StatusRunning.String())
	if err != nil {
		return false, errors.Wrapf(err, "记录Workflow %s 定时运行失败", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "获取影响行数失败")
	}
	if affected == 0 {
		if _, err := s.GetWorkflow(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// MarkWorkflowRunning 实现WorkflowRepository接口
// 单条条件UPDATE保证同一Workflow不会被并发派发两次
func (s *SQLStore) MarkWorkflowRunning(ctx context.Context, id string, startedAt time.Time, handle string) (*types.Workflow, error) {
	now := dao.Normalize(time.Now())
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE workflows SET
		status = ?, started_at = ?, completed_at = NULL, error_message = '', execution_handle = ?, updated_at = ?
		WHERE id = ? AND status <> ?`),
		types.StatusRunning.String(), dao.Normalize(startedAt), handle, now, id, types.StatusRunning.String())
	if err != nil {
		return nil, errors.Wrapf(err, "更新Workflow %s 状态失败", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "获取影响行数失败")
	}
	if affected == 0 {
		if _, getErr := s.GetWorkflow(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, errors.Mark(errors.Newf("workflow %s is already running", id), errors.ErrConflict)
	}
	return s.GetWorkflow(ctx, id)
}

// DeleteWorkflow 实现WorkflowRepository接口
func (s *SQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM workflows WHERE id = ? AND status <> ?`),
		id, types.StatusRunning.String())
	if err != nil {
		return errors.Wrapf(err, "删除Workflow %s 失败", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "获取影响行数失败")
	}
	if affected == 0 {
		if _, getErr := getWorkflow(ctx, tx, id); getErr != nil {
			return getErr
		}
		return errors.Mark(errors.Newf("workflow %s is running and cannot be deleted", id), errors.ErrConflict)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tasks WHERE workflow_id = ?`), id); err != nil {
		return errors.Wrapf(err, "删除Workflow %s 的Task失败", id)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "提交事务失败")
	}
	return nil
}

// ListDueWorkflows 实现WorkflowRepository接口
func (s *SQLStore) ListDueWorkflows(ctx context.Context, now time.Time) ([]*types.Workflow, error) {
	return s.selectWorkflows(ctx, `SELECT `+dao.WorkflowColumns+` FROM workflows
		WHERE is_scheduled = ? AND next_run_at IS NOT NULL AND next_run_at <= ? AND status <> ?
		ORDER BY next_run_at, id`,
		true, dao.Normalize(now), types.StatusRunning.String())
}

// PurgeFinishedBefore 实现WorkflowRepository接口
func (s *SQLStore) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	var result PurgeResult
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, errors.Wrap(err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	var ids []string
	err = tx.SelectContext(ctx, &ids, tx.Rebind(`SELECT id FROM workflows
		WHERE is_scheduled = ? AND status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`),
		false, types.StatusCompleted.String(), types.StatusFailed.String(), dao.Normalize(cutoff))
	if err != nil {
		return result, errors.Wrap(err, "查询过期Workflow失败")
	}
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`DELETE FROM tasks WHERE workflow_id IN (?)`, ids)
	if err != nil {
		return result, errors.Wrap(err, "构造删除语句失败")
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return result, errors.Wrap(err, "删除过期Task失败")
	}
	result.Tasks, _ = res.RowsAffected()

	query, args, err = sqlx.In(`DELETE FROM workflows WHERE id IN (?)`, ids)
	if err != nil {
		return result, errors.Wrap(err, "构造删除语句失败")
	}
	res, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return result, errors.Wrap(err, "删除过期Workflow失败")
	}
	result.Workflows, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return PurgeResult{}, errors.Wrap(err, "提交事务失败")
	}
	s.log.Infow("已清理过期记录", "workflows", result.Workflows, "tasks", result.Tasks, "cutoff", cutoff)
	return result, nil
}

func (s *SQLStore) selectWorkflows(ctx context.Context, query string, args ...interface{}) ([]*types.Workflow, error) {
	var rows []dao.WorkflowDAO
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, errors.Wrap(err, "查询Workflow列表失败")
	}
	workflows := make([]*types.Workflow, 0, len(rows))
	for i := range rows {
		workflows = append(workflows, rows[i].ToWorkflow())
	}
	return workflows, nil
}

func (s *SQLStore) requireWorkflowRow(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "获取影响行数失败")
	}
	if affected == 0 {
		// MySQL在值未变化时返回0，需再确认记录是否存在
		if _, err := s.GetWorkflow(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ---- Task ----

// CreateTask 实现TaskRepository接口
func (s *SQLStore) CreateTask(ctx context.Context, t *types.Task) error {
	row, err := dao.FromTask(t)
	if err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, insertTaskSQL, row); err != nil {
		return errors.Wrapf(err, "保存Task %s 失败", t.Name)
	}
	return nil
}

// GetTask 实现TaskRepository接口
func (s *SQLStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	var row dao.TaskDAO
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+dao.TaskColumns+` FROM tasks WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("task %s not found", id), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "查询Task %s 失败", id)
	}
	return row.ToTask(), nil
}

// ListTasks 实现TaskRepository接口
func (s *SQLStore) ListTasks(ctx context.Context, workflowID string) ([]*types.Task, error) {
	return s.selectTasks(ctx, `SELECT `+dao.TaskColumns+` FROM tasks WHERE workflow_id = ? ORDER BY task_order, id`, workflowID)
}

// ListCompletedBefore 实现TaskRepository接口
func (s *SQLStore) ListCompletedBefore(ctx context.Context, workflowID string, order int) ([]*types.Task, error) {
	return s.selectTasks(ctx, `SELECT `+dao.TaskColumns+` FROM tasks
		WHERE workflow_id = ? AND task_order < ? AND status = ?
		ORDER BY task_order, id`, workflowID, order, types.StatusCompleted.String())
}

// UpdateTask 实现TaskRepository接口
func (s *SQLStore) UpdateTask(ctx context.Context, t *types.Task) error {
	row, err := dao.FromTask(t)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE tasks SET
		name = :name, task_order = :task_order, script_content = :script_content, requirements = :requirements,
		executor = :executor, status = :status, started_at = :started_at, completed_at = :completed_at,
		error_message = :error_message, output = :output, task_outputs = :task_outputs
		WHERE id = :id`, row)
	if err != nil {
		return errors.Wrapf(err, "更新Task %s 失败", t.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "获取影响行数失败")
	}
	if affected == 0 {
		if _, err := s.GetTask(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// ResetTasks 实现TaskRepository接口
func (s *SQLStore) ResetTasks(ctx context.Context, workflowID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE tasks SET
		status = ?, started_at = NULL, completed_at = NULL, error_message = '', output = '', task_outputs = ?
		WHERE workflow_id = ?`),
		types.StatusPending.String(), "{}", workflowID)
	if err != nil {
		return errors.Wrapf(err, "重置Workflow %s 的Task失败", workflowID)
	}
	return nil
}

// DeleteTask 实现TaskRepository接口
func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return errors.Wrapf(err, "删除Task %s 失败", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "获取影响行数失败")
	}
	if affected == 0 {
		return errors.Mark(errors.Newf("task %s not found", id), errors.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) selectTasks(ctx context.Context, query string, args ...interface{}) ([]*types.Task, error) {
	var rows []dao.TaskDAO
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, errors.Wrap(err, "查询Task列表失败")
	}
	tasks := make([]*types.Task, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, rows[i].ToTask())
	}
	return tasks, nil
}

var _ Store = (*SQLStore)(nil)
