package postgres

import (
	"github.com/LENAX/pipeline-engine/pkg/storage"
	_ "github.com/lib/pq"
)

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// DriverName 返回驱动名（sqlx据此使用$1, $2占位符）
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// Schema 返回建表语句
func (d *PostgresDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(64) PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			error_message TEXT NOT NULL DEFAULT '',
			is_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
			cron_expression TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT 'UTC',
			next_run_at TIMESTAMPTZ,
			last_run_at TIMESTAMPTZ,
			run_count INTEGER NOT NULL DEFAULT 0,
			execution_handle TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_due ON workflows(is_scheduled, next_run_at)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(64) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			task_order INTEGER NOT NULL,
			script_content TEXT NOT NULL DEFAULT '',
			requirements TEXT NOT NULL DEFAULT '[]',
			executor TEXT NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			error_message TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			task_outputs TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_workflow_order ON tasks(workflow_id, task_order)`,
	}
}

// ConfigureDB 返回PostgreSQL配置SQL
func (d *PostgresDialect) ConfigureDB() []string {
	return []string{
		"SET timezone = 'UTC';",
	}
}

// Open 打开PostgreSQL数据库（对外导出）
func Open(dsn string) (*storage.SQLStore, error) {
	return storage.Open(NewPostgresDialect(), dsn)
}

var _ storage.Dialect = (*PostgresDialect)(nil)
