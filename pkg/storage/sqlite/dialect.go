package sqlite

import (
	"strings"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDSN 默认数据库文件
const DefaultDSN = "./pipeline_engine.db"

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// DriverName 返回驱动名
func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// Schema 返回建表语句
func (d *SQLiteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'PENDING',
			started_at DATETIME,
			completed_at DATETIME,
			error_message TEXT NOT NULL DEFAULT '',
			is_scheduled INTEGER NOT NULL DEFAULT 0,
			cron_expression TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT 'UTC',
			next_run_at DATETIME,
			last_run_at DATETIME,
			run_count INTEGER NOT NULL DEFAULT 0,
			execution_handle TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_due ON workflows(is_scheduled, next_run_at)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			name TEXT NOT NULL,
			task_order INTEGER NOT NULL,
			script_content TEXT NOT NULL DEFAULT '',
			requirements TEXT NOT NULL DEFAULT '[]',
			executor TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'PENDING',
			started_at DATETIME,
			completed_at DATETIME,
			error_message TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			task_outputs TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_workflow_order ON tasks(workflow_id, task_order)`,
	}
}

// ConfigureDB 返回SQLite配置SQL
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
}

// Open 打开SQLite数据库（对外导出）
// SQLite写入是串行的，连接池限制为1个连接，PRAGMA也因此对所有语句生效
func Open(dsn string) (*storage.SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultDSN
	}
	dialect := NewSQLiteDialect()
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, errors.Wrap(err, "打开数据库失败")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "数据库连接失败")
	}
	store, err := storage.NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

var _ storage.Dialect = (*SQLiteDialect)(nil)
