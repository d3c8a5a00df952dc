package mysql

import (
	"time"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/storage"
	driver "github.com/go-sql-driver/mysql"
)

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DriverName 返回驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// Schema 返回建表语句
// MySQL不支持 CREATE INDEX IF NOT EXISTS，索引写在建表语句中
func (d *MySQLDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			created_by VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			started_at DATETIME(6) NULL,
			completed_at DATETIME(6) NULL,
			error_message TEXT NOT NULL,
			is_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
			cron_expression VARCHAR(128) NOT NULL DEFAULT '',
			timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
			next_run_at DATETIME(6) NULL,
			last_run_at DATETIME(6) NULL,
			run_count INT NOT NULL DEFAULT 0,
			execution_handle VARCHAR(64) NOT NULL DEFAULT '',
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_workflows_due (is_scheduled, next_run_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			task_order INT NOT NULL,
			script_content LONGTEXT NOT NULL,
			requirements TEXT NOT NULL,
			executor VARCHAR(32) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			started_at DATETIME(6) NULL,
			completed_at DATETIME(6) NULL,
			error_message TEXT NOT NULL,
			output LONGTEXT NOT NULL,
			task_outputs LONGTEXT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_tasks_workflow_order (workflow_id, task_order),
			CONSTRAINT fk_tasks_workflow FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
}

// ConfigureDB 返回MySQL配置SQL
// 会话时区通过DSN参数设置，对连接池中的每个连接都生效
func (d *MySQLDialect) ConfigureDB() []string {
	return nil
}

// NormalizeDSN 强制 parseTime 和 UTC，保证DATETIME能扫描为time.Time（对外导出）
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "解析MySQL DSN失败"), errors.ErrConfiguration)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["time_zone"] = "'+00:00'"
	return cfg.FormatDSN(), nil
}

// Open 打开MySQL数据库（对外导出）
func Open(dsn string) (*storage.SQLStore, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	return storage.Open(NewMySQLDialect(), normalized)
}

var _ storage.Dialect = (*MySQLDialect)(nil)
