package storage

import (
	"strings"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/storage"
	"github.com/LENAX/pipeline-engine/pkg/storage/mysql"
	"github.com/LENAX/pipeline-engine/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/pipeline-engine/pkg/storage/sqlite"
)

// SupportedDatabaseTypes 支持的数据库类型
var SupportedDatabaseTypes = []string{"sqlite", "mysql", "postgres"}

// PoolOptions 连接池参数，sqlite固定单连接，不使用这些参数
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewStore 按数据库类型创建Store（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func NewStore(dbType, dsn string, pool PoolOptions) (storage.Store, error) {
	var (
		store *storage.SQLStore
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			dsn = pkgsqlite.DefaultDSN
		}
		store, err = pkgsqlite.Open(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "create sqlite store failed")
		}
		return store, nil
	case "mysql":
		store, err = mysql.Open(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "create mysql store failed")
		}
	case "postgres", "postgresql":
		store, err = postgres.Open(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "create postgres store failed")
		}
	default:
		return nil, errors.WithHintf(
			errors.Configurationf("unsupported database type: %s", dbType),
			"supported types: %s", strings.Join(SupportedDatabaseTypes, ", "))
	}

	db := store.DB()
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
	return store, nil
}

// IsSupported 判断数据库类型是否受支持
func IsSupported(dbType string) bool {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", "sqlite", "sqlite3", "mysql", "postgres", "postgresql":
		return true
	default:
		return false
	}
}
