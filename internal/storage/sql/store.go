package sql

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (pgx)
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver (lib/pq)
	_ "modernc.org/sqlite" // SQLite driver (纯 Go)

	"tempinbox/backend/internal/storage"
)

// 支持的驱动名称
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Options 连接池配置。
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store 基于 sqlx 的 SQL 存储实现（支持 PostgreSQL、MySQL 与 SQLite）。
//
// 时间字段以 UnixNano 整数存储，避免各驱动时区与精度差异。
type Store struct {
	db         *sqlx.DB
	driverName string
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建 SQL 数据库存储并执行建表。
func NewStore(ctx context.Context, driverName, dsn string, opts Options) (*Store, error) {
	if _, ok := schemas[driverName]; !ok {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, pgx, mysql, sqlite)", driverName)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driverName == DriverSQLite {
		// 内存数据库每个连接都是独立实例
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, driverName: driverName}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Migrate 执行建表语句，可重复执行。
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemas[s.driverName] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if s.driverName == DriverMySQL && isDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.PingContext(ctx)
}

// returning 判断驱动是否需要 RETURNING 取回自增 ID。
func (s *Store) returning() bool {
	return s.driverName == DriverPostgres || s.driverName == DriverPgx
}

func firstLine(stmt string) string {
	for i, r := range stmt {
		if r == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}
