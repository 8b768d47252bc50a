package migration

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewMigratorFromDSN 使用与 GORM 相同的驱动名/DSN 创建迁移器
func NewMigratorFromDSN(driver, dsn string, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  MigrationURL(dbType, dsn),
		Logger:       logger,
	})
}

// MigrationURL 把应用 DSN 改成 golang-migrate 能用的形式：
// MySQL 迁移文件含多条语句，需要 multiStatements；SQLite 裸路径转为 file: URI 并打开外键。
func MigrationURL(dbType DatabaseType, dsn string) string {
	switch dbType {
	case DatabaseTypeMySQL:
		if strings.Contains(dsn, "multiStatements=") {
			return dsn
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "multiStatements=true"
	case DatabaseTypeSQLite:
		if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
			return dsn
		}
		return "file:" + dsn + "?mode=rwc&_pragma=foreign_keys(1)"
	}
	return dsn
}

// EnsureSchema 启动时把归档表迁移到最新版本，返回迁移后的状态
func EnsureSchema(ctx context.Context, driver, dsn string, logger *zap.Logger) (*MigrationInfo, error) {
	m, err := NewMigratorFromDSN(driver, dsn, logger)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	info, err := m.Info(ctx)
	if err != nil {
		return nil, err
	}
	if info.Dirty {
		return info, fmt.Errorf("schema version %d is dirty, run `migrate force` first", info.CurrentVersion)
	}
	if info.PendingMigrations == 0 {
		return info, nil
	}
	if err := m.Up(ctx); err != nil {
		return nil, err
	}
	return m.Info(ctx)
}
