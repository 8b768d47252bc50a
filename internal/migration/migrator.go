package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 内嵌迁移文件
// =============================================================================

//go:embed migrations/*/*.sql
var schemaFS embed.FS

// DefaultTable golang-migrate 的版本表名
const DefaultTable = "schema_migrations"

// DatabaseType 数据库方言
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// dialect 描述一种方言如何打开连接、如何交给 golang-migrate
type dialect struct {
	sqlDriver    string
	withInstance func(db *sql.DB, table string) (database.Driver, error)
}

var dialects = map[DatabaseType]dialect{
	DatabaseTypePostgres: {
		sqlDriver: "postgres",
		withInstance: func(db *sql.DB, table string) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
		},
	},
	DatabaseTypeMySQL: {
		sqlDriver: "mysql",
		withInstance: func(db *sql.DB, table string) (database.Driver, error) {
			return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
		},
	},
	// SQLite 走纯 Go 的 "sqlite" database/sql 驱动，由链接方注册
	DatabaseTypeSQLite: {
		sqlDriver: "sqlite",
		withInstance: func(db *sql.DB, table string) (database.Driver, error) {
			return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
		},
	},
}

func lookupDialect(t DatabaseType) (dialect, error) {
	d, ok := dialects[t]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database type: %s", t)
	}
	return d, nil
}

// ParseDatabaseType 解析驱动名，接受常见别名
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	}
	return "", fmt.Errorf("unsupported database type: %s", s)
}

// GetMigrationsPath 方言在内嵌文件系统中的目录
func GetMigrationsPath(dbType DatabaseType) string {
	return path.Join("migrations", string(dbType))
}

// =============================================================================
// 📚 版本目录
// =============================================================================

// SchemaVersion 一个成对的 up/down 迁移
type SchemaVersion struct {
	Version uint
	Name    string
}

// Catalog 列出方言的全部迁移，按版本升序
func Catalog(dbType DatabaseType) ([]SchemaVersion, error) {
	if _, err := lookupDialect(dbType); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(schemaFS, GetMigrationsPath(dbType))
	if err != nil {
		return nil, fmt.Errorf("read migrations for %s: %w", dbType, err)
	}

	byVersion := make(map[uint]string)
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if entry.IsDir() || !ok {
			continue
		}
		// 000001_debate_schema
		num, label, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			continue
		}
		byVersion[uint(v)] = label
	}

	catalog := make([]SchemaVersion, 0, len(byVersion))
	for v, label := range byVersion {
		catalog = append(catalog, SchemaVersion{Version: v, Name: label})
	}
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Version < catalog[j].Version })
	return catalog, nil
}

// =============================================================================
// 🔧 Migrator
// =============================================================================

// MigrationStatus 单个迁移的应用状态
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo 当前迁移状态摘要
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Config 迁移器配置
type Config struct {
	DatabaseType DatabaseType

	// golang-migrate 使用的连接串，见 MigrationURL
	DatabaseURL string

	Logger *zap.Logger

	// 版本表名，默认 schema_migrations
	TableName string

	// 获取迁移锁的超时，默认 15s
	LockTimeout time.Duration
}

// Migrator 归档表的 Schema 迁移操作
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	DownAll(ctx context.Context) error
	// n > 0 前进，n < 0 回滚
	Steps(ctx context.Context, n int) error
	Goto(ctx context.Context, version uint) error
	// 只改版本号，不执行 SQL；用于清除 dirty
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// DefaultMigrator 基于 golang-migrate 与内嵌 SQL 的 Migrator
type DefaultMigrator struct {
	config  Config
	db      *sql.DB
	migrate *migrate.Migrate
}

// NewMigrator 打开数据库并装配 golang-migrate 实例
func NewMigrator(cfg *Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	c := *cfg
	if c.TableName == "" {
		c.TableName = DefaultTable
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	d, err := lookupDialect(c.DatabaseType)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.sqlDriver, c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := newMigrate(db, d, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return &DefaultMigrator{config: c, db: db, migrate: m}, nil
}

func newMigrate(db *sql.DB, d dialect, c Config) (*migrate.Migrate, error) {
	driver, err := d.withInstance(db, c.TableName)
	if err != nil {
		return nil, fmt.Errorf("database driver: %w", err)
	}
	src, err := iofs.New(schemaFS, GetMigrationsPath(c.DatabaseType))
	if err != nil {
		return nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(c.DatabaseType), driver)
	if err != nil {
		return nil, err
	}
	m.LockTimeout = c.LockTimeout
	m.Log = &migrateLogger{logger: c.Logger.With(zap.String("component", "migration"))}
	return m, nil
}

// migrateLogger 把 golang-migrate 的输出转给 zap
type migrateLogger struct {
	logger *zap.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool { return false }

// apply 执行一次迁移操作；ctx 取消时让 golang-migrate 在当前文件结束后停下。
// ErrNoChange 不算错误。
func (m *DefaultMigrator) apply(ctx context.Context, op string, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	if err := fn(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", op, err)
	}
	return ctx.Err()
}

func (m *DefaultMigrator) Up(ctx context.Context) error {
	return m.apply(ctx, "up", m.migrate.Up)
}

func (m *DefaultMigrator) Down(ctx context.Context) error {
	return m.apply(ctx, "down", func() error { return m.migrate.Steps(-1) })
}

func (m *DefaultMigrator) DownAll(ctx context.Context) error {
	return m.apply(ctx, "down all", m.migrate.Down)
}

func (m *DefaultMigrator) Steps(ctx context.Context, n int) error {
	return m.apply(ctx, "steps", func() error { return m.migrate.Steps(n) })
}

func (m *DefaultMigrator) Goto(ctx context.Context, version uint) error {
	return m.apply(ctx, "goto", func() error { return m.migrate.Migrate(version) })
}

func (m *DefaultMigrator) Force(_ context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version 未应用任何迁移时返回 0
func (m *DefaultMigrator) Version(context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := Catalog(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(catalog))
	for _, v := range catalog {
		statuses = append(statuses, MigrationStatus{
			Version: v.Version,
			Name:    v.Name,
			Applied: v.Version <= current,
			Dirty:   dirty && v.Version == current,
		})
	}
	return statuses, nil
}

func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	info := &MigrationInfo{CurrentVersion: current, Dirty: dirty, TotalMigrations: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.AppliedMigrations++
		}
	}
	info.PendingMigrations = info.TotalMigrations - info.AppliedMigrations
	return info, nil
}

// Close 关闭 golang-migrate 的 source 与 database 驱动（同时关闭底层连接）
func (m *DefaultMigrator) Close() error {
	if m.migrate == nil {
		return nil
	}
	srcErr, dbErr := m.migrate.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}
