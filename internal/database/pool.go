package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🔌 归档库连接配置
// =============================================================================

// Config 归档库配置
type Config struct {
	// 驱动：postgres / mysql / sqlite，为空表示不启用 SQL 归档
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`

	// DSN 连接串；sqlite 时为文件路径或 ":memory:"
	DSN string `yaml:"dsn" json:"-" env:"DSN"`

	// 单次归档事务的最大尝试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`

	// 打印 SQL
	Debug bool `yaml:"debug" json:"debug" env:"DEBUG"`

	// 启动时执行内嵌迁移；关闭时需要先运行 debatehub migrate up
	AutoMigrate bool `yaml:"auto_migrate" json:"auto_migrate" env:"AUTO_MIGRATE"`

	Pool PoolConfig `yaml:"pool" json:"pool" env:"POOL"`
}

// DefaultConfig 默认不启用
func DefaultConfig() Config {
	return Config{MaxRetries: 3, Pool: DefaultPoolConfig()}
}

// Enabled 是否配置了驱动
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Driver) != ""
}

// Dialector 按驱动名选择 GORM 方言，驱动别名与迁移工具保持一致
func Dialector(driverName, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(driverName)) {
	case "postgres", "postgresql", "pg":
		return postgres.Open(dsn), nil
	case "mysql", "mariadb":
		return mysql.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database driver: %q", driverName)
}

// Open 连接归档库
func Open(cfg Config, logger *zap.Logger) (*PoolManager, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database dsn is required")
	}
	if err := cfg.Pool.Validate(); err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	level := gormlogger.Silent
	if cfg.Debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open %s archive: %w", cfg.Driver, err)
	}
	return NewPoolManager(db, cfg.Pool, logger)
}

// =============================================================================
// 🗄️ 连接池
// =============================================================================

// PoolConfig 连接池配置；0 表示沿用 database/sql 默认值
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`

	// 后台探活间隔，0 关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultPoolConfig 归档写入频率低，连接数不必大
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        4,
		MaxOpenConns:        16,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate 负数非法，空闲连接数不得超过最大连接数
func (c PoolConfig) Validate() error {
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("connection limits must not be negative")
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) must not exceed max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// PoolManager 持有归档库的 GORM 句柄与底层连接池
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	closeOnce sync.Once
	stop      chan struct{}
	loopDone  sync.WaitGroup
}

// ErrPoolClosed 关闭后的任何操作
var ErrPoolClosed = errors.New("database pool is closed")

// NewPoolManager 接管一个已打开的 GORM 句柄
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "archive_pool")),
		stop:   make(chan struct{}),
	}
	if config.HealthCheckInterval > 0 {
		pm.loopDone.Add(1)
		go pm.probe(config.HealthCheckInterval)
	}

	pm.logger.Info("archive pool ready",
		zap.String("dialect", db.Dialector.Name()),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)
	return pm, nil
}

func (pm *PoolManager) isClosed() bool {
	select {
	case <-pm.stop:
		return true
	default:
		return false
	}
}

// DB GORM 句柄
func (pm *PoolManager) DB() *gorm.DB { return pm.db }

// SQL 底层连接池，供 Prometheus DBStats 采集
func (pm *PoolManager) SQL() *sql.DB { return pm.sqlDB }

// Ping 探活；用于 /readyz
func (pm *PoolManager) Ping(ctx context.Context) error {
	if pm.isClosed() {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// PoolStats 连接池快照
type PoolStats struct {
	MaxOpen      int           `json:"max_open"`
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

// Stats 当前连接池状态
func (pm *PoolManager) Stats() PoolStats {
	s := pm.sqlDB.Stats()
	return PoolStats{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// Close 停止探活并关闭连接池，可重复调用
func (pm *PoolManager) Close() error {
	var err error
	pm.closeOnce.Do(func() {
		close(pm.stop)
		pm.loopDone.Wait()
		err = pm.sqlDB.Close()
		pm.logger.Info("archive pool closed")
	})
	return err
}

func (pm *PoolManager) probe(every time.Duration) {
	defer pm.loopDone.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := pm.sqlDB.PingContext(ctx); err != nil {
			pm.logger.Warn("archive ping failed", zap.Error(err))
		} else {
			st := pm.Stats()
			pm.logger.Debug("archive ping ok", zap.Int("open", st.Open), zap.Int("in_use", st.InUse))
		}
		cancel()
	}
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 事务体
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 执行一次事务，fn 返回错误时回滚
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	if pm.isClosed() {
		return ErrPoolClosed
	}
	return pm.db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 事务遇到死锁、序列化冲突、锁超时或断连时整体重试，
// 间隔 100ms 起翻倍，最多 attempts 次
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, attempts int, fn TransactionFunc) error {
	attempts = max(attempts, 1)
	delay := 100 * time.Millisecond

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = pm.WithTransaction(ctx, fn); err == nil || !isRetryableError(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		pm.logger.Warn("archive transaction conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", attempts, err)
}

// PostgreSQL SQLSTATE
var retryablePgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// MySQL 错误号
var retryableMySQLErrors = map[uint16]bool{
	1205: true, // ER_LOCK_WAIT_TIMEOUT
	1213: true, // ER_LOCK_DEADLOCK
}

// isRetryableError 只认驱动给出的瞬时错误，约束冲突等永久错误直接返回
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryablePgCodes[pgErr.Code]
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return retryableMySQLErrors[myErr.Number]
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	// sqlite 驱动只给出文本：SQLITE_BUSY / SQLITE_LOCKED
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
