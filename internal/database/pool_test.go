package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// mockPool postgres 方言 + sqlmock，不连真实库
func mockPool(t *testing.T, cfg PoolConfig) (*PoolManager, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	require.NoError(t, err)

	pm, err := NewPoolManager(db, cfg, zap.NewNop())
	require.NoError(t, err)
	return pm, mock
}

func TestNewPoolManager_AppliesLimits(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)

	pm, _ := mockPool(t, PoolConfig{MaxOpenConns: 3, MaxIdleConns: 2})
	assert.Equal(t, 3, pm.Stats().MaxOpen)
	assert.NotNil(t, pm.DB())
	assert.Same(t, pm.sqlDB, pm.SQL())
}

func TestPoolManager_CloseIsIdempotent(t *testing.T) {
	pm, mock := mockPool(t, PoolConfig{HealthCheckInterval: 5 * time.Millisecond})
	require.NoError(t, pm.Ping(context.Background()))

	// 让探活循环至少跑一轮
	time.Sleep(20 * time.Millisecond)

	mock.ExpectClose()
	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	pm, mock := mockPool(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE debate_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err := pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("UPDATE debate_sessions SET active = ? WHERE id = ?", false, "s-1").Error
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = pm.WithTransaction(context.Background(), func(*gorm.DB) error {
		return errors.New("transcript shrank")
	})
	assert.EqualError(t, err, "transcript shrank")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_RetryOnDeadlock(t *testing.T) {
	pm, mock := mockPool(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})

	mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_RetryStopsOnPermanentError(t *testing.T) {
	pm, mock := mockPool(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})

	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := pm.WithTransactionRetry(context.Background(), 5, func(*gorm.DB) error {
		calls++
		return unique
	})
	assert.ErrorIs(t, err, unique)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_RetryHonoursContext(t *testing.T) {
	pm, mock := mockPool(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: "40001"})

	// 首次退避 100ms，长于 ctx 期限
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := pm.WithTransactionRetry(ctx, 10, func(*gorm.DB) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_RetryExhausted(t *testing.T) {
	pm, mock := mockPool(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	lockWait := &mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	mock.ExpectBegin().WillReturnError(lockWait)
	mock.ExpectBegin().WillReturnError(lockWait)

	err := pm.WithTransactionRetry(context.Background(), 2, func(*gorm.DB) error { return nil })
	assert.ErrorContains(t, err, "after 2 attempts")
	assert.ErrorIs(t, err, lockWait)
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&pgconn.PgError{Code: "40001"}, true},
		{fmt.Errorf("save: %w", &pgconn.PgError{Code: "40P01"}), true},
		{&pgconn.PgError{Code: "55P03"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{&mysqldriver.MySQLError{Number: 1213}, true},
		{&mysqldriver.MySQLError{Number: 1062}, false},
		{driver.ErrBadConn, true},
		{fmt.Errorf("dial tcp 10.0.0.5:5432: %w", syscall.ECONNREFUSED), true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New(`syntax error at or near "FORM"`), false},
		{context.Canceled, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, isRetryableError(c.err), "%v", c.err)
	}
}

func TestDialector(t *testing.T) {
	for driverName, dialect := range map[string]string{
		"postgres": "postgres", "pg": "postgres",
		"mysql": "mysql", "MariaDB": "mysql",
		"sqlite": "sqlite", " sqlite3 ": "sqlite",
	} {
		d, err := Dialector(driverName, "dsn")
		require.NoError(t, err, driverName)
		assert.Equal(t, dialect, d.Name(), driverName)
	}
	_, err := Dialector("oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported")
}

func TestOpen(t *testing.T) {
	assert.False(t, Config{}.Enabled())

	_, err := Open(Config{Driver: "sqlite"}, nil)
	assert.ErrorContains(t, err, "dsn is required")

	_, err = Open(Config{Driver: "sqlite", DSN: ":memory:", Pool: PoolConfig{MaxOpenConns: 1, MaxIdleConns: 2}}, nil)
	assert.ErrorContains(t, err, "max_idle_conns")

	cfg := DefaultConfig()
	cfg.Driver = "sqlite"
	cfg.DSN = ":memory:"
	cfg.Pool.HealthCheckInterval = 0
	require.True(t, cfg.Enabled())

	pm, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	require.NoError(t, pm.Ping(context.Background()))
	assert.Equal(t, "sqlite", pm.DB().Dialector.Name())
}

func TestPoolConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultPoolConfig().Validate())
	assert.NoError(t, PoolConfig{}.Validate(), "zero means driver defaults")
	assert.NoError(t, PoolConfig{MaxIdleConns: 8}.Validate(), "unlimited open conns")
	assert.Error(t, PoolConfig{MaxOpenConns: -1}.Validate())
	assert.Error(t, PoolConfig{MaxOpenConns: 2, MaxIdleConns: 3}.Validate())
}
