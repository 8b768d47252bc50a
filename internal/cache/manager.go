// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/internal/tlsutil"
)

// =============================================================================
// 💾 Redis 连接
// =============================================================================

// Config Redis 配置；快照与事件总线共用一个连接池
type Config struct {
	Addr     string `yaml:"addr" json:"addr" env:"ADDR"`
	Password string `yaml:"password" json:"-" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" env:"DB"`
	TLS      bool   `yaml:"tls" json:"tls" env:"TLS"`

	// Set 未指定 ttl 时使用
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`

	// 会话快照保留时长，读取时顺延；0 表示使用 DefaultTTL
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" json:"snapshot_ttl" env:"SNAPSHOT_TTL"`

	KeyPrefix    string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// 后台探活间隔，0 关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultConfig 本地 Redis，快照保留一天
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DefaultTTL:          5 * time.Minute,
		SnapshotTTL:         24 * time.Hour,
		KeyPrefix:           "debatehub:",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

func (c Config) redisOptions() *redis.Options {
	opts := &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		MaxRetries:   c.MaxRetries,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
	if c.TLS {
		opts.TLSConfig = tlsutil.Client()
	}
	return opts
}

func (c Config) snapshotTTL() time.Duration {
	if c.SnapshotTTL > 0 {
		return c.SnapshotTTL
	}
	return c.DefaultTTL
}

var (
	// ErrCacheMiss 键不存在或已过期
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed Close 之后的调用
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Manager 持有 Redis 客户端，提供带前缀的键值读写
type Manager struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	closeOnce sync.Once
	stop      chan struct{}
	probeDone sync.WaitGroup
}

// NewManager 连接并 Ping 一次，失败时不返回半初始化的 Manager
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(config.redisOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", config.Addr, err)
	}

	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}
	if config.HealthCheckInterval > 0 {
		m.probeDone.Add(1)
		go m.probe(config.HealthCheckInterval)
	}
	m.logger.Info("redis connected", zap.String("addr", config.Addr), zap.Int("db", config.DB))
	return m, nil
}

// Client 底层客户端，事件总线的 pub/sub 复用同一连接池
func (m *Manager) Client() *redis.Client { return m.client }

// Key 拼接前缀：Key("session", id) -> "debatehub:session:<id>"
func (m *Manager) Key(parts ...string) string {
	return m.config.KeyPrefix + strings.Join(parts, ":")
}

func (m *Manager) closed() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

// Fetch 读取原始值；slide > 0 时用 GETEX 同时顺延过期时间
func (m *Manager) Fetch(ctx context.Context, key string, slide time.Duration) ([]byte, error) {
	if m.closed() {
		return nil, ErrClosed
	}
	var cmd *redis.StringCmd
	if slide > 0 {
		cmd = m.client.GetEx(ctx, key, slide)
	} else {
		cmd = m.client.Get(ctx, key)
	}
	val, err := cmd.Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		m.logger.Warn("redis read failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Get 读取字符串值
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	b, err := m.Fetch(ctx, key, 0)
	return string(b), err
}

// Set ttl 为 0 时使用 DefaultTTL
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if m.closed() {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if err := m.client.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Warn("redis write failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetJSON 序列化后写入
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return m.Set(ctx, key, data, ttl)
}

// Delete 删除若干键，不存在的键忽略
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if m.closed() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping 用于 /readyz
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed() {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// Close 停止探活并关闭连接池，可重复调用
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stop)
		m.probeDone.Wait()
		err = m.client.Close()
		m.logger.Info("redis connection closed")
	})
	return err
}

func (m *Manager) probe(every time.Duration) {
	defer m.probeDone.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.client.Ping(ctx).Err(); err != nil {
			m.logger.Warn("redis ping failed", zap.Error(err))
		}
		cancel()
	}
}
