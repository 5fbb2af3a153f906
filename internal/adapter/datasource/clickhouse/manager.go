// Package clickhouse ClickHouse 数据源适配器 (连接管理、Schema 发现、导出与批量写入)
// internal/adapter/datasource/clickhouse/manager.go
package clickhouse

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// 断言 *Manager 实现 port.Warehouse 接口，编译期校验
var _ port.Warehouse = (*Manager)(nil)

// OpenFunc 根据连接参数创建连接池，测试中可替换为 sqlmock
type OpenFunc func(d domain.ConnectionDetails) (*sql.DB, error)

// Options 是 Manager 的构造参数
type Options struct {
	Default            domain.ConnectionDetails
	DialTimeout        time.Duration
	MaxOpenConns       int
	BatchSize          int
	QueryTimeout       time.Duration
	SchemaCacheEntries int
	SchemaCacheTTL     time.Duration
	Open               OpenFunc
}

// Manager 持有当前生效的 ClickHouse 连接池。
// 在第一次 Configure 之前使用配置中的默认连接。
type Manager struct {
	mu sync.RWMutex

	db      *sql.DB
	details domain.ConnectionDetails
	// gen 每次 Configure 加一，旧连接上查到的表结构不得写入缓存
	gen uint64

	open         OpenFunc
	batchSize    int
	queryTimeout time.Duration

	// columns 缓存 DESCRIBE TABLE 结果，Configure 时清空
	columns *lru.LRU[string, []string]
}

// NewManager 创建一个新的 Manager 实例，不会立即拨号
func NewManager(opts Options) *Manager {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.SchemaCacheEntries <= 0 {
		opts.SchemaCacheEntries = 256
	}
	if opts.SchemaCacheTTL <= 0 {
		opts.SchemaCacheTTL = 5 * time.Minute
	}
	open := opts.Open
	if open == nil {
		dialTimeout, maxOpen := opts.DialTimeout, opts.MaxOpenConns
		open = func(d domain.ConnectionDetails) (*sql.DB, error) {
			return openClickHouse(d, dialTimeout, maxOpen)
		}
	}
	return &Manager{
		details:      opts.Default,
		open:         open,
		batchSize:    opts.BatchSize,
		queryTimeout: opts.QueryTimeout,
		columns:      lru.NewLRU[string, []string](opts.SchemaCacheEntries, nil, opts.SchemaCacheTTL),
	}
}

// Configure 实现 port.Warehouse.Configure
func (m *Manager) Configure(ctx context.Context, details domain.ConnectionDetails) error {
	db, err := m.open(details)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.db
	m.db = db
	m.details = details
	m.gen++
	m.columns.Purge()
	m.mu.Unlock()

	if old != nil {
		if errClose := old.Close(); errClose != nil {
			slog.Warn("关闭旧的 ClickHouse 连接池失败", "error", errClose)
		}
	}
	slog.Info("ClickHouse 连接参数已更新", "host", details.Host, "port", details.Port, "database", details.Database, "jwt", details.JWTToken != "")
	return nil
}

// Details 返回当前生效的连接参数 (已脱敏)
func (m *Manager) Details() domain.ConnectionDetails {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.details.Redacted()
}

func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// cacheColumns 仅当 gen 仍是当前代时写入缓存，返回是否写入
func (m *Manager) cacheColumns(gen uint64, table string, columns []string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if gen != m.gen {
		return false
	}
	m.columns.Add(table, columns)
	return true
}

// conn 返回当前连接池，必要时用默认参数懒加载
func (m *Manager) conn() (*sql.DB, string, error) {
	m.mu.RLock()
	db, database := m.db, m.details.Database
	m.mu.RUnlock()
	if db != nil {
		return db, database, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return m.db, m.details.Database, nil
	}
	if m.details.Host == "" {
		return nil, "", port.ErrNotConfigured
	}
	opened, err := m.open(m.details)
	if err != nil {
		return nil, "", fmt.Errorf("使用默认参数打开 ClickHouse 失败: %w", err)
	}
	m.db = opened
	slog.Info("已使用默认参数建立 ClickHouse 连接池", "host", m.details.Host, "database", m.details.Database)
	return m.db, m.details.Database, nil
}

// withTimeout 为元数据/预览类查询附加超时
func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.queryTimeout > 0 {
		return context.WithTimeout(ctx, m.queryTimeout)
	}
	return context.WithCancel(ctx)
}

// TestConnection 实现 port.Warehouse.TestConnection
func (m *Manager) TestConnection(ctx context.Context) (string, error) {
	db, _, err := m.conn()
	if err != nil {
		return "", err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("查询 ClickHouse 版本失败: %w", err)
	}
	return "Connection successful: ClickHouse " + version, nil
}

// HealthCheck 实现 port.Warehouse.HealthCheck
func (m *Manager) HealthCheck(ctx context.Context) error {
	db, _, err := m.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close 关闭当前连接池
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}
