// file: internal/adapter/datasource/clickhouse/manager_test.go

package clickhouse

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 测试辅助
// -----------------------------------------------------------------------------

// newMockManager 返回一个注入了 sqlmock 连接的 Manager
func newMockManager(t *testing.T, batchSize int) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := NewManager(Options{
		Default:   domain.ConnectionDetails{Host: "localhost", Port: 8123, Database: "uk_price_paid"},
		BatchSize: batchSize,
		Open: func(domain.ConnectionDetails) (*sql.DB, error) {
			return db, nil
		},
	})
	return m, mock
}

// memorySink 在内存中收集写出的行
type memorySink struct {
	rows    [][]string
	closed  bool
	aborted bool
}

func (s *memorySink) WriteRow(row []string) error {
	s.rows = append(s.rows, row)
	return nil
}
func (s *memorySink) Close() error { s.closed = true; return nil }
func (s *memorySink) Abort() error { s.aborted = true; return nil }

// -----------------------------------------------------------------------------
// 连接管理
// -----------------------------------------------------------------------------

func TestManager_NotConfigured(t *testing.T) {
	m := NewManager(Options{Open: func(domain.ConnectionDetails) (*sql.DB, error) {
		t.Fatal("未配置主机时不应拨号")
		return nil, nil
	}})
	_, err := m.ListTables(context.Background())
	assert.ErrorIs(t, err, port.ErrNotConfigured)
}

func TestManager_ConfigureRejectsBeforeDial(t *testing.T) {
	m := NewManager(Options{})
	err := m.Configure(context.Background(), domain.ConnectionDetails{Host: "", Port: 8123})
	assert.ErrorIs(t, err, port.ErrInvalidConnection)
}

func TestManager_ConfigureSwapsDetails(t *testing.T) {
	m, _ := newMockManager(t, 10)
	details := domain.ConnectionDetails{Host: "ch2", Port: 9000, Database: "analytics", Password: "pw"}
	require.NoError(t, m.Configure(context.Background(), details))

	got := m.Details()
	assert.Equal(t, "ch2", got.Host)
	assert.Equal(t, "analytics", got.Database)
	assert.NotEqual(t, "pw", got.Password, "Details 应脱敏")
}

func TestManager_ConfigureDiscardsStaleColumns(t *testing.T) {
	ctx := context.Background()
	m, mock := newMockManager(t, 10)
	mock.ExpectQuery("DESCRIBE TABLE `uk_price_paid`").
		WillReturnRows(sqlmock.NewRows([]string{"name", "type"}).AddRow("price", "UInt32"))
	_, err := m.ListColumns(ctx, "uk_price_paid")
	require.NoError(t, err)
	require.Equal(t, 1, m.columns.Len())

	// 模拟一个在 Configure 之前开始、之后才返回的 DESCRIBE
	stale := m.generation()
	m.open = func(domain.ConnectionDetails) (*sql.DB, error) {
		db, _, err := sqlmock.New()
		if err == nil {
			t.Cleanup(func() { _ = db.Close() })
		}
		return db, err
	}
	require.NoError(t, m.Configure(ctx, domain.ConnectionDetails{Host: "ch2", Port: 9000, Database: "analytics"}))
	assert.Equal(t, 0, m.columns.Len(), "Configure 应清空表结构缓存")

	assert.False(t, m.cacheColumns(stale, "uk_price_paid", []string{"price"}), "旧连接的结果不应写入缓存")
	_, ok := m.columns.Get("uk_price_paid")
	assert.False(t, ok)

	assert.True(t, m.cacheColumns(m.generation(), "events", []string{"id"}))
	assert.Equal(t, 1, m.columns.Len())
}

func TestManager_TestConnection(t *testing.T) {
	m, mock := newMockManager(t, 10)
	mock.ExpectQuery("SELECT version()").
		WillReturnRows(sqlmock.NewRows([]string{"version()"}).AddRow("24.3.1"))

	msg, err := m.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Connection successful: ClickHouse 24.3.1", msg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_TestConnectionFailure(t *testing.T) {
	m, mock := newMockManager(t, 10)
	mock.ExpectQuery("SELECT version()").WillReturnError(errors.New("connection refused"))

	_, err := m.TestConnection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

// -----------------------------------------------------------------------------
// Schema 发现
// -----------------------------------------------------------------------------

func TestManager_ListTables(t *testing.T) {
	m, mock := newMockManager(t, 10)
	mock.ExpectQuery("SHOW TABLES FROM `uk_price_paid`").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("uk_price_paid").AddRow("postcodes"))

	tables, err := m.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"uk_price_paid", "postcodes"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_ListColumnsCached(t *testing.T) {
	m, mock := newMockManager(t, 10)
	mock.ExpectQuery("DESCRIBE TABLE `uk_price_paid`").
		WillReturnRows(sqlmock.NewRows([]string{"name", "type", "default_type"}).
			AddRow("price", "UInt32", "").
			AddRow("town", "LowCardinality(String)", ""))

	first, err := m.ListColumns(context.Background(), "uk_price_paid")
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "town"}, first)

	// 第二次调用命中缓存，不再查询
	second, err := m.ListColumns(context.Background(), "uk_price_paid")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// -----------------------------------------------------------------------------
// 预览与导出
// -----------------------------------------------------------------------------

func TestManager_Preview(t *testing.T) {
	m, mock := newMockManager(t, 10)
	mock.ExpectQuery("SELECT `price`, `town` FROM `uk_price_paid` LIMIT 2").
		WillReturnRows(sqlmock.NewRows([]string{"price", "town"}).
			AddRow(int64(250000), "LONDON").
			AddRow(int64(120000), nil))

	grid, err := m.Preview(context.Background(), "uk_price_paid", []string{"price", "town"}, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.Grid{{"250000", "LONDON"}, {"120000", ""}}, grid)
}

func TestManager_PreviewFormatsTimesByColumnType(t *testing.T) {
	m, mock := newMockManager(t, 10)
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT `sold_at`, `sold_on`, `logged_at` FROM `sales` LIMIT 1").
		WillReturnRows(mock.NewRowsWithColumnDefinition(
			mock.NewColumn("sold_at").OfType("DateTime", time.Time{}),
			mock.NewColumn("sold_on").OfType("Date", time.Time{}),
			mock.NewColumn("logged_at").OfType("DateTime64(3)", time.Time{}),
		).AddRow(midnight, midnight, midnight.Add(45*time.Millisecond)))

	grid, err := m.Preview(context.Background(), "sales", []string{"sold_at", "sold_on", "logged_at"}, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Grid{{"2024-01-01 00:00:00", "2024-01-01", "2024-01-01 00:00:00.045"}}, grid,
		"午夜的 DateTime 不应被截成日期")
}

func TestManager_ExportTable(t *testing.T) {
	m, mock := newMockManager(t, 10)
	mock.ExpectQuery("SELECT `price` FROM `uk_price_paid`").
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow("1").AddRow("2").AddRow("3"))

	sink := &memorySink{}
	n, err := m.ExportTable(context.Background(), "uk_price_paid", []string{"price"}, sink)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, [][]string{{"price"}, {"1"}, {"2"}, {"3"}}, sink.rows, "首行应为表头")
	assert.False(t, sink.closed, "sink 由调用方关闭")
}

func TestManager_ExportJoin(t *testing.T) {
	m, mock := newMockManager(t, 10)
	mock.ExpectQuery("SELECT `a`.`id`, `b`.`v` FROM `a` JOIN `b` ON a.id = b.id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "v"}).AddRow("1", "x"))

	sink := &memorySink{}
	n, err := m.ExportJoin(context.Background(), []string{"a", "b"}, "a.id = b.id", []string{"a.id", "b.v"}, sink)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, [][]string{{"a.id", "b.v"}, {"1", "x"}}, sink.rows)
}

// -----------------------------------------------------------------------------
// 批量写入
// -----------------------------------------------------------------------------

func TestManager_InsertRowsBatches(t *testing.T) {
	m, mock := newMockManager(t, 2)
	mock.ExpectExec("INSERT INTO `t` (`a`, `b`) VALUES ('1', 'x'), ('2', 'y')").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO `t` (`a`, `b`) VALUES ('3', 'z')").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := make(chan []string, 3)
	rows <- []string{"1", "x"}
	rows <- []string{"2", "y"}
	rows <- []string{"3", "z"}
	close(rows)

	n, err := m.InsertRows(context.Background(), "t", []string{"a", "b"}, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_InsertRowsWidthMismatch(t *testing.T) {
	m, _ := newMockManager(t, 2)
	rows := make(chan []string, 1)
	rows <- []string{"only-one"}
	close(rows)

	_, err := m.InsertRows(context.Background(), "t", []string{"a", "b"}, rows)
	assert.Error(t, err)
}

func TestManager_InsertRowsCancelled(t *testing.T) {
	m, _ := newMockManager(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := m.InsertRows(ctx, "t", []string{"a"}, make(chan []string))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}
