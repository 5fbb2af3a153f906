// Package port file: internal/core/port/datasource.go
package port

import (
	"ClickFlow/internal/core/domain"
	"context"
	"errors"
)

// Standard errors
var (
	ErrInvalidSource        = errors.New("Invalid source. Use 'ClickHouse' or 'FlatFile'")
	ErrInvalidDelimiter     = domain.ErrInvalidDelimiter
	ErrNoColumns            = errors.New("No columns selected")
	ErrEmptyFile            = errors.New("Empty CSV file")
	ErrColumnNotFound       = errors.New("column not found")
	ErrInvalidPath          = errors.New("invalid file path")
	ErrFileNotFound         = errors.New("file not found")
	ErrNotConfigured        = errors.New("connection is not configured")
	ErrInvalidConnection    = errors.New("invalid connection details")
	ErrJoinNeedsTables      = errors.New("At least two tables required for join")
	ErrInvalidJoinCondition = errors.New("invalid join condition")
	ErrTableRequired        = errors.New("table name is required")
	ErrFileRequired         = errors.New("file name is required")
	ErrJobNotFound          = errors.New("job not found")
	ErrUnauthorized         = errors.New("unauthorized")
)

// RowSink 接收按行写出的数据，Close 之后输出才算完整，Abort 丢弃已写内容
type RowSink interface {
	WriteRow(row []string) error
	Close() error
	Abort() error
}

// Warehouse 定义 ClickHouse 一侧的全部能力
type Warehouse interface {
	// Configure 保存新的连接参数并切换连接池；参数总是被保存，即使随后的连通性测试失败
	Configure(ctx context.Context, details domain.ConnectionDetails) error
	// TestConnection 返回描述连通性的文本，例如 "Connection successful: ClickHouse 24.3"
	TestConnection(ctx context.Context) (string, error)
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]string, error)
	Preview(ctx context.Context, table string, columns []string, limit int) (domain.Grid, error)
	// ExportTable 先写表头，再把查询结果逐行写入 sink，返回数据行数
	ExportTable(ctx context.Context, table string, columns []string, sink RowSink) (int64, error)
	ExportJoin(ctx context.Context, tables []string, joinCondition string, columns []string, sink RowSink) (int64, error)
	// InsertRows 消费 rows 直到其关闭，分批写入目标表，返回写入行数
	InsertRows(ctx context.Context, table string, columns []string, rows <-chan []string) (int64, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// FlatFileStore 定义平面文件一侧的全部能力
type FlatFileStore interface {
	// Resolve 把用户提供的文件名解析为受控根目录下的绝对路径
	Resolve(name string) (string, error)
	Header(ctx context.Context, name string, delimiter rune) ([]string, error)
	// Stream 按表头名投影列并把数据行发送到 out，不关闭 out；返回被跳过的短行数
	Stream(ctx context.Context, name string, delimiter rune, columns []string, out chan<- []string) (int64, error)
	Preview(ctx context.Context, name string, delimiter rune, columns []string, limit int) (domain.Grid, error)
	Create(name string, delimiter rune) (RowSink, error)
}

// JobStore 持久化摄取任务记录
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Finish(ctx context.Context, id string, count int64, runErr error) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]*domain.Job, error)
}
