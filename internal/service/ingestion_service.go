// Package service file: internal/service/ingestion_service.go
package service

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"ClickFlow/internal/observe"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Options 是 IngestionService 的可调参数
type Options struct {
	DefaultOutput  string
	PreviewLimit   int
	PreviewMaxRows int
	PreviewTTL     time.Duration
	PipelineBuffer int
}

// IngestionService 编排 ClickHouse 与平面文件两侧的全部操作
type IngestionService struct {
	warehouse port.Warehouse
	files     port.FlatFileStore
	jobs      port.JobStore

	// previews 短期缓存 Data 的结果，任何摄取或重新配置后清空
	previews *cache.Cache
	opts     Options
}

var _ port.IngestionService = (*IngestionService)(nil)

// NewIngestionService 创建服务实例，jobs 可以为 nil (不记录任务历史)
func NewIngestionService(warehouse port.Warehouse, files port.FlatFileStore, jobs port.JobStore, opts Options) *IngestionService {
	if opts.DefaultOutput == "" {
		opts.DefaultOutput = "output.csv"
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = 100
	}
	if opts.PreviewMaxRows < opts.PreviewLimit {
		opts.PreviewMaxRows = opts.PreviewLimit
	}
	if opts.PreviewTTL <= 0 {
		opts.PreviewTTL = 30 * time.Second
	}
	if opts.PipelineBuffer <= 0 {
		opts.PipelineBuffer = 1024
	}
	return &IngestionService{
		warehouse: warehouse,
		files:     files,
		jobs:      jobs,
		previews:  cache.New(opts.PreviewTTL, 2*opts.PreviewTTL),
		opts:      opts,
	}
}

// ConfigureConnection 保存连接参数并立即测试连通性。
// 参数在测试失败时仍然生效，返回的错误只说明测试结果。
func (s *IngestionService) ConfigureConnection(ctx context.Context, details domain.ConnectionDetails) (string, error) {
	if err := s.warehouse.Configure(ctx, details); err != nil {
		return "", err
	}
	s.previews.Flush()

	msg, err := s.warehouse.TestConnection(ctx)
	s.recordHealth(err)
	if err != nil {
		slog.Warn("连接参数已保存但连通性测试失败", "host", details.Host, "port", details.Port, "error", err)
		return "", err
	}
	return msg, nil
}

// TestConnection 返回连通性描述文本，失败时以 "Connection failed: " 开头
func (s *IngestionService) TestConnection(ctx context.Context) string {
	msg, err := s.warehouse.TestConnection(ctx)
	s.recordHealth(err)
	if err != nil {
		return "Connection failed: " + err.Error()
	}
	return msg
}

// HealthCheck 检查 ClickHouse 是否可达，并更新指标
func (s *IngestionService) HealthCheck(ctx context.Context) error {
	err := s.warehouse.HealthCheck(ctx)
	s.recordHealth(err)
	return err
}

func (s *IngestionService) recordHealth(err error) {
	if err != nil {
		observe.ClickHouseUp.Set(0)
		return
	}
	observe.ClickHouseUp.Set(1)
}

// Tables 列出当前数据库中的表
func (s *IngestionService) Tables(ctx context.Context) ([]string, error) {
	return s.warehouse.ListTables(ctx)
}

// Columns 列出 ClickHouse 表的列名
func (s *IngestionService) Columns(ctx context.Context, table string) ([]string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, port.ErrTableRequired
	}
	return s.warehouse.ListColumns(ctx, table)
}

// FlatFileColumns 返回平面文件的表头
func (s *IngestionService) FlatFileColumns(ctx context.Context, fileName, delimiter string) ([]string, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, port.ErrFileRequired
	}
	delim, err := domain.ParseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	return s.files.Header(ctx, fileName, delim)
}

// Data 返回预览网格。ClickHouse 未指定列时取表的全部列；FlatFile 未指定列时取全部表头列。
func (s *IngestionService) Data(ctx context.Context, req domain.DataRequest) (domain.Grid, error) {
	kind, ok := domain.ParseSourceKind(req.Source)
	if !ok {
		return nil, port.ErrInvalidSource
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.opts.PreviewLimit
	}
	limit = min(limit, s.opts.PreviewMaxRows)

	key := previewKey(kind, req, limit)
	if cached, found := s.previews.Get(key); found {
		return cached.(domain.Grid), nil
	}

	var (
		grid domain.Grid
		err  error
	)
	switch kind {
	case domain.SourceClickHouse:
		grid, err = s.previewTable(ctx, req.TableName, req.Columns, limit)
	case domain.SourceFlatFile:
		grid, err = s.previewFile(ctx, req.FileName, req.Delimiter, req.Columns, limit)
	}
	if err != nil {
		return nil, err
	}
	s.previews.SetDefault(key, grid)
	return grid, nil
}

func (s *IngestionService) previewTable(ctx context.Context, table string, columns []string, limit int) (domain.Grid, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, port.ErrTableRequired
	}
	if len(columns) == 0 {
		all, err := s.warehouse.ListColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		columns = all
	}
	return s.warehouse.Preview(ctx, table, columns, limit)
}

func (s *IngestionService) previewFile(ctx context.Context, fileName, delimiter string, columns []string, limit int) (domain.Grid, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, port.ErrFileRequired
	}
	delim, err := domain.ParseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	return s.files.Preview(ctx, fileName, delim, columns, limit)
}

// previewKey 归一化预览请求，与来源无关的字段不参与
func previewKey(kind domain.SourceKind, req domain.DataRequest, limit int) string {
	cols := strings.Join(req.Columns, "\x1f")
	if kind == domain.SourceClickHouse {
		return fmt.Sprintf("ch|%s|%s|%d", req.TableName, cols, limit)
	}
	return fmt.Sprintf("ff|%s|%s|%s|%d", req.FileName, req.Delimiter, cols, limit)
}
