// Package port file: internal/core/port/service.go
package port

import (
	"ClickFlow/internal/core/domain"
	"context"
)

// IngestionService 是传输层 (HTTP/CLI) 看到的全部业务操作
type IngestionService interface {
	ConfigureConnection(ctx context.Context, details domain.ConnectionDetails) (string, error)
	TestConnection(ctx context.Context) string
	HealthCheck(ctx context.Context) error
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]string, error)
	FlatFileColumns(ctx context.Context, fileName, delimiter string) ([]string, error)
	Data(ctx context.Context, req domain.DataRequest) (domain.Grid, error)
	Ingest(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error)
	JoinIngest(ctx context.Context, req domain.JoinIngestionRequest) (*domain.IngestionResult, error)
	Jobs(ctx context.Context, limit int) ([]*domain.Job, error)
	Job(ctx context.Context, id string) (*domain.Job, error)
}
