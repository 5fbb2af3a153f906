// file: internal/service/ingest.go
package service

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"ClickFlow/internal/observe"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	msgClickHouseDone = "Ingestion from ClickHouse completed"
	msgFlatFileDone   = "Ingestion from FlatFile completed"
	msgJoinDone       = "Join Ingestion completed"
)

// Ingest 执行一次单表摄取。
// Source=ClickHouse: 表 TableName 导出到文件 FileName (默认 output.csv)；
// Source=FlatFile: 文件 FileName 写入表 TableName。
func (s *IngestionService) Ingest(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error) {
	kind, ok := domain.ParseSourceKind(req.Source)
	if !ok {
		return nil, port.ErrInvalidSource
	}
	if len(req.Columns) == 0 {
		return nil, port.ErrNoColumns
	}
	delim, err := domain.ParseDelimiter(req.Delimiter)
	if err != nil {
		return nil, err
	}
	table := strings.TrimSpace(req.TableName)
	if table == "" {
		return nil, port.ErrTableRequired
	}
	file := strings.TrimSpace(req.FileName)
	if file == "" {
		if kind == domain.SourceFlatFile {
			return nil, port.ErrFileRequired
		}
		file = s.opts.DefaultOutput
	}

	job := &domain.Job{
		Kind:      domain.JobKindIngest,
		Source:    string(kind),
		TableName: table,
		FileName:  file,
		Columns:   req.Columns,
	}
	s.startJob(ctx, job)

	var (
		count int64
		msg   string
	)
	switch kind {
	case domain.SourceClickHouse:
		count, err = s.exportToFile(ctx, file, delim, func(sink port.RowSink) (int64, error) {
			return s.warehouse.ExportTable(ctx, table, req.Columns, sink)
		})
		msg = msgClickHouseDone
	case domain.SourceFlatFile:
		count, err = s.loadFile(ctx, file, delim, table, req.Columns)
		msg = msgFlatFileDone
	}

	s.finishJob(job, count, err)
	if err != nil {
		return nil, err
	}
	return &domain.IngestionResult{RecordCount: count, Message: msg, JobID: job.ID}, nil
}

// JoinIngest 把多表 JOIN 的结果导出到平面文件
func (s *IngestionService) JoinIngest(ctx context.Context, req domain.JoinIngestionRequest) (*domain.IngestionResult, error) {
	if len(req.Tables) < 2 {
		return nil, port.ErrJoinNeedsTables
	}
	if len(req.Columns) == 0 {
		return nil, port.ErrNoColumns
	}
	delim, err := domain.ParseDelimiter(req.Delimiter)
	if err != nil {
		return nil, err
	}
	file := strings.TrimSpace(req.FileName)
	if file == "" {
		file = s.opts.DefaultOutput
	}

	job := &domain.Job{
		Kind:      domain.JobKindJoin,
		Source:    string(domain.SourceClickHouse),
		TableName: strings.Join(req.Tables, ","),
		FileName:  file,
		Columns:   req.Columns,
	}
	s.startJob(ctx, job)

	count, err := s.exportToFile(ctx, file, delim, func(sink port.RowSink) (int64, error) {
		return s.warehouse.ExportJoin(ctx, req.Tables, req.JoinCondition, req.Columns, sink)
	})
	s.finishJob(job, count, err)
	if err != nil {
		return nil, err
	}
	return &domain.IngestionResult{RecordCount: count, Message: msgJoinDone, JobID: job.ID}, nil
}

// exportToFile 打开输出文件，导出成功才提交，失败时丢弃
func (s *IngestionService) exportToFile(ctx context.Context, file string, delim rune, export func(port.RowSink) (int64, error)) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sink, err := s.files.Create(file, delim)
	if err != nil {
		return 0, err
	}
	count, err := export(sink)
	if err != nil {
		if errAbort := sink.Abort(); errAbort != nil {
			slog.Warn("丢弃未完成的输出文件失败", "file", file, "error", errAbort)
		}
		return count, err
	}
	if err := sink.Close(); err != nil {
		return count, err
	}
	return count, nil
}

// loadFile 读取与写入并发执行，通过有界通道传递行
func (s *IngestionService) loadFile(ctx context.Context, file string, delim rune, table string, columns []string) (int64, error) {
	rows := make(chan []string, s.opts.PipelineBuffer)
	g, gctx := errgroup.WithContext(ctx)

	var skipped, inserted int64
	g.Go(func() error {
		defer close(rows)
		n, err := s.files.Stream(gctx, file, delim, columns, rows)
		skipped = n
		return err
	})
	g.Go(func() error {
		n, err := s.warehouse.InsertRows(gctx, table, columns, rows)
		inserted = n
		return err
	})

	err := g.Wait()
	if skipped > 0 {
		slog.Info("摄取时跳过了字段不足的行", "file", file, "table", table, "skipped", skipped)
	}
	return inserted, err
}

// startJob 记录任务开始；任务库不可用时摄取照常进行
func (s *IngestionService) startJob(ctx context.Context, job *domain.Job) {
	job.StartedAt = time.Now().UTC()
	if s.jobs == nil {
		return
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		slog.Warn("记录摄取任务失败", "kind", job.Kind, "error", err)
		job.ID = ""
	}
}

func (s *IngestionService) finishJob(job *domain.Job, count int64, runErr error) {
	observe.ObserveJob(string(job.Kind), job.Source, count, runErr)
	s.previews.Flush()

	logArgs := []any{"job_id", job.ID, "kind", job.Kind, "source", job.Source, "table", job.TableName, "file", job.FileName, "records", count}
	if runErr != nil {
		slog.Error("摄取任务失败", append(logArgs, "error", runErr)...)
	} else {
		slog.Info("摄取任务完成", logArgs...)
	}

	if s.jobs == nil || job.ID == "" {
		return
	}
	// 请求被取消时也要落库
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.jobs.Finish(ctx, job.ID, count, runErr); err != nil {
		slog.Warn("更新摄取任务状态失败", "job_id", job.ID, "error", err)
	}
}

// Jobs 返回最近的任务记录
func (s *IngestionService) Jobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	if s.jobs == nil {
		return []*domain.Job{}, nil
	}
	return s.jobs.List(ctx, limit)
}

// Job 按 id 返回任务记录
func (s *IngestionService) Job(ctx context.Context, id string) (*domain.Job, error) {
	if s.jobs == nil {
		return nil, port.ErrJobNotFound
	}
	job, err := s.jobs.Get(ctx, id)
	if err != nil && !errors.Is(err, port.ErrJobNotFound) {
		slog.Error("查询摄取任务失败", "job_id", id, "error", err)
	}
	return job, err
}
