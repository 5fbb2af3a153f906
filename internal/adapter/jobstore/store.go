// Package jobstore 基于 SQLite 的摄取任务历史
// internal/adapter/jobstore/store.go
package jobstore

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// 断言 *Store 实现 port.JobStore 接口，编译期校验
var _ port.JobStore = (*Store)(nil)

// timeLayout 固定九位小数并统一用 UTC 写入，文本排序即时间排序；
// 读取用 RFC3339Nano，兼容较早写入的变长小数
const (
	timeLayout      = "2006-01-02T15:04:05.000000000Z07:00"
	parseTimeLayout = time.RFC3339Nano
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Store 把任务记录保存在 ingestion_jobs 表中
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open 打开 (或创建) instanceDir/jobs.db 并初始化表结构
func Open(instanceDir string) (*Store, error) {
	if err := os.MkdirAll(instanceDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建实例目录 '%s' 失败: %w", instanceDir, err)
	}
	dbPath := filepath.Join(instanceDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("打开任务数据库 '%s' 失败: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("任务数据库已就绪", "path", dbPath)
	return New(db), nil
}

// New 使用已初始化的连接创建 Store
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// InitSchema 检查并创建任务表
func InitSchema(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS ingestion_jobs (
        id TEXT PRIMARY KEY,
        kind TEXT NOT NULL,           -- 'ingest', 'join'
        source TEXT NOT NULL,
        table_name TEXT,
        file_name TEXT,
        columns_json TEXT NOT NULL DEFAULT '[]',
        record_count INTEGER NOT NULL DEFAULT 0,
        status TEXT NOT NULL,         -- 'running', 'succeeded', 'failed'
        error TEXT,
        started_at TEXT NOT NULL,
        finished_at TEXT
    );`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("创建 'ingestion_jobs' 表失败: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_started ON ingestion_jobs(started_at);`); err != nil {
		return fmt.Errorf("创建 'ingestion_jobs' 索引失败: %w", err)
	}
	return nil
}

// Create 插入一条运行中的任务，job.ID 为空时生成 uuid
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = s.now().UTC()
	}
	job.Status = domain.JobRunning

	cols, err := json.Marshal(job.Columns)
	if err != nil {
		return fmt.Errorf("序列化列列表失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ingestion_jobs (id, kind, source, table_name, file_name, columns_json, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), job.Source, job.TableName, job.FileName, string(cols),
		string(job.Status), formatTime(job.StartedAt))
	if err != nil {
		return fmt.Errorf("写入任务 %s 失败: %w", job.ID, err)
	}
	return nil
}

// Finish 记录任务结果，runErr 为 nil 表示成功
func (s *Store) Finish(ctx context.Context, id string, count int64, runErr error) error {
	status, errText := domain.JobSucceeded, ""
	if runErr != nil {
		status, errText = domain.JobFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_jobs SET record_count = ?, status = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		count, string(status), errText, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("更新任务 %s 失败: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", port.ErrJobNotFound, id)
	}
	return nil
}

const selectJob = `SELECT id, kind, source, table_name, file_name, columns_json, record_count, status, error, started_at, finished_at FROM ingestion_jobs`

// Get 按 id 查询任务
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", port.ErrJobNotFound, id)
	}
	return job, err
}

// List 按开始时间倒序返回最近的任务，limit<=0 时取 50 条
func (s *Store) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectJob+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询任务列表失败: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Close 关闭底层连接
func (s *Store) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*domain.Job, error) {
	var (
		job                  domain.Job
		kind, status         string
		table, file, errText sql.NullString
		colsJSON, started    string
		finished             sql.NullString
	)
	if err := r.Scan(&job.ID, &kind, &job.Source, &table, &file, &colsJSON, &job.RecordCount, &status, &errText, &started, &finished); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.TableName, job.FileName, job.Error = table.String, file.String, errText.String
	if err := json.Unmarshal([]byte(colsJSON), &job.Columns); err != nil {
		return nil, fmt.Errorf("解析任务 %s 的列列表失败: %w", job.ID, err)
	}
	t, err := time.Parse(parseTimeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("解析任务 %s 的开始时间失败: %w", job.ID, err)
	}
	job.StartedAt = t
	if finished.Valid && finished.String != "" {
		ft, err := time.Parse(parseTimeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("解析任务 %s 的结束时间失败: %w", job.ID, err)
		}
		job.FinishedAt = &ft
	}
	return &job, nil
}
