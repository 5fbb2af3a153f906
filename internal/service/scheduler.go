// file: internal/service/scheduler.go
package service

import (
	"ClickFlow/internal/config"
	"ClickFlow/internal/core/domain"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Ingester 是调度器触发摄取所需的最小接口
type Ingester interface {
	Ingest(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error)
}

// Scheduler 按 cron 表达式周期性地执行配置中声明的摄取
type Scheduler struct {
	cron    *cron.Cron
	svc     Ingester
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID // schedule name → cron entry
}

// NewScheduler 创建调度器；timeout<=0 表示单次执行不设超时
func NewScheduler(svc Ingester, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:     svc,
		timeout: timeout,
		entries: make(map[string]cron.EntryID),
	}
}

// Load 注册全部计划，任何一个 cron 表达式非法都返回错误
func (s *Scheduler) Load(schedules []config.ScheduleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sc := range schedules {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("schedule-%d", i)
		}
		if _, exists := s.entries[name]; exists {
			return fmt.Errorf("计划名称重复: %s", name)
		}
		req := sc.Request
		entryID, err := s.cron.AddFunc(sc.Cron, func() { s.run(name, req) })
		if err != nil {
			return fmt.Errorf("计划 %s 的 cron 表达式 %q 非法: %w", name, sc.Cron, err)
		}
		s.entries[name] = entryID
		slog.Info("已注册定时摄取", "schedule", name, "cron", sc.Cron, "source", req.Source, "table", req.TableName, "file", req.FileName)
	}
	return nil
}

// run 执行一次计划摄取，结果由 Ingest 记录为任务
func (s *Scheduler) run(name string, req domain.IngestionRequest) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.svc.Ingest(ctx, req)
	if err != nil {
		slog.Warn("定时摄取失败", "schedule", name, "error", err)
		return
	}
	slog.Info("定时摄取完成", "schedule", name, "records", res.RecordCount, "job_id", res.JobID)
}

// Entries 返回已注册的计划名称及下一次执行时间
func (s *Scheduler) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// Start 启动 cron
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("摄取调度器已启动", "schedules", len(s.entries))
}

// Stop 停止 cron 并等待正在执行的任务结束 (最多到 ctx 截止)
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("等待定时摄取结束超时")
	}
	slog.Info("摄取调度器已停止")
}
