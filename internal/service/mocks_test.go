// file: internal/service/mocks_test.go
package service

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"context"
	"strconv"
	"sync"
)

// ============================================================================
//  共享测试替身 (Shared Test Mocks)
// ============================================================================

// mockWarehouse 是 port.Warehouse 的测试替身，未设置的函数返回零值
type mockWarehouse struct {
	ConfigureFunc      func(ctx context.Context, d domain.ConnectionDetails) error
	TestConnectionFunc func(ctx context.Context) (string, error)
	ListTablesFunc     func(ctx context.Context) ([]string, error)
	ListColumnsFunc    func(ctx context.Context, table string) ([]string, error)
	PreviewFunc        func(ctx context.Context, table string, columns []string, limit int) (domain.Grid, error)
	ExportTableFunc    func(ctx context.Context, table string, columns []string, sink port.RowSink) (int64, error)
	ExportJoinFunc     func(ctx context.Context, tables []string, cond string, columns []string, sink port.RowSink) (int64, error)
	InsertRowsFunc     func(ctx context.Context, table string, columns []string, rows <-chan []string) (int64, error)
	HealthCheckFunc    func(ctx context.Context) error
}

var _ port.Warehouse = (*mockWarehouse)(nil)

func (m *mockWarehouse) Configure(ctx context.Context, d domain.ConnectionDetails) error {
	if m.ConfigureFunc != nil {
		return m.ConfigureFunc(ctx, d)
	}
	return nil
}
func (m *mockWarehouse) TestConnection(ctx context.Context) (string, error) {
	if m.TestConnectionFunc != nil {
		return m.TestConnectionFunc(ctx)
	}
	return "Connection successful: ClickHouse test", nil
}
func (m *mockWarehouse) ListTables(ctx context.Context) ([]string, error) {
	if m.ListTablesFunc != nil {
		return m.ListTablesFunc(ctx)
	}
	return nil, nil
}
func (m *mockWarehouse) ListColumns(ctx context.Context, table string) ([]string, error) {
	if m.ListColumnsFunc != nil {
		return m.ListColumnsFunc(ctx, table)
	}
	return nil, nil
}
func (m *mockWarehouse) Preview(ctx context.Context, table string, columns []string, limit int) (domain.Grid, error) {
	if m.PreviewFunc != nil {
		return m.PreviewFunc(ctx, table, columns, limit)
	}
	return domain.Grid{}, nil
}
func (m *mockWarehouse) ExportTable(ctx context.Context, table string, columns []string, sink port.RowSink) (int64, error) {
	if m.ExportTableFunc != nil {
		return m.ExportTableFunc(ctx, table, columns, sink)
	}
	return 0, nil
}
func (m *mockWarehouse) ExportJoin(ctx context.Context, tables []string, cond string, columns []string, sink port.RowSink) (int64, error) {
	if m.ExportJoinFunc != nil {
		return m.ExportJoinFunc(ctx, tables, cond, columns, sink)
	}
	return 0, nil
}
func (m *mockWarehouse) InsertRows(ctx context.Context, table string, columns []string, rows <-chan []string) (int64, error) {
	if m.InsertRowsFunc != nil {
		return m.InsertRowsFunc(ctx, table, columns, rows)
	}
	var n int64
	for range rows {
		n++
	}
	return n, nil
}
func (m *mockWarehouse) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}
func (m *mockWarehouse) Close() error { return nil }

// mockFiles 是 port.FlatFileStore 的测试替身
type mockFiles struct {
	HeaderFunc  func(ctx context.Context, name string, delim rune) ([]string, error)
	StreamFunc  func(ctx context.Context, name string, delim rune, columns []string, out chan<- []string) (int64, error)
	PreviewFunc func(ctx context.Context, name string, delim rune, columns []string, limit int) (domain.Grid, error)

	mu    sync.Mutex
	sinks []*recordingSink
}

var _ port.FlatFileStore = (*mockFiles)(nil)

func (m *mockFiles) Resolve(name string) (string, error) { return "/data/" + name, nil }
func (m *mockFiles) Header(ctx context.Context, name string, delim rune) ([]string, error) {
	if m.HeaderFunc != nil {
		return m.HeaderFunc(ctx, name, delim)
	}
	return nil, nil
}
func (m *mockFiles) Stream(ctx context.Context, name string, delim rune, columns []string, out chan<- []string) (int64, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, name, delim, columns, out)
	}
	return 0, nil
}
func (m *mockFiles) Preview(ctx context.Context, name string, delim rune, columns []string, limit int) (domain.Grid, error) {
	if m.PreviewFunc != nil {
		return m.PreviewFunc(ctx, name, delim, columns, limit)
	}
	return domain.Grid{}, nil
}
func (m *mockFiles) Create(name string, delim rune) (port.RowSink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &recordingSink{name: name, delim: delim}
	m.sinks = append(m.sinks, s)
	return s, nil
}

// recordingSink 记录写入的行以及最终是提交还是丢弃
type recordingSink struct {
	name    string
	delim   rune
	rows    [][]string
	closed  bool
	aborted bool
}

func (s *recordingSink) WriteRow(row []string) error { s.rows = append(s.rows, row); return nil }
func (s *recordingSink) Close() error                { s.closed = true; return nil }
func (s *recordingSink) Abort() error                { s.aborted = true; return nil }

// memoryJobs 是 port.JobStore 的内存实现
type memoryJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	seq  int
}

var _ port.JobStore = (*memoryJobs)(nil)

func newMemoryJobs() *memoryJobs { return &memoryJobs{jobs: make(map[string]*domain.Job)} }

func (m *memoryJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if job.ID == "" {
		job.ID = "job-" + strconv.Itoa(m.seq)
	}
	job.Status = domain.JobRunning
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryJobs) Finish(_ context.Context, id string, count int64, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return port.ErrJobNotFound
	}
	j.RecordCount = count
	j.Status = domain.JobSucceeded
	if runErr != nil {
		j.Status = domain.JobFailed
		j.Error = runErr.Error()
	}
	return nil
}

func (m *memoryJobs) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, port.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memoryJobs) List(_ context.Context, _ int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}
