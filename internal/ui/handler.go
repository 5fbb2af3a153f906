// file: internal/ui/handler.go
package ui

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/pkg/ingestclient"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	gomponents "maragu.dev/gomponents"
)

const (
	routeIndex     = "/"
	routeConfigure = "/ui/configure"
	routeSource    = "/ui/source"
	routeColumns   = "/ui/columns"
	routePreview   = "/ui/preview"
	routeIngest    = "/ui/ingest"
	routeLogin     = "/ui/login"
	routeLogout    = "/ui/logout"
)

// 状态栏前缀
const (
	statusError       = "Error: "
	statusTablesError = "Error fetching tables: "
	statusColsError   = "Error fetching columns: "
	statusFileError   = "Error fetching flat file columns: "
	statusDataError   = "Error fetching data: "
)

// Backend 是页面所需的后端操作，由 ingestclient.Client 实现
type Backend interface {
	ConfigureConnection(ctx context.Context, details domain.ConnectionDetails) (string, error)
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]string, error)
	FlatFileColumns(ctx context.Context, fileName, delimiter string) ([]string, error)
	Data(ctx context.Context, req domain.DataRequest) (domain.Grid, error)
	Ingest(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error)
}

var _ Backend = (*ingestclient.Client)(nil)

type Handler struct {
	Backend Backend

	auth       Authenticator
	loginGuard gin.HandlerFunc
}

// Option 调整 Handler 的行为
type Option func(*Handler)

// WithAuth 启用页面登录；auth 未启用时页面保持开放
func WithAuth(auth Authenticator) Option {
	return func(h *Handler) { h.auth = auth }
}

// WithLoginGuard 在页面登录处理器之前执行 guard (例如登录失败锁定)
func WithLoginGuard(guard gin.HandlerFunc) Option {
	return func(h *Handler) { h.loginGuard = guard }
}

func NewHandler(backend Backend, opts ...Option) *Handler {
	h := &Handler{Backend: backend}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 把页面路由挂到 gin 引擎上；启用鉴权时页面路由要求有效会话
func (h *Handler) Register(r gin.IRouter) {
	if h.authEnabled() {
		login := make([]gin.HandlerFunc, 0, 2)
		if h.loginGuard != nil {
			login = append(login, h.loginGuard)
		}
		r.GET(routeLogin, gin.WrapF(h.LoginPage))
		r.POST(routeLogin, append(login, gin.WrapF(h.Login))...)
		r.POST(routeLogout, gin.WrapF(h.Logout))
	}

	page := r.Group("", h.RequireSession())
	page.GET(routeIndex, gin.WrapF(h.Index))
	page.POST(routeConfigure, gin.WrapF(h.Configure))
	page.POST(routeSource, gin.WrapF(h.Source))
	page.POST(routeColumns, gin.WrapF(h.LoadColumns))
	page.POST(routePreview, gin.WrapF(h.Preview))
	page.POST(routeIngest, gin.WrapF(h.Ingest))
}

// Index 渲染初始页面并加载表列表
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	s := DefaultFormState()
	h.loadTables(r.Context(), &s)
	renderHTML(w, http.StatusOK, ingestPage(s))
}

func (h *Handler) Configure(w http.ResponseWriter, r *http.Request) {
	s, ok := h.parse(w, r)
	if !ok {
		return
	}
	if s.Status != "" {
		renderHTML(w, http.StatusOK, ingestPage(s))
		return
	}
	if _, err := h.Backend.ConfigureConnection(r.Context(), s.Connection); err != nil {
		s.Status = statusText(statusError, err)
		renderHTML(w, http.StatusOK, ingestPage(s))
		return
	}
	s.Status = "Connection configured"
	h.loadTables(r.Context(), &s)
	renderHTML(w, http.StatusOK, ingestPage(s))
}

// Source 切换来源，预览数据随之清空
func (h *Handler) Source(w http.ResponseWriter, r *http.Request) {
	s, ok := h.parse(w, r)
	if !ok {
		return
	}
	s.SetSource(s.Source)
	renderHTML(w, http.StatusOK, ingestPage(s))
}

// LoadColumns 在选中表或输入文件后加载列并刷新预览
func (h *Handler) LoadColumns(w http.ResponseWriter, r *http.Request) {
	s, ok := h.parse(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	var (
		cols []string
		err  error
	)
	switch {
	case s.Source == domain.SourceClickHouse && s.TableName != "":
		cols, err = h.Backend.Columns(ctx, s.TableName)
		if err != nil {
			s.Status = statusText(statusColsError, err)
		}
	case s.Source == domain.SourceFlatFile && s.FlatFileName != "":
		cols, err = h.Backend.FlatFileColumns(ctx, s.FlatFileName, s.Delimiter)
		if err != nil {
			s.Status = statusText(statusFileError, err)
		}
	default:
		renderHTML(w, http.StatusOK, ingestPage(s))
		return
	}
	if err == nil {
		s.Columns = cols
		s.Selected = slices.DeleteFunc(s.Selected, func(c string) bool { return !slices.Contains(cols, c) })
	}
	h.loadData(ctx, &s)
	renderHTML(w, http.StatusOK, ingestPage(s))
}

// Preview 对应 "Refresh Data" 按钮
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.parse(w, r)
	if !ok {
		return
	}
	h.loadData(r.Context(), &s)
	renderHTML(w, http.StatusOK, ingestPage(s))
}

// Ingest 提交当前选择，成功后刷新预览
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.parse(w, r)
	if !ok {
		return
	}
	res, err := h.Backend.Ingest(r.Context(), s.IngestRequest())
	if err != nil {
		s.Status = statusText(statusError, err)
		renderHTML(w, http.StatusOK, ingestPage(s))
		return
	}
	slog.Info("页面发起的摄取完成", "source", s.Source, "records", res.RecordCount, "job_id", res.JobID)
	s.Status = fmt.Sprintf("Ingested %d records: %s", res.RecordCount, res.Message)
	h.loadData(r.Context(), &s)
	renderHTML(w, http.StatusOK, ingestPage(s))
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (FormState, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "无法解析表单数据: "+err.Error(), http.StatusBadRequest)
		return FormState{}, false
	}
	s, err := parseForm(r.PostForm)
	if err != nil {
		s.Status = statusError + "invalid port: " + err.Error()
	}
	return s, true
}

func (h *Handler) loadTables(ctx context.Context, s *FormState) {
	tables, err := h.Backend.Tables(ctx)
	if err != nil {
		s.Status = statusText(statusTablesError, err)
		return
	}
	s.Tables = tables
}

func (h *Handler) loadData(ctx context.Context, s *FormState) {
	data, err := h.Backend.Data(ctx, s.DataRequest())
	if err != nil {
		s.Status = statusText(statusDataError, err)
		return
	}
	s.Data = data
}

// statusText 生成状态栏文本；服务端错误体若已带相同前缀则不重复
func statusText(prefix string, err error) string {
	msg := err.Error()
	var apiErr *ingestclient.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	return prefix + strings.TrimPrefix(msg, prefix)
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}
