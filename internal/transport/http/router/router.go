// file: internal/transport/http/router/router.go
package router

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/core/port"
	"ClickFlow/internal/middleware"
	"ClickFlow/internal/observe"
	"ClickFlow/internal/service"
	errmw "ClickFlow/internal/transport/http/middleware"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// 与原有前端约定的错误前缀
const (
	prefixConfigure = "Configuration failed: "
	prefixTables    = "Error fetching tables: "
	prefixColumns   = "Error fetching columns: "
	prefixFileCols  = "Error fetching flat file columns: "
	prefixData      = "Error fetching data: "
	prefixIngest    = "Error: "
)

// RouteRegistrar 由需要挂载到同一引擎上的模块实现 (例如 Web UI)
type RouteRegistrar interface {
	Register(r gin.IRouter)
}

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Ingestion   port.IngestionService
	Auth        *service.AuthService
	Limiter     *middleware.RateLimiter
	LoginLock   *middleware.LoginFailureLock
	CORSOrigins []string
	// TrustedProxies 为空时 ClientIP 只取连接的对端地址
	TrustedProxies []string
	UI             RouteRegistrar
	// HealthTimeout 是 /healthz 探测 ClickHouse 的超时时间
	HealthTimeout time.Duration
}

// New 创建并配置基于 Gin 的 HTTP 路由器
func New(deps Dependencies) http.Handler {
	router := gin.Default()
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		slog.Error("可信代理配置无效，已改为不信任任何代理", "proxies", deps.TrustedProxies, "error", err)
		_ = router.SetTrustedProxies(nil)
	}

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// --- 配置全局中间件 ---
	router.Use(observe.PrometheusMiddleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if deps.Limiter != nil {
		router.Use(deps.Limiter.Chain()...)
	}

	// --- 系统平面 ---
	router.GET("/healthz", healthHandler(deps.Ingestion, deps.HealthTimeout))
	router.GET("/metrics", gin.WrapH(observe.Handler()))

	authGroup := router.Group("/api/auth")
	{
		login := []gin.HandlerFunc{}
		if deps.LoginLock != nil {
			login = append(login, deps.LoginLock.Middleware())
		}
		authGroup.POST("/login", append(login, loginHandler(deps.Auth))...)
	}

	// --- 摄取平面 ---
	api := router.Group("/api/ingestion")
	api.Use(middleware.RequireAuth(deps.Auth), errmw.ErrorHandlingMiddleware())
	{
		api.POST("/configure-connection", configureHandler(deps.Ingestion))
		api.GET("/test-connection", testConnectionHandler(deps.Ingestion))
		api.GET("/tables", tablesHandler(deps.Ingestion))
		api.GET("/columns/:tableName", columnsHandler(deps.Ingestion))
		api.GET("/flatfile-columns", flatFileColumnsHandler(deps.Ingestion))
		api.GET("/data", dataHandler(deps.Ingestion))
		api.POST("/ingest", ingestHandler(deps.Ingestion))
		api.POST("/clickhouse-join-to-flatfile", joinHandler(deps.Ingestion))
		api.GET("/jobs", jobsHandler(deps.Ingestion))
		api.GET("/jobs/:id", jobHandler(deps.Ingestion))
	}

	if deps.UI != nil {
		deps.UI.Register(router)
	}

	return router
}

// =============================================================================
//  Handlers: 系统平面
// =============================================================================

func healthHandler(svc port.IngestionService, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		if err := svc.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "clickhouse": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clickhouse": "up"})
	}
}

func loginHandler(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil || !auth.Enabled() {
			c.JSON(http.StatusNotFound, gin.H{"error": "未启用 API 鉴权"})
			return
		}
		var body struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数验证失败", "details": err.Error()})
			return
		}
		token, err := auth.Login(body.Username, body.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码无效"})
			return
		}
		slog.Info("API 用户登录成功", "user", body.Username, "ip", c.ClientIP())
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// =============================================================================
//  Handlers: 摄取平面
// =============================================================================

func configureHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var details domain.ConnectionDetails
		if err := c.ShouldBindJSON(&details); err != nil {
			failBind(c, prefixConfigure, err)
			return
		}
		msg, err := svc.ConfigureConnection(c.Request.Context(), details)
		if err != nil {
			errmw.Fail(c, prefixConfigure, err)
			return
		}
		slog.Info("ClickHouse 连接已配置", "details", fmt.Sprintf("%+v", details.Redacted()))
		c.String(http.StatusOK, msg)
	}
}

func testConnectionHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, svc.TestConnection(c.Request.Context()))
	}
}

func tablesHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tables, err := svc.Tables(c.Request.Context())
		if err != nil {
			errmw.Fail(c, prefixTables, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(tables))
	}
}

func columnsHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cols, err := svc.Columns(c.Request.Context(), c.Param("tableName"))
		if err != nil {
			errmw.Fail(c, prefixColumns, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(cols))
	}
}

func flatFileColumnsHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cols, err := svc.FlatFileColumns(c.Request.Context(), c.Query("fileName"), c.Query("delimiter"))
		if err != nil {
			errmw.Fail(c, prefixFileCols, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(cols))
	}
}

func dataHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := domain.DataRequest{
			Source:    c.Query("source"),
			TableName: c.Query("tableName"),
			FileName:  c.Query("fileName"),
			Delimiter: c.Query("delimiter"),
			// 同时接受 columns=a&columns=b 和 columns[]=a 两种写法
			Columns: append(c.QueryArray("columns"), c.QueryArray("columns[]")...),
		}
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				failBind(c, prefixData, fmt.Errorf("limit 参数非法: %q", raw))
				return
			}
			req.Limit = n
		}
		grid, err := svc.Data(c.Request.Context(), req)
		if err != nil {
			errmw.Fail(c, prefixData, err)
			return
		}
		if grid == nil {
			grid = domain.Grid{}
		}
		c.JSON(http.StatusOK, grid)
	}
}

func ingestHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domain.IngestionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			failBind(c, prefixIngest, err)
			return
		}
		res, err := svc.Ingest(c.Request.Context(), req)
		if err != nil {
			errmw.Fail(c, prefixIngest, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func joinHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domain.JoinIngestionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			failBind(c, prefixIngest, err)
			return
		}
		res, err := svc.JoinIngest(c.Request.Context(), req)
		if err != nil {
			errmw.Fail(c, prefixIngest, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func jobsHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		jobs, err := svc.Jobs(c.Request.Context(), limit)
		if err != nil {
			errmw.FailJSON(c, err)
			return
		}
		if jobs == nil {
			jobs = []*domain.Job{}
		}
		c.JSON(http.StatusOK, jobs)
	}
}

func jobHandler(svc port.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := svc.Job(c.Request.Context(), c.Param("id"))
		if err != nil {
			errmw.FailJSON(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// =============================================================================
//  辅助函数
// =============================================================================

func failBind(c *gin.Context, prefix string, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind).SetMeta(errmw.Surface{Prefix: prefix})
	c.Abort()
}

// nonNil 保证空列表序列化为 [] 而不是 null
func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
