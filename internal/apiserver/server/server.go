// Package server 路由配置与核心基础设施
//
// 本文件定义 HTTP API 路由，将请求分发到各领域独立包：
//   - auth: 注册、登录、令牌刷新、账号状态
//   - owner / tenant: 房东与租客档案
//   - apartment: 房源
//   - application: 租房申请工作流
//   - notify: WebSocket 实时通知
//
// 本包只保留跨领域的部分：中间件、Prometheus 指标、健康检查与 API 文档。
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rental-admin/api"
	"rental-admin/internal/apiserver/apartment"
	"rental-admin/internal/apiserver/application"
	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/apiserver/notify"
	"rental-admin/internal/apiserver/owner"
	"rental-admin/internal/apiserver/tenant"
	"rental-admin/internal/config"
	"rental-admin/internal/shared/infra"
	"rental-admin/internal/shared/objstore"
	"rental-admin/pkg/logging"
)

// MetricsNamespace Prometheus 指标前缀
const MetricsNamespace = "rental"

// Deps Server 依赖
type Deps struct {
	Config *config.Config
	Infra  *infra.Infrastructure
	Logger *logging.Logger

	// Registry 为 nil 时使用 Prometheus 默认注册表
	Registry *prometheus.Registry
}

// Server API 服务
type Server struct {
	cfg      *config.Config
	infra    *infra.Infrastructure
	logger   *logging.Logger
	doc      *openapi3.T
	metrics  *Metrics
	gatherer prometheus.Gatherer
	authn    *auth.Authenticator
	gateway  *notify.Gateway
	started  time.Time
}

// New 创建 Server
func New(d Deps) (*Server, error) {
	doc, err := api.LoadSpec()
	if err != nil {
		return nil, fmt.Errorf("openapi: %w", err)
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Default("api-server")
	}

	var reg prometheus.Registerer
	var gatherer prometheus.Gatherer
	if d.Registry != nil {
		reg, gatherer = d.Registry, d.Registry
	}

	s := &Server{
		cfg:      d.Config,
		infra:    d.Infra,
		logger:   logger,
		doc:      doc,
		metrics:  NewMetrics(MetricsNamespace, reg),
		gatherer: gatherer,
		authn:    auth.NewAuthenticator(d.Infra.Storage, d.Config.Auth),
		started:  time.Now(),
	}
	s.gateway = notify.NewGateway(d.Infra.Events, s.authn)
	s.metrics.RegisterGauge(MetricsNamespace, "websocket_connections_active",
		"Active notification WebSocket connections",
		func() float64 { return float64(s.gateway.ClientCount()) })
	return s, nil
}

// Metrics 返回指标实例
func (s *Server) Metrics() *Metrics { return s.metrics }

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 基础:
//   - GET /                     - 欢迎信息
//   - GET /health               - 健康检查
//   - GET /metrics              - Prometheus 指标
//   - GET /api/openapi.yaml     - OpenAPI 文档
//   - GET /api/docs             - API 文档页面
//   - GET /uploads/...          - 本地磁盘上传文件（未配置 MinIO 时）
//
// 业务:
//   - /api/v1/auth/...
//   - /api/v1/owners/...
//   - /api/v1/tenants/...
//   - /api/v1/apartments/...
//   - /api/v1/applications/...
//
// WebSocket:
//   - GET /ws/notifications?token=  - 实时通知
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	store := s.infra.Storage
	maxUpload := s.cfg.Server.MaxUploadMB << 20

	mux.HandleFunc("GET /{$}", s.Welcome)
	mux.HandleFunc("GET /health", s.Health)
	mux.Handle("GET /metrics", MetricsHandler(s.gatherer))
	mux.HandleFunc("GET /api/openapi.yaml", s.OpenAPISpec)
	mux.HandleFunc("GET /api/docs", s.Docs)
	if disk, ok := s.infra.Objects.(*objstore.Disk); ok {
		mux.Handle("GET /uploads/", uploadsHandler(disk.Root()))
	}

	auth.NewHandler(store, s.infra.Sessions, s.infra.Events, s.authn, s.cfg.Auth).RegisterRoutes(mux)
	owner.NewHandler(store, s.authn, s.cfg.Auth.BcryptCost).RegisterRoutes(mux)
	tenant.NewHandler(store, s.authn, s.cfg.Auth.BcryptCost).RegisterRoutes(mux)
	apartment.NewHandler(store, s.infra.Objects, s.authn, maxUpload).RegisterRoutes(mux)
	application.NewHandler(application.Deps{
		Store:     store,
		Objects:   s.infra.Objects,
		Events:    s.infra.Events,
		Authn:     s.authn,
		Logger:    s.logger,
		Metrics:   s.metrics,
		MaxUpload: maxUpload,
	}).RegisterRoutes(mux)

	// REST API：OpenAPI schema → 指标 → 404/405 信封 → mux
	apiHandler := chain(mux,
		httputil.WithSchema(s.doc),
		s.metrics.MetricsMiddleware,
		envelopeErrors,
	)

	// WebSocket 绕过指标与信封中间件，握手后连接被劫持
	top := http.NewServeMux()
	s.gateway.RegisterRoutes(top)
	top.Handle("/", apiHandler)

	handler := chain(top,
		recoverMiddleware(s.logger),
		requestIDMiddleware,
		accessLogMiddleware(s.logger),
		corsMiddleware(s.cfg.Server.CORSOrigins),
	)
	return otelhttp.NewHandler(handler, "rental-admin",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ============================================================================
// 基础接口
// ============================================================================

// Welcome 欢迎信息
func (s *Server) Welcome(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, "Welcome to Rental Admin API", map[string]string{
		"docs":    "/api/docs",
		"openapi": "/api/openapi.yaml",
	})
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"env":           s.cfg.Env,
		"uptimeSeconds": int64(time.Since(s.started).Seconds()),
		"wsClients":     s.gateway.ClientCount(),
	})
}

// OpenAPISpec 输出内嵌的 OpenAPI 文档
func (s *Server) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	data, err := api.OpenAPIFS.ReadFile(api.SpecFile)
	if err != nil {
		httputil.FromError(w, "server.openapi", err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// Docs API 文档页面
func (s *Server) Docs(w http.ResponseWriter, r *http.Request) {
	data, err := api.DocsFS.ReadFile("docs/index.html")
	if err != nil {
		httputil.FromError(w, "server.docs", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// uploadsHandler 提供本地上传目录的只读访问，不列目录
func uploadsHandler(root string) http.Handler {
	fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			httputil.Error(w, http.StatusNotFound, "Not Found")
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	})
}
