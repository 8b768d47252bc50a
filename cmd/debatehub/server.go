package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/debatehub/api/handlers"
	"github.com/BaSui01/debatehub/config"
	"github.com/BaSui01/debatehub/internal/server"
	"github.com/BaSui01/debatehub/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 DebateHub 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app

	otel *telemetry.Providers

	httpManager *server.Manager

	// Handlers
	healthHandler   *handlers.HealthHandler
	sessionHandler  *handlers.SessionHandler
	streamHandler   *handlers.StreamHandler
	personaHandler  *handlers.PersonaHandler
	documentHandler *handlers.DocumentHandler
	archiveHandler  *handlers.ArchiveHandler

	// 后台任务（限流清理、人设监听）的生命周期
	bgCancel context.CancelFunc

	shutdownOnce sync.Once
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, a *app, otel *telemetry.Providers, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		app:    a,
		otel:   otel,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// 1. 初始化 Handlers
	s.initHandlers()

	// 2. 人设热加载
	if err := s.app.watchPersonas(bgCtx); err != nil {
		return err
	}

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(bgCtx); err != nil {
		return err
	}

	s.logger.Info("server started",
		zap.String("addr", s.httpManager.Addr()),
		zap.Bool("tls", s.cfg.Server.TLSEnabled()),
		zap.Bool("auth", s.cfg.AuthEnabled()),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger,
		func() int { return len(s.app.manager.List()) },
		s.app.healthChecks()...)

	s.sessionHandler = handlers.NewSessionHandler(s.app.manager, s.logger)
	s.streamHandler = handlers.NewStreamHandler(s.app.manager, s.app.bus, s.logger,
		handlers.WithOriginPatterns(s.cfg.Auth.CORSAllowedOrigins...),
	)
	s.personaHandler = handlers.NewPersonaHandler(s.app.manager.Personas, s.logger)

	if s.app.ingestor != nil {
		s.documentHandler = handlers.NewDocumentHandler(s.app.ingestor, s.logger)
	}
	if s.app.archive != nil {
		s.archiveHandler = handlers.NewArchiveHandler(s.app.archive, s.logger)
	}

	s.logger.Info("handlers initialized",
		zap.Bool("documents", s.documentHandler != nil),
		zap.Bool("transcripts", s.archiveHandler != nil),
	)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查与版本
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(handlers.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit}))
	mux.Handle("GET /metrics", promhttp.Handler())

	// 会话
	s.sessionHandler.Register(mux)
	mux.HandleFunc("GET /api/v1/sessions/{id}/stream", s.streamHandler.HandleStream)

	// 人设 / 文档 / 归档
	mux.HandleFunc("GET /api/v1/personas", s.personaHandler.HandleList)
	if s.documentHandler != nil {
		mux.HandleFunc("POST /api/v1/documents", s.documentHandler.HandleIngest)
	}
	if s.archiveHandler != nil {
		mux.HandleFunc("GET /api/v1/transcripts", s.archiveHandler.HandleList)
		mux.HandleFunc("GET /api/v1/transcripts/{id}", s.archiveHandler.HandleGet)
	}
	return mux
}

// buildHandler 路由外包中间件链（从外到内）
func (s *Server) buildHandler(ctx context.Context) http.Handler {
	auth := s.cfg.Auth
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.app.metrics),
		RequestLogger(s.logger),
		CORS(auth.CORSAllowedOrigins),
	}
	if auth.JWT.Enabled() {
		chain = append(chain, JWTAuth(auth.JWT, skipAuthPaths, s.logger))
	} else if len(auth.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(auth.APIKeys, skipAuthPaths, auth.AllowQueryAPIKey, s.logger))
	} else {
		s.logger.Warn("authentication disabled, API is open")
	}
	if auth.RateLimitRPS > 0 {
		// 认证之后限流，JWT 用户按 user_id 计数
		chain = append(chain, RateLimiter(ctx, auth.RateLimitRPS, auth.RateLimitBurst, s.logger))
	}
	return Chain(s.routes(), chain...)
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	serverConfig := s.cfg.Server
	// WebSocket 推送是长连接，WriteTimeout 会把它截断
	serverConfig.WriteTimeout = 0

	s.httpManager = server.NewManager(s.buildHandler(ctx), serverConfig, s.logger)
	s.httpManager.OnShutdown(s.streamHandler.Drain)

	if serverConfig.TLSEnabled() {
		return s.httpManager.StartTLS(serverConfig.TLSCertFile, serverConfig.TLSKeyFile)
	}
	return s.httpManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(ctx)
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Info("starting graceful shutdown")

		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// 1. 取消后台自动运行，等待它们停在轮次边界
		if s.sessionHandler != nil {
			if err := s.sessionHandler.Shutdown(ctx); err != nil {
				s.logger.Warn("background runs did not stop in time", zap.Error(err))
			}
		}

		// 2. 停止限流清理与人设监听
		if s.bgCancel != nil {
			s.bgCancel()
		}

		// 3. 关闭 HTTP 服务器（Manager 的幂等关闭，已关闭时直接返回）
		if s.httpManager != nil {
			if err := s.httpManager.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", zap.Error(err))
			}
		}

		// 4. 事件总线、Redis、数据库
		s.app.close()

		// 5. 刷新追踪数据
		if s.otel != nil {
			if err := s.otel.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("telemetry shutdown error", zap.Error(err))
			}
		}

		s.logger.Info("graceful shutdown completed")
	})
}
