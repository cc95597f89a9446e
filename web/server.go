package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradesync/database"
	"tradesync/jobs"
	"tradesync/logger"
)

// Server 对外查询和管理接口
type Server struct {
	db        database.Database
	scheduler *jobs.Scheduler
	engine    *gin.Engine
	srv       *http.Server
}

// NewServer 创建 Web 服务
func NewServer(db database.Database, scheduler *jobs.Scheduler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		db:        db,
		scheduler: scheduler,
		engine:    engine,
	}
	s.setupRoutes()
	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// Prometheus metrics 端点（供 Prometheus 抓取）
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.GET("/summary", s.getSummary)
		api.GET("/trades", s.getTrades)
		api.GET("/open-positions", s.getOpenPositions)
		api.GET("/sync/status", s.getSyncStatus)
		api.POST("/sync/trigger", s.triggerSync)
		api.GET("/health", s.getHealth)
	}
}

// Start 启动 HTTP 服务，非阻塞
func (s *Server) Start(listen string) {
	s.srv = &http.Server{
		Addr:         listen,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("Web 服务启动于 %s", listen)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Web 服务异常退出: %v", err)
		}
	}()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
