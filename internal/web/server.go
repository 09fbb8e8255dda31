// Package web serves the nexa HTTP API: the streaming process endpoint,
// conversation history, project downloads and files, bug fixing, analytics
// and metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/agent"
	"github.com/ARIHARAN-KC/nexa/internal/analytics"
	"github.com/ARIHARAN-KC/nexa/internal/db"
	"github.com/ARIHARAN-KC/nexa/internal/logging"
	"github.com/ARIHARAN-KC/nexa/internal/orchestrator"
	"github.com/ARIHARAN-KC/nexa/internal/pipeline"
	"github.com/ARIHARAN-KC/nexa/internal/storage"
)

// Runner produces the event sequence of one request.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) iter.Seq[pipeline.Event]
}

// History reads and prunes stored conversations.
type History interface {
	ListConversations(ctx context.Context, userID string) ([]db.Conversation, error)
	GetConversation(ctx context.Context, userID string, id int64) (*db.Conversation, error)
	DeleteConversation(ctx context.Context, userID string, id int64) error
	ClearConversations(ctx context.Context, userID string) (int64, error)
}

// Fixer diagnoses and repairs code.
type Fixer interface {
	Fix(ctx context.Context, code, errText string) (agent.Fix, error)
}

// Deps are the collaborators behind the routes. Runner and History are
// required. Routes whose dependency is nil answer 503.
type Deps struct {
	Runner      Runner
	History     History
	Fixer       Fixer
	Objects     storage.Store
	Analytics   analytics.DB
	Gatherer    prometheus.Gatherer
	DefaultUser string
	Logger      *zap.Logger
}

// Server is the HTTP API server.
type Server struct {
	deps              Deps
	logger            *zap.Logger
	engine            *gin.Engine
	port              int
	readHeaderTimeout time.Duration
}

// NewServer creates a Server with every route registered.
func NewServer(deps Deps, port int, readHeaderTimeout time.Duration) *Server {
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.DefaultUser == "" {
		deps.DefaultUser = "default"
	}
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	s := &Server{
		deps:              deps,
		logger:            deps.Logger,
		port:              port,
		readHeaderTimeout: readHeaderTimeout,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog(), cors())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.POST("/process", s.handleProcess)
	api.GET("/history", s.handleListHistory)
	api.DELETE("/history", s.handleClearHistory)
	api.GET("/history/:id", s.handleGetHistory)
	api.DELETE("/history/:id", s.handleDeleteHistory)
	api.POST("/download_project", s.handleDownload)
	api.POST("/fix", s.handleFix)
	api.GET("/analytics", s.handleAnalytics)

	files := api.Group("/projects/:user/:project/files")
	files.GET("", s.handleListFiles)
	files.GET("/*path", s.handleGetFile)
	files.DELETE("/*path", s.handleDeleteFile)
	return r
}

// Start listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: s.readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("nexa API listening", zap.String("addr", "http://localhost"+srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

const requestIDHeader = "X-Request-ID"

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// cors lets the browser frontend call the API from another origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
