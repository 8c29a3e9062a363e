// Package server exposes the curve generator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verte-zerg/trainviz/internal/model"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"
	shutdownTimeout = 5 * time.Second
)

// CurveGenerator produces a curve for validated params.
type CurveGenerator interface {
	Generate(p model.TrainingParams) []model.EpochRecord
}

// Journal records handled training requests.
type Journal interface {
	RecordRequest(ctx context.Context, entry model.RequestEntry) error
}

// Options configures a Server.
type Options struct {
	Generator CurveGenerator
	// Journal is optional.
	Journal Journal
	// Latency returns the artificial delay before a successful response.
	// Nil responds immediately.
	Latency func() time.Duration
	// CORSOrigin defaults to "*".
	CORSOrigin string
	// AccessLog receives gin access logs. Nil disables them.
	AccessLog io.Writer
	// ErrorLog receives fault logs. Nil uses the standard logger.
	ErrorLog *log.Logger
	Now      func() time.Time
}

// Server wires the HTTP routes.
type Server struct {
	engine  *gin.Engine
	opts    Options
	errLog  *log.Logger
	handler *trainHandler
}

// New builds a gin engine with the API routes.
func New(opts Options) (*Server, error) {
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	errLog := opts.ErrorLog
	if errLog == nil {
		errLog = log.Default()
	}

	s := &Server{
		opts:   opts,
		errLog: errLog,
	}
	s.handler = &trainHandler{
		gen:     opts.Generator,
		journal: opts.Journal,
		latency: opts.Latency,
		now:     opts.Now,
		errLog:  errLog,
	}
	s.engine = s.setupRouter()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	if s.opts.AccessLog != nil {
		r.Use(gin.LoggerWithWriter(s.opts.AccessLog))
	}
	r.Use(gin.CustomRecoveryWithWriter(io.Discard, s.recoverFault))
	r.Use(requestID())
	r.Use(cors(s.opts.CORSOrigin))

	r.GET("/", s.describe)

	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.POST("/train", s.handler.journalRequest, s.handler.train)
	}
	return r
}

func (s *Server) recoverFault(c *gin.Context, recovered any) {
	s.errLog.Printf("training request %s failed: %v", c.GetString(requestIDKey), recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func (s *Server) describe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "AI Training Visualizer API",
		"status":  "running",
		"endpoints": gin.H{
			"POST /api/train": "Start training simulation (body: { epochs, learningRate, batchSize })",
			"GET /api/health": "Health check",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": s.opts.Now().UnixMilli(),
	})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Origin, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
