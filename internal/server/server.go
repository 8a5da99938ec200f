// Package server exposes the import pipeline over HTTP.
//
// Routes:
//
//	GET  /healthz     liveness
//	POST /v1/imports  multipart upload; returns the ImportResult as JSON, or
//	                  the rejects report as CSV with ?format=csv
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"fuelimport/internal/domain"
	"fuelimport/internal/pipeline"
)

// DefaultMaxUploadBytes bounds the multipart body when Config leaves it zero.
const DefaultMaxUploadBytes = 64 << 20

// Config controls server startup.
type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxUploadBytes int64

	// Defaults are the job options applied before per-request overrides.
	Defaults pipeline.Options
	// Mapping is used when a request carries no mapping of its own.
	Mapping domain.ColumnMapping
}

// Server owns the gin router and the pipeline it drives.
type Server struct {
	cfg    Config
	pipe   *pipeline.Pipeline
	router *gin.Engine
	logger *log.Logger
}

// New constructs a Server with its routes registered.
func New(cfg Config, pipe *pipeline.Pipeline, logger *log.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = log.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	s := &Server{cfg: cfg, pipe: pipe, router: r, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1 := s.router.Group("/v1")
	{
		v1.POST("/imports", s.handleImport)
	}
}

// Handler returns the router wrapped in the CORS policy. An empty
// AllowedOrigins list allows every origin.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)
}

// Run serves until ctx is cancelled, then shuts down gracefully. Imports in
// flight see their request context cancelled and return partial results.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("server: listening addr=%s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Printf("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
