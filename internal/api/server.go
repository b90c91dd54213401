// Package api exposes the read-only operational HTTP surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/sources"
	"github.com/jonesrussell/newsflow/internal/storage"
	"github.com/jonesrussell/newsflow/internal/trends"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server is the operational HTTP server: health, metrics, and
// read-only trend and article queries.
type Server struct {
	server *http.Server
	log    logger.Logger
}

// NewServer builds the server over the pipeline's read-side
// collaborators.
func NewServer(
	addr string,
	agg *trends.Aggregator,
	store storage.ArticleStore,
	registry *sources.Registry,
	gatherer prometheus.Gatherer,
	log logger.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	h := &handlers{agg: agg, store: store, registry: registry}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.GET("/trends/:kind", h.trendWindow)
	v1.GET("/trends/:kind/entities", h.topEntities)
	v1.GET("/trends/topics/:label/growth", h.topicGrowth)
	v1.GET("/articles/:id", h.article)
	v1.GET("/articles/:id/analysis", h.analysis)
	v1.GET("/sources", h.sourceHealth)

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log,
	}
}

// Handler exposes the routed handler, mainly for in-process serving.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Run serves until ctx is cancelled, then drains gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.log.Info("api server listening", logger.String("addr", s.server.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
		)
	}
}
