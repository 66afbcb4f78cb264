// Package api wires the Ingress API of spec.md §6: job submission/polling,
// stem/download retrieval, and the auxiliary search adapters, on top of the
// gin middleware stack.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/cache"
	"github.com/trackforge/engine/internal/config"
	"github.com/trackforge/engine/internal/middleware"
	"github.com/trackforge/engine/internal/monitoring"
	"github.com/trackforge/engine/internal/objectstorage"
	"github.com/trackforge/engine/internal/orchestrator"
	"github.com/trackforge/engine/internal/search"
	"github.com/trackforge/engine/internal/store"
	"github.com/trackforge/engine/pkg/validator"
)

// Server holds every dependency a handler needs. Handlers are methods on
// *Server so they share one set of wired collaborators without a package
// init or globals.
type Server struct {
	store      store.Store
	storage    *objectstorage.Storage
	storageCfg config.StorageConfig
	dispatcher *orchestrator.Dispatcher
	jobCache   *cache.JobCache
	validate   *validator.Validator
	logger     *zap.Logger

	textSearch    *search.TextSearch
	hummingSearch *search.HummingSearch
	musicBrainz   *search.MusicBrainzSearch
}

// New constructs the Server and its gin.Engine, registering every route of
// spec.md §6 under /api.
func New(
	st store.Store,
	storage *objectstorage.Storage,
	storageCfg config.StorageConfig,
	dispatcher *orchestrator.Dispatcher,
	jobCache *cache.JobCache,
	textSearch *search.TextSearch,
	hummingSearch *search.HummingSearch,
	musicBrainz *search.MusicBrainzSearch,
	metrics *monitoring.PrometheusMetrics,
	logger *zap.Logger,
) (*Server, *gin.Engine) {
	s := &Server{
		store:         st,
		storage:       storage,
		storageCfg:    storageCfg,
		dispatcher:    dispatcher,
		jobCache:      jobCache,
		validate:      validator.New(),
		logger:        logger,
		textSearch:    textSearch,
		hummingSearch: hummingSearch,
		musicBrainz:   musicBrainz,
	}

	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger(), middleware.RequestID(), middleware.SecurityHeaders(), middleware.CORS(), rateLimiter(jobCache, logger))
	if metrics != nil {
		r.Use(metrics.PrometheusMiddleware())
		r.GET("/metrics", metrics.GetHandler())
	}

	r.GET("/api/health", s.health)

	jobs := r.Group("/api/jobs")
	{
		jobs.GET("", s.listJobs)
		jobs.POST("", s.createJob)
		jobs.POST("/upload", s.uploadJob)
		jobs.GET("/:id", s.getJob)
		jobs.GET("/:id/stems/:stem_type", s.getStem)
		jobs.GET("/:id/download", s.getDownload)
	}

	searchGroup := r.Group("/api/search")
	{
		searchGroup.POST("/text", s.searchText)
		searchGroup.POST("/humming", s.searchHumming)
		searchGroup.GET("/musicbrainz", s.searchMusicBrainz)
	}

	return s, r
}

// rateLimiter picks the Redis-backed distributed limiter when Redis is
// reachable, falling back to the in-process per-endpoint limiter otherwise
// (no Redis configured, or unreachable at startup) so the Ingress API is
// never left unprotected.
func rateLimiter(jobCache *cache.JobCache, logger *zap.Logger) gin.HandlerFunc {
	client := jobCache.Client()
	if client == nil {
		return middleware.RateLimiterAdvanced()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, falling back to in-process rate limiter", zap.Error(err))
		return middleware.RateLimiterAdvanced()
	}
	return middleware.NewDistributedRateLimiter(middleware.GetDefaultRateLimitConfig(client, logger)).Middleware()
}
