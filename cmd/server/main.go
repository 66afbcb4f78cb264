package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/api"
	"github.com/trackforge/engine/internal/cache"
	"github.com/trackforge/engine/internal/config"
	"github.com/trackforge/engine/internal/eventbus"
	"github.com/trackforge/engine/internal/monitoring"
	"github.com/trackforge/engine/internal/objectstorage"
	"github.com/trackforge/engine/internal/orchestrator"
	"github.com/trackforge/engine/internal/providers"
	"github.com/trackforge/engine/internal/reaper"
	"github.com/trackforge/engine/internal/search"
	"github.com/trackforge/engine/internal/steps"
	"github.com/trackforge/engine/internal/store"
	"github.com/trackforge/engine/internal/store/postgres"
)

func newLogger(env string) *zap.Logger {
	if env == "development" {
		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Fatal("building development logger:", err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("building production logger:", err)
	}
	return logger
}

func buildRegistry(cfg *config.Config, quota *providers.QuotaChecker, st store.Store) *providers.Registry {
	registry := providers.NewRegistry(quota)
	registry.SetStore(st)

	registry.RegisterIdentifier(providers.NewSonglink())
	registry.RegisterIdentifier(providers.NewSpotifyIdentifier(cfg.Providers))
	registry.RegisterIdentifier(providers.NewAppleMusicIdentifier(cfg.Providers))

	registry.RegisterStreaming(providers.NewTidal(cfg.Providers))
	registry.RegisterStreaming(providers.NewDeezer(cfg.Providers))
	registry.RegisterStreaming(providers.NewQobuz(cfg.Providers))

	registry.RegisterStem(providers.NewLalal(cfg.Providers))
	registry.RegisterStem(providers.NewFadr(cfg.Providers))
	registry.RegisterStem(providers.NewLocalStemSeparator())

	registry.RegisterMidi(providers.NewFadrMidi(cfg.Providers))
	registry.RegisterMidi(providers.NewBasicPitch())

	return registry
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on process environment")
	}

	cfg := config.New()
	logger := newLogger(cfg.Server.Environment)
	defer logger.Sync()

	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := postgres.New(cfg.Database, logger)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Warn("running migrations", zap.Error(err))
	}

	redisClient := cache.NewClient(cfg.Redis)
	defer redisClient.Close()
	jobCache := cache.NewJobCache(redisClient, logger, 10*time.Second)

	storage := objectstorage.New(cfg.Storage.Root)

	metrics := monitoring.NewPrometheusMetrics(logger)
	quota := providers.NewQuotaChecker(redisClient)
	registry := buildRegistry(cfg, quota, db)

	deps := steps.Deps{Store: db, Registry: registry, Storage: storage}
	dispatcher := orchestrator.NewDispatcher(db, deps, logger, metrics,
		cfg.Orchestrator.Workers, cfg.Orchestrator.QueueSize,
		cfg.Retention.Window, cfg.Orchestrator.PollDelay)
	events, err := eventbus.Connect(cfg.NATS, logger)
	if err != nil {
		logger.Warn("nats unavailable, continuing without job event publishing", zap.Error(err))
	} else if events != nil {
		dispatcher.SetEventBus(events)
		dispatcher.SetNATS(events.Conn(), cfg.NATS.DispatchSubject)
		defer events.Close()
	}

	dispatcher.Start(cfg.Orchestrator.Workers)
	defer dispatcher.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := orchestrator.ResumeAll(ctx, db, dispatcher, logger); err != nil {
		logger.Error("resuming in-flight jobs", zap.Error(err))
	}
	go orchestrator.Reclaim(ctx, db, dispatcher, metrics, logger, cfg.Retention.StaleHeartbeat, cfg.Retention.ReaperPeriod)

	jobReaper := reaper.New(db, storage, redisClient, logger, metrics, cfg.Retention.ReaperPeriod)
	go jobReaper.Run(ctx)

	textSearch := search.NewTextSearch(cfg.Providers)
	musicBrainz := search.NewMusicBrainzSearch()
	hummingSearch := search.NewHummingSearch(cfg.Providers.FeaturesDir)

	_, router := api.New(db, storage, cfg.Storage, dispatcher, jobCache, textSearch, hummingSearch, musicBrainz, metrics, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
