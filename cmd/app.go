package cmd

import (
	"context"
	"fmt"

	"github.com/lukewaehner/KijayKolder-LinksHub/config"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/auth"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/metadata"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/realtime"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/upload"
	"github.com/lukewaehner/KijayKolder-LinksHub/db"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/repository"
	"github.com/lukewaehner/KijayKolder-LinksHub/server"
	"github.com/lukewaehner/KijayKolder-LinksHub/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// app holds every long-lived dependency of the service.
type app struct {
	cfg *config.Config

	db     *gorm.DB
	redis  *redis.Client
	broker *realtime.RedisBroker
	kafka  *realtime.KafkaPublisher
	hub    *realtime.Hub

	store   storage.Store
	files   *storage.FileAPI
	tracks  repository.TrackRepository
	videos  repository.VideoRepository
	uploads *upload.Orchestrator
	auth    *auth.Authenticator
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory object storage, uploads are lost on exit")
		return storage.NewMemoryStore(), nil
	case "minio", "":
		return storage.NewMinioStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

// newApp connects to the database, object storage and, when configured,
// Redis and Kafka. The hub starts running immediately; close stops it.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, hub: realtime.NewHub()}
	go a.hub.Run()

	gdb, err := db.Open(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.db = gdb

	if a.store, err = openStore(cfg); err != nil {
		a.close()
		return nil, err
	}
	if err := a.store.EnsureBuckets(ctx, storage.Buckets...); err != nil {
		a.close()
		return nil, fmt.Errorf("prepare buckets: %w", err)
	}
	a.files = storage.NewFileAPI(a.store, cfg.PublicBaseURL)

	var publishers realtime.MultiPublisher
	var sessions auth.SessionStore
	if cfg.RedisEnabled {
		if a.redis, err = db.ConnectRedis(ctx, cfg); err != nil {
			a.close()
			return nil, err
		}
		logger.Info("Successfully connected to Redis")
		a.broker = realtime.NewRedisBroker(a.redis, "")
		publishers = append(publishers, a.broker)
		sessions = auth.NewRedisSessionStore(a.redis, "")
	} else {
		publishers = append(publishers, a.hub)
		sessions = auth.NewMemorySessionStore()
	}
	if len(cfg.KafkaBrokers) > 0 {
		a.kafka = realtime.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publishers = append(publishers, a.kafka)
	}

	a.tracks = repository.NewGormTrackRepository(gdb, publishers)
	a.videos = repository.NewGormVideoRepository(gdb, publishers)
	a.uploads = upload.NewOrchestrator(a.tracks, a.videos, a.files, metadata.NewExtractor(), upload.NewTracker(publishers),
		upload.WithFetcher(upload.NewHTTPFetcher(nil, cfg.MaxUploadSize)))

	tokens, err := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.SessionTTL)
	if err != nil {
		a.close()
		return nil, err
	}
	if a.auth, err = auth.NewAuthenticator(cfg.AdminPassword, tokens, sessions); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) handler() *server.APIHandler {
	return server.NewAPIHandler(a.tracks, a.videos, a.files, a.uploads, a.auth, a.hub, a.cfg)
}

func (a *app) close() {
	a.hub.Stop()
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			logger.Warn("closing kafka writer", logger.ErrorField(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("closing redis", logger.ErrorField(err))
		}
	}
	if err := db.Close(a.db); err != nil {
		logger.Warn("closing database", logger.ErrorField(err))
	}
}
