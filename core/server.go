package core

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"mining-coordinator/config"
	"mining-coordinator/util"
)

type Server struct {
	cfg *config.Config

	store    Store
	redis    *Redis
	registry *Registry

	lifecycle *Lifecycle
	notifier  *Notifier
	gateway   *Gateway
	api       *Api
}

func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(),
	}
}

// OpenStore 按配置打开存储；postgres 会确保表结构存在
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch *cfg.Storage {
	case config.StorageMemory:
		log.Warn("Using in-memory storage, data is lost on restart")
		return NewMemory(), nil
	case config.StoragePostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := pg.CreateSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", *cfg.Storage)
	}
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	store, err := OpenStore(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = store

	settler := NewSettler(*s.cfg.Mining.BaseReward, util.MustParseDuration(*s.cfg.Mining.OptimalDuration))
	s.lifecycle = NewLifecycle(store, s.registry, settler, *s.cfg.Mining.Difficulty)

	relay := NewRelay(s.registry)
	s.notifier = NewNotifier(s.registry, s.lifecycle, util.MustParseDuration(*s.cfg.Presence.IdleTimeout))
	s.gateway = NewGateway(s.registry, s.cfg.Presence, s.cfg.Api.CorsOrigins)
	s.api = NewApi(s.cfg.Api, s.lifecycle, store, relay, s.gateway)

	if *s.cfg.Redis.Enabled {
		s.redis = NewRedis(s.cfg.Redis)
		if err := s.redis.Client.Ping(ctx).Err(); err != nil {
			log.Warnf("Redis unavailable, leaderboard cache disabled: %v", err)
			s.redis.Close()
			s.redis = nil
		} else {
			s.lifecycle.WithCache(s.redis)
			s.api.WithCache(s.redis)
		}
	}

	s.api.Start()
	log.Infof("%s started, difficulty %d", *s.cfg.Name, *s.cfg.Mining.Difficulty)
	return nil
}

func (s *Server) Close() {
	if s.api != nil {
		s.api.Close()
	}
	if s.gateway != nil {
		s.gateway.Close()
	}
	if s.notifier != nil {
		s.notifier.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Errorf("Unable to close store: %v", err)
		}
	}
}
