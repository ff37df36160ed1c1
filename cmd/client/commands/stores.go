package commands

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"tofu_chat/internal/repository/identity"
	"tofu_chat/internal/repository/trust"
	"tofu_chat/internal/service/redis"
	"tofu_chat/internal/utils/log"
)

// closers run in reverse order when a command ends.
type closers []func()

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func openIdentityRepo(ctx context.Context, cl *closers) (identity.Repository, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return identity.NewMemoryRepo(), nil
	case "file":
		return identity.NewFileRepo(cfg.Storage.Dir), nil
	case "mongo":
		client, err := initMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		*cl = append(*cl, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Debug("mongo disconnect failed", zap.Error(err))
			}
		})
		repo := identity.NewMongoRepo(client.Database(cfg.Mongo.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure identity indexes: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openTrustStore(ctx context.Context, cl *closers) (trust.Repository, error) {
	switch cfg.Trust.Backend {
	case "memory":
		return trust.NewMemoryStore(), nil
	case "file":
		return trust.NewFileStore(cfg.Storage.Dir, cfg.Username)
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc := redis.NewRedis(rdb)
		*cl = append(*cl, func() { _ = svc.Close() })
		if err := svc.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return trust.NewRedisStore(svc, cfg.Username), nil
	default:
		return nil, fmt.Errorf("unknown trust backend %q", cfg.Trust.Backend)
	}
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
