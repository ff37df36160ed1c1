package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"tofu_chat/internal/config"
	"tofu_chat/internal/repository/message"
	"tofu_chat/internal/repository/publickey"
	redisSvc "tofu_chat/internal/service/redis"
	"tofu_chat/internal/service/server"
	"tofu_chat/internal/utils/log"
)

func main() {
	config.BindFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Development, cfg.Log.File); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		keys     publickey.Repository
		messages message.Repository
	)

	switch cfg.Storage.Backend {
	case "mongo":
		mongoDBClient, err := initMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			log.Fatal("connect mongo failed", zap.Error(err))
		}
		defer mongoDBClient.Disconnect(context.Background())

		db := mongoDBClient.Database(cfg.Mongo.Database)
		keyRepo := publickey.NewMongoRepo(db)
		msgRepo := message.NewMongoRepo(db)
		if err := keyRepo.EnsureIndexes(ctx); err != nil {
			log.Fatal("ensure key indexes failed", zap.Error(err))
		}
		if err := msgRepo.EnsureIndexes(ctx); err != nil {
			log.Fatal("ensure message indexes failed", zap.Error(err))
		}
		keys, messages = keyRepo, msgRepo
	default:
		keys, messages = publickey.NewMemoryRepo(), message.NewMemoryRepo()
	}

	if cfg.History.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redis := redisSvc.NewRedis(rdb)
		defer redis.Close()
		if err := redis.Ping(ctx); err != nil {
			log.Fatal("connect redis failed", zap.Error(err))
		}
		messages = message.NewRedisRepo(redis, cfg.Limits.History)
	}

	log.Info("storage ready", zap.String("backend", cfg.Storage.Backend), zap.String("history", cfg.History.Backend))

	s := server.NewHttpServer(keys, messages, server.Limits{
		History:       cfg.Limits.History,
		MaxCiphertext: cfg.Limits.MaxCiphertext,
		MaxEncKey:     cfg.Limits.MaxEncKey,
	})
	if err := s.Run(ctx, cfg.Server.Addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("server stopped")
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
