package main

import (
	"context"
	"log"
	"time"

	"market-chat/internal/auth"
	"market-chat/internal/media"
	"market-chat/internal/ratelimit"
	"market-chat/internal/server"
	"market-chat/internal/storage"

	"github.com/caarlos0/env/v6"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the zap preset
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// RedisConfig enables token revocation and message rate limiting when Addr is set
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

func newLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func main() {
	logCfg := LogConfig{}
	if err := env.Parse(&logCfg); err != nil {
		log.Fatalf("Cannot parse log config: %v", err)
	}

	logger, err := newLogger(logCfg)
	if err != nil {
		log.Fatalf("Cannot build logger: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	var (
		srvCfg   server.EnvConfig
		dbCfg    storage.Config
		authCfg  auth.Config
		redisCfg RedisConfig
		mediaCfg media.Config
	)
	for _, cfg := range []interface{}{&srvCfg, &dbCfg, &authCfg, &redisCfg, &mediaCfg} {
		if err := env.Parse(cfg); err != nil {
			sugar.Fatalf("Cannot parse env config: %v", err)
		}
	}

	ctx := context.Background()

	store, err := storage.New(ctx, sugar, dbCfg,
		storage.ConnectionTimeout(dbCfg.ConnectTimeout),
		storage.MaxConns(dbCfg.MaxConns),
	)
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	if dbCfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			sugar.Fatalf("Cannot apply schema: %v", err)
		}
	}

	serverOpts := []server.Option{
		server.WithEnvConfig(srvCfg),
		server.TimeoutHandler(srvCfg.HandlerTimeout, `{"error":"Request timed out"}`),
		server.WithUploadLimit(mediaCfg.MaxBytes),
	}

	var revoker auth.Revoker
	if redisCfg.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			sugar.Fatalf("Cannot reach redis at %s: %v", redisCfg.Addr, err)
		}

		revoker = auth.NewRedisRevoker(client)

		limiter, err := ratelimit.NewFixedWindow(client, "ratelimit", srvCfg.MessageRateLimit, srvCfg.MessageRateWindow)
		if err != nil {
			sugar.Fatalf("Cannot create message limiter: %v", err)
		}
		serverOpts = append(serverOpts,
			server.WithMessageLimiter(limiter),
			server.RegisterAfterShutdown(func() {
				if err := client.Close(); err != nil {
					sugar.Errorf("closing redis client: %v", err)
				}
			}),
		)
	} else {
		sugar.Warn("REDIS_ADDR is not set, using in-memory token revocation and no message rate limit")
	}

	tokens, err := auth.NewTokens(authCfg, revoker)
	if err != nil {
		sugar.Fatalf("Cannot create token service: %v", err)
	}

	if mediaCfg.Endpoint != "" {
		objects, err := media.NewMinioStore(ctx, mediaCfg)
		if err != nil {
			sugar.Fatalf("Cannot create object store: %v", err)
		}
		serverOpts = append(serverOpts, server.WithObjectStore(objects))
	} else {
		sugar.Warn("MINIO_ENDPOINT is not set, uploaded images are kept in memory")
		serverOpts = append(serverOpts, server.WithObjectStore(media.NewMemoryStore()))
	}

	srv, err := server.NewServer(sugar, store, tokens, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
