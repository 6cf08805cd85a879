package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/WBHankins93/messaging-app/internal/auth"
	"github.com/WBHankins93/messaging-app/internal/config"
	"github.com/WBHankins93/messaging-app/internal/db"
	"github.com/WBHankins93/messaging-app/internal/events"
	clog "github.com/WBHankins93/messaging-app/internal/log"
	"github.com/WBHankins93/messaging-app/internal/mw"
	"github.com/WBHankins93/messaging-app/internal/repository"
	"github.com/WBHankins93/messaging-app/internal/server"
	"github.com/WBHankins93/messaging-app/internal/service"
	"github.com/WBHankins93/messaging-app/internal/tracing"
	"github.com/WBHankins93/messaging-app/internal/ws"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg, err := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, server.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token service")
	}
	pub := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	log.Info().Str("mode", events.Mode(pub)).Msg("event publisher ready")

	users := repository.NewUserRepository(gdb)
	messages := repository.NewMessageRepository(gdb)
	userSvc := service.NewUserService(users, auth.NewHasher(cfg.BcryptCost), tokens, pub)
	if cfg.AdminUsername != "" {
		if err := userSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("bootstrap admin")
		}
	}

	gate := auth.NewGate(tokens, users)
	hub := ws.NewHub(messages)
	limiter := mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := server.SetupRouter(cfg, server.Deps{
		Users:    userSvc,
		Messages: service.NewMessageService(messages, users),
		Gate:     gate,
		Relay:    ws.NewHandler(hub, gate, pub, cfg.Env, cfg.WSAuthTimeout),
		Limiter:  limiter,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// Shutdown 不会等待已劫持的 websocket 连接，需要单独关闭。
	hub.Close()
	limiter.Stop()
	if err := pub.Close(); err != nil {
		log.Warn().Err(err).Msg("close event publisher")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}
