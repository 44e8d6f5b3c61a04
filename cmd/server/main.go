package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/gateway"
	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/presence"
	"classroom-backend/internal/registry"
	"classroom-backend/internal/server"
	"classroom-backend/internal/service"
	"classroom-backend/internal/store"
	"classroom-backend/pkg/logger"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	appLogger, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Log.Environment,
		WithSource:  cfg.Log.WithSource,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("❌ Logger init failed: %v", err)
	}

	// 데이터베이스 연결
	db, err := database.ConnectDB(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	// Ping 테스트
	if err := database.Ping(db); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	appLogger.Info("✅ Database connected", "driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Presence 미러 (선택적)
	var presenceManager *presence.Manager
	var mirror gateway.PresenceMirror
	if cfg.Redis.Addr != "" {
		serverID, _ := os.Hostname()
		if serverID == "" {
			serverID = uuid.NewString()
		}
		presenceManager = presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PresenceTTL, serverID)
		defer presenceManager.Close()

		if err := presenceManager.Ping(ctx); err != nil {
			appLogger.Warn("⚠️ Redis unreachable, presence mirror will retry per call", "addr", cfg.Redis.Addr, "error", err)
		} else {
			appLogger.Info("✅ Redis presence mirror enabled", "addr", cfg.Redis.Addr, "server_id", serverID)
		}
		mirror = presenceManager
	} else {
		appLogger.Info("ℹ️ Redis not configured (presence mirror disabled)")
	}

	st := store.New(db, store.WithMaxChatLength(cfg.Classroom.MaxChatLength))
	controller := lifecycle.New(st, service.NewMemberService(db), appLogger)
	gw := gateway.New(registry.New(appLogger), controller, mirror, gateway.ConfigFrom(cfg.WebSocket), appLogger)

	// 서버 생성 및 설정
	srv := server.New(cfg, db, controller, gw, presenceManager, appLogger)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	appLogger.Info("👋 Server stopped")
}
