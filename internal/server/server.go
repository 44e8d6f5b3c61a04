package server

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/config"
	"classroom-backend/internal/gateway"
	"classroom-backend/internal/handler"
	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/middleware"
	"classroom-backend/internal/presence"
)

// Server Fiber 서버 래퍼
type Server struct {
	app                *fiber.App
	cfg                *config.Config
	db                 *gorm.DB
	gateway            *gateway.Gateway
	meetingHandler     *handler.MeetingHandler
	healthHandler      *handler.HealthHandler
	classroomWSHandler *handler.ClassroomWSHandler
	jwtManager         *auth.JWTManager
	logger             *slog.Logger
}

// New 새 서버 인스턴스 생성, presenceManager 는 nil 가능 (Redis 미설정)
func New(cfg *config.Config, db *gorm.DB, controller *lifecycle.Controller, gw *gateway.Gateway, presenceManager *presence.Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "Classroom Session Gateway",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.Issuer,
	)

	// nil *presence.Manager 를 인터페이스에 그대로 넣지 않는다
	var (
		online handler.OnlineLister
		pinger handler.Pinger
	)
	if presenceManager != nil {
		online = presenceManager
		pinger = presenceManager
	}

	return &Server{
		app:                app,
		cfg:                cfg,
		db:                 db,
		gateway:            gw,
		meetingHandler:     handler.NewMeetingHandler(controller, gw, online, cfg.Classroom.DefaultCapacity, log),
		healthHandler:      handler.NewHealthHandler(db, pinger, gw),
		classroomWSHandler: handler.NewClassroomWSHandler(gw),
		jwtManager:         jwtManager,
		logger:             log.With("component", "server"),
	}
}

// App 테스트용 fiber 앱
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Prometheus
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Rate Limiter 설정 (입장 확인용 - 비밀번호 Brute Force 방지)
	joinLimiter := limiter.New(limiter.Config{
		Max:        s.cfg.Classroom.JoinRateLimit,
		Expiration: s.cfg.Classroom.JoinRateWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := auth.GetUserID(c); ok {
				return "user:" + strconv.FormatInt(userID, 10)
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	api := s.app.Group("/api", auth.AuthMiddleware(s.jwtManager))

	// Classroom 라우트
	api.Post("/classrooms/:classroomId/meeting", middleware.RequireClassroomID(), s.meetingHandler.CreateMeeting)

	// Meeting 라우트
	meetings := api.Group("/meetings/:meetingId", middleware.RequireMeetingID())
	meetings.Get("", s.meetingHandler.GetMeeting)
	meetings.Post("/join", joinLimiter, s.meetingHandler.Join)
	meetings.Post("/end", s.meetingHandler.End)
	meetings.Post("/cancel", s.meetingHandler.Cancel)
	meetings.Get("/chat", s.meetingHandler.ChatHistory)
	meetings.Get("/participants", s.meetingHandler.Participants)
	meetings.Put("/participants/:userId/role", s.meetingHandler.SetParticipantRole)
	meetings.Get("/whiteboard", s.meetingHandler.Whiteboard)

	// Breakout Room 라우트
	meetings.Get("/breakout-rooms", s.meetingHandler.BreakoutRooms)
	meetings.Post("/breakout-rooms", s.meetingHandler.CreateBreakoutRoom)
	meetings.Post("/breakout-rooms/:roomId/end", s.meetingHandler.EndBreakoutRoom)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 강의실 엔드포인트
	s.app.Get("/ws/classroom/:meetingId",
		s.classroomWSHandler.RequireUpgrade,
		middleware.RequireMeetingID(),
		auth.WebSocketAuthMiddleware(s.jwtManager),
		websocket.New(s.classroomWSHandler.HandleWebSocket, websocket.Config{
			ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
		}),
	)
}

// Start 서버 시작, ctx 가 끝나면 Graceful Shutdown
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🚀 Classroom gateway starting", "addr", s.cfg.Server.Port)
		s.logger.Info("📡 WebSocket endpoint", "url", "ws://localhost"+s.cfg.Server.Port+"/ws/classroom/:meetingId")
		errCh <- s.app.Listen(s.cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("🛑 Shutting down server...")
		return s.Shutdown()
	}
}

// Shutdown 열린 WebSocket 세션을 먼저 닫고 서버 종료
func (s *Server) Shutdown() error {
	s.gateway.Shutdown()

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return s.app.ShutdownWithTimeout(timeout)
}
