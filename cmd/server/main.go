package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"focusroom/internal/config"
	"focusroom/internal/db"
	"focusroom/internal/handler"
	"focusroom/internal/hub"
	"focusroom/internal/logging"
	"focusroom/internal/metrics"
	"focusroom/internal/middleware"
	"focusroom/internal/repository"
	"focusroom/internal/router"
	"focusroom/internal/service"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}
	defer database.Close()

	if _, err := db.RunMigrations(database, cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Fatal("run migrations")
	}

	m := metrics.New()

	userRepo := repository.NewUserRepository(database)
	roomRepo := repository.NewRoomRepository(database)
	memberRepo := repository.NewMemberRepository(database)
	sessionRepo := repository.NewSessionRepository(database)

	roomService := service.NewRoomService(roomRepo, nil, logger)
	presenceService := service.NewPresenceService(roomService, userRepo, memberRepo, cfg.LivenessWindow, nil, logger)
	sessionService := service.NewSessionService(sessionRepo, roomService, presenceService, nil, logger)
	sessionService.SetMetrics(m)
	userService := service.NewUserService(userRepo, nil)

	origins := middleware.NewOrigins(cfg.CORSOrigins)
	pushHub := hub.New(presenceService, logger, hub.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		Metrics:           m,
	})
	presenceService.SetNotifier(pushHub)

	engine := router.New(router.Handlers{
		Users:    handler.NewUserHandler(userService),
		Rooms:    handler.NewRoomHandler(roomService),
		Presence: handler.NewPresenceHandler(presenceService),
		Sessions: handler.NewSessionHandler(sessionService),
		WS:       handler.NewWSHandler(pushHub, origins, logger),
	}, m, logger, origins)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":            cfg.Port,
			"liveness_window": cfg.LivenessWindow.String(),
		}).Info("focusroom listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("run server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	pushHub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
