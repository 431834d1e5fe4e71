package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"runaway_tracker/internal/config"
	"runaway_tracker/internal/hub"
	"runaway_tracker/internal/logger"
	"runaway_tracker/internal/middleware"
	"runaway_tracker/internal/position"
	"runaway_tracker/internal/recorder"
	"runaway_tracker/internal/routes"
	"runaway_tracker/internal/store"
)

const deviceBuffer = 64

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Configuration rejected")
	}

	// Initialize structured logging to file
	logger.Setup(logger.Options{File: cfg.LogFile, Level: cfg.LogLevel, Stdout: cfg.LogStdout})

	db, err := config.InitDB(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Database unavailable")
	}

	rdb := config.ConnectRedis(cfg)
	telemetry, err := hub.NewTelemetryHub(rdb)
	if err != nil {
		logrus.WithError(err).Warn("Redis fan-out unavailable, delivering telemetry locally")
		rdb.Close()
		rdb = nil
		if telemetry, err = hub.NewTelemetryHub(nil); err != nil {
			logrus.WithError(err).Fatal("Telemetry hub failed")
		}
	}

	source := position.NewDeviceSource(deviceBuffer)
	activities := store.NewActivityStore(db)
	rec := recorder.New(cfg.PipelineConfig(), source, source, telemetry, activities)

	// no fixes arrive without permission, so hold the clock until the runner resumes
	source.OnPermissionChange(func(authorized bool) {
		if !authorized && rec.CanPause() {
			rec.Pause()
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go rec.Run(ctx)

	router := routes.SetupRouter(routes.Deps{
		DB:         db,
		Auth:       middleware.NewAuth(cfg.JWTSecret, cfg.JWTTTL()),
		Recorder:   rec,
		Source:     source,
		Hub:        telemetry,
		Activities: activities,
	})

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: middleware.EnableCORS(cfg.CORSOrigins, router),
	}
	go func() {
		logrus.WithField("addr", cfg.ServerAddr).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown incomplete")
	}

	rec.Close()
	telemetry.Close()
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
