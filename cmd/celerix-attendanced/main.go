package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celerix-dev/celerix-attendance/internal/config"
	"github.com/celerix-dev/celerix-attendance/internal/log"
	"github.com/celerix-dev/celerix-attendance/internal/server"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv(config.PathEnv))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start attendance daemon")
	}

	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	log.Info(ctx).Str("addr", srv.Addr()).Msg("attendance daemon listening")

	<-ctx.Done()

	log.Info(context.Background()).Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("graceful shutdown failed")
	}

	log.Info(context.Background()).Msg("attendance daemon stopped cleanly")
}
