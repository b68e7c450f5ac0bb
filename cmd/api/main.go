package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scho1ar-go/internal/services/api/server"
	"github.com/scho1ar-go/pkg/config"
	"github.com/scho1ar-go/pkg/logger"
)

func main() {
	cfg, err := config.Load("api")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger.ToLoggerConfig())
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create server", "error", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	log.Info("Scho1ar API exited")
}
