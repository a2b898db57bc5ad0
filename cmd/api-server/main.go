// Package main API Server 入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/apiserver/server"
	"rental-admin/internal/config"
	"rental-admin/internal/shared/infra"
	"rental-admin/internal/shared/telemetry"
	"rental-admin/pkg/logging"
)

func main() {
	configDir := flag.String("config", "", "directory containing {env}.yaml")
	flag.Parse()
	if *configDir != "" {
		config.SetConfigDir(*configDir)
	}

	// 加载配置（自动加载 .env，APP_ENV 选择 configs/{env}.yaml）
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    "stdout",
		Component: "api-server",
	})
	slog.SetDefault(logger.Logger)

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry)

	// 初始化存储、会话、事件总线与对象存储
	infraCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	inf, err := infra.New(infraCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	log.Printf("Connected to %s", cfg.DatabaseDriver)

	if _, err := auth.EnsureSeedAdmin(ctx, inf.Storage, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, cfg.Auth.BcryptCost); err != nil {
		log.Printf("Seed admin failed: %v", err)
	}

	srv, err := server.New(server.Deps{Config: cfg, Infra: inf, Logger: logger})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API Server listening on :%s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 优雅关闭
	select {
	case <-ctx.Done():
		log.Println("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	if err := inf.Close(); err != nil {
		log.Printf("Infrastructure close error: %v", err)
	}

	fmt.Println("Server stopped")
}
