package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"shiritori/internal/config"
	"shiritori/internal/db"
	"shiritori/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer logger.Sync()

	conn, err := db.Open()
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if err := db.Migrate(conn); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}
	sqlDB, err := conn.DB()
	if err != nil {
		logger.Fatal("database pool setup failed", zap.Error(err))
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeSeconds) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeSeconds) * time.Second)

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}

	srv := server.New(conn, cfg, logger)
	logger.Info("shiritori server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
