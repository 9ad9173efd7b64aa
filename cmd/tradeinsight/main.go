package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradeinsight/internal/api"
	"tradeinsight/internal/config"
	"tradeinsight/internal/database"
	"tradeinsight/internal/logger"
)

// @title TradeInsight API
// @version 1.0
// @description Retail trading analytics backend for MT5 accounts.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:      logger.LogLevel(cfg.Logging.Level),
		Format:     logger.LogFormat(cfg.Logging.Format),
		Output:     cfg.Logging.Output,
		Filename:   cfg.Logging.Filename,
		MaxSize:    cfg.Logging.MaxSize,
		MaxAge:     cfg.Logging.MaxAge,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})

	logger.Info("starting tradeinsight",
		"version", cfg.App.Version,
		"env", cfg.App.Env,
	)

	if err := runMigrations(cfg); err != nil {
		logger.Fatal("database migration failed", "error", err.Error())
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to initialize server", "error", err.Error())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
		os.Exit(1)
	}
}

// runMigrations applies pending migrations on a dedicated connection so
// the server starts against a current schema.
func runMigrations(cfg *config.Config) error {
	db, err := database.NewConnection(&database.Config{
		Path:    cfg.Database.Path,
		MaxOpen: 1,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Up()
}
