package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"gm-dapp/internal/auth"
	"gm-dapp/internal/config"
	"gm-dapp/internal/database"
	"gm-dapp/internal/hub"
	"gm-dapp/internal/logger"
	"gm-dapp/internal/maintenance"
	"gm-dapp/internal/middleware"
	"gm-dapp/internal/relay"
	"gm-dapp/internal/server"
	"gm-dapp/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("failed to load .env: " + err.Error() + "\n")
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(cfg.Server.LogLevel, cfg.Server.GinMode == gin.DebugMode); err != nil {
		_, _ = os.Stderr.WriteString("logger init: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.WithModule("main")

	if err := run(cfg, log); err != nil {
		log.Fatal("gm-server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	generated, err := config.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}
	for _, key := range generated {
		log.Warn("generated ephemeral secret, tokens will not survive a restart", zap.String("key", key))
	}

	gin.SetMode(cfg.Server.GinMode)

	db, err := database.Open(databaseConfig(cfg.Database))
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	relayClient, err := relay.NewClient(relay.Config{
		BaseURL:       cfg.Cast.URL,
		ProjectID:     cfg.Project.ID,
		ProjectSecret: cfg.Project.Secret,
		Timeout:       cfg.Cast.Timeout,
	})
	if err != nil {
		return err
	}

	st := store.NewWithOptions(store.Options{IdentitiesFile: cfg.Auth.IdentitiesFile})
	subscribers := store.NewSubscribers(db)

	limiter := middleware.NewRateLimiter(cfg.Auth.ChallengeRate, time.Minute)
	defer limiter.Stop()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.Auth.JWTSecret,
		Expiry: cfg.Auth.TokenExpiry,
		Issuer: "gm-server",
	}

	metricsEndpoint := ""
	if cfg.Monitoring.MetricsEnabled {
		metricsEndpoint = cfg.Monitoring.MetricsEndpoint
	}

	router := server.NewRouter(server.Deps{
		Store:             st,
		Subscribers:       subscribers,
		Relay:             relayClient,
		Hub:               hub.New(),
		TokenConfig:       tokenCfg,
		ChallengeTTL:      cfg.Auth.ChallengeTTL,
		ChallengeLimiter:  limiter,
		RequireSubscriber: cfg.Notify.RequireSubscriber,
		MetricsEndpoint:   metricsEndpoint,
	})

	cleaner := maintenance.NewCleaner(st, subscribers, maintenance.WithChallengeSchedule(cfg.Maintenance.ChallengeSweep))
	if err := cleaner.Start(); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		select {
		case <-cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs did not stop in time")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("gm-server starting",
		zap.String("project", cfg.Project.ID),
		zap.String("cast", cfg.Cast.URL),
		zap.String("database", cfg.Database.Driver),
	)
	return server.Run(ctx, cfg.Server, router)
}

func databaseConfig(c config.DatabaseConfig) database.Config {
	out := database.Config{Driver: c.Driver, Path: c.Path, DSN: c.DSN}
	var host config.DBHostSettings
	switch strings.ToLower(c.Driver) {
	case "postgres", "postgresql":
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	default:
		return out
	}
	out.Host = host.Host
	out.Port = host.Port
	out.Name = host.Database
	out.User = host.Username
	out.Password = host.Password
	return out
}
