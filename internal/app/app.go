// Package app wires configuration, storage, and HTTP routes into a server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ideaspark/ideaspark/internal/config"
	"github.com/ideaspark/ideaspark/internal/db"
	"github.com/ideaspark/ideaspark/internal/gemini"
	"github.com/ideaspark/ideaspark/internal/http/api"
	"github.com/ideaspark/ideaspark/internal/quota"
	"github.com/ideaspark/ideaspark/internal/ratelimit"
	internalsettings "github.com/ideaspark/ideaspark/internal/settings"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtCfg, _ := config.LoadJWTConfig(configPath)
	if jwtCfg.Secret == "" {
		return fmt.Errorf("missing jwt secret (set %s or jwt.secret in config file)", config.EnvJWTSecret)
	}

	geminiCfg, _ := config.LoadGeminiConfig(configPath)
	if geminiCfg.APIKey == "" {
		log.Warn("gemini api key not configured; generation requests will fail")
	}

	settingsStore, errSettings := internalsettings.NewStore(conn)
	if errSettings != nil {
		return fmt.Errorf("load settings: %w", errSettings)
	}
	settingsStore.Start(ctx)

	tracker := quota.NewTracker(conn)
	generator := gemini.NewClient(geminiCfg)
	limiter := ratelimit.NewManager(func() ratelimit.SettingsConfig {
		return ratelimit.ConfigFromStore(settingsStore)
	}, nil, nil)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, conn, jwtCfg, tracker, generator, limiter, settingsStore)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Infof("server listening on :%d", port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errServe == http.ErrServerClosed {
			return nil
		}
		return errServe
	}
}
