// Package app boots the cost tracking server from its configuration file.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/costfence/costfence/internal/alerts"
	"github.com/costfence/costfence/internal/billing"
	"github.com/costfence/costfence/internal/config"
	"github.com/costfence/costfence/internal/db"
	internalhttp "github.com/costfence/costfence/internal/http"
	"github.com/costfence/costfence/internal/logging"
	"github.com/costfence/costfence/internal/metrics"
	"github.com/costfence/costfence/internal/service"
	"github.com/costfence/costfence/internal/settings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, errLoad := config.LoadDatabaseDSN(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the HTTP API with database-backed components and blocks
// until the context is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	fileCfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(fileCfg.Logging)

	conn, errOpen := db.Open(fileCfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	log.Infof("database ready (dialect=%s)", db.DialectName(conn))
	if errSeed := billing.SeedDefaultPrices(ctx, conn); errSeed != nil {
		return errSeed
	}
	if errRefresh := settings.Refresh(ctx, conn); errRefresh != nil {
		return errRefresh
	}
	if errSeedModels := seedExpensiveModels(ctx, conn, fileCfg.Enforcement.ExpensiveModels); errSeedModels != nil {
		return errSeedModels
	}

	collectors := metrics.New()
	svc := service.New(conn, fileCfg.Enforcement.CheckTimeout(), collectors)
	if errReload := svc.ReloadPricing(ctx); errReload != nil {
		return errReload
	}

	alerts.NewRetentionCleaner(conn).Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	internalhttp.RegisterRoutes(engine, conn, svc)

	server := &http.Server{
		Addr:    fileCfg.Server.Listen,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", fileCfg.Server.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// seedExpensiveModels writes the configured expensive model list into the
// settings collection when no database value exists yet. Administrators can
// change it at runtime without touching the config file.
func seedExpensiveModels(ctx context.Context, conn *gorm.DB, configured []string) error {
	if len(configured) == 0 {
		return nil
	}
	if _, ok := settings.Value(settings.ExpensiveModelsKey); ok {
		return nil
	}
	return settings.Put(ctx, conn, settings.ExpensiveModelsKey, configured)
}
