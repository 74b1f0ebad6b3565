package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cfphub/cfpserver/internal/config"
	"github.com/cfphub/cfpserver/internal/db"
	"github.com/cfphub/cfpserver/internal/http/api/admin"
	"github.com/cfphub/cfpserver/internal/http/api/front"
	"github.com/cfphub/cfpserver/internal/identity"
	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/security"
	"github.com/cfphub/cfpserver/internal/settings"
	"github.com/cfphub/cfpserver/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg *config.Config) error {
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// CreateAdmin creates or reactivates an admin account with the given
// credentials. Existing admins get their password replaced.
func CreateAdmin(ctx context.Context, cfg *config.Config, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("app: username is required")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("app: password is required")
	}

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}

	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.Admin
		errFind := tx.Where("username = ?", username).First(&admin).Error
		if errFind != nil {
			if !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return errFind
			}
			admin = models.Admin{Username: username, Password: hash, Active: true}
			return tx.Create(&admin).Error
		}
		return tx.Model(&admin).Updates(map[string]any{
			"password": hash,
			"active":   true,
		}).Error
	})
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg *config.Config) error {
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		return errRefresh
	}

	stash := buildStash(cfg)
	providers, errProviders := identity.NewRegistry(cfg.OAuth)
	if errProviders != nil {
		return errProviders
	}
	identitySvc := identity.NewService(conn, stash)

	if !cfg.Logging.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogMiddleware())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	front.RegisterFrontRoutes(engine, conn, cfg.JWT, providers, identitySvc, stash)
	admin.RegisterAdminRoutes(engine, conn, cfg.JWT)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}

// buildStash returns the pending-registration stash, redis-backed when
// configured and in-memory otherwise.
func buildStash(cfg *config.Config) identity.Stash {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		log.Debug("using in-memory registration stash")
		return identity.NewMemoryStash(identity.DefaultStashTTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Infof("using redis registration stash at %s", cfg.Redis.Addr)
	return identity.NewRedisStash(client, identity.DefaultStashTTL)
}

// requestLogMiddleware logs one line per request with sensitive query
// parameters masked.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		query := util.MaskSensitiveQuery(c.Request.URL.RawQuery)
		target := c.Request.URL.Path
		if query != "" {
			target = target + "?" + query
		}
		log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    target,
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}).Info("request")
	}
}
