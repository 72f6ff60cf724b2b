package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/storefront-auth/internal/config"
	"github.com/iliyamo/storefront-auth/internal/database"
	"github.com/iliyamo/storefront-auth/internal/handler"
	"github.com/iliyamo/storefront-auth/internal/metrics"
	"github.com/iliyamo/storefront-auth/internal/middleware"
	"github.com/iliyamo/storefront-auth/internal/queue"
	"github.com/iliyamo/storefront-auth/internal/repository"
	"github.com/iliyamo/storefront-auth/internal/router"
	"github.com/iliyamo/storefront-auth/internal/service"
	"github.com/iliyamo/storefront-auth/internal/utils"
	"github.com/iliyamo/storefront-auth/internal/validate"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	if cfg.IsDevelopment() {
		e.Logger.SetLevel(log.DEBUG)
	} else {
		e.Logger.SetLevel(log.INFO)
	}
	e.HTTPErrorHandler = handler.ErrorHandler(cfg.IsDevelopment())
	e.Validator = validate.New()

	metrics.Init()
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(metrics.Middleware())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				c.Logger().Warnf("%s %s -> %d (%s) rid=%s err=%v", v.Method, v.URI, v.Status, v.Latency, v.RequestID, v.Error)
				return nil
			}
			c.Logger().Infof("%s %s -> %d (%s) rid=%s", v.Method, v.URI, v.Status, v.Latency, v.RequestID)
			return nil
		},
	}))

	store, closeStore := openStore(cfg, e.Logger)
	defer closeStore()

	issuer, err := utils.NewTokenIssuer(cfg.Auth.TokenConfig())
	if err != nil {
		e.Logger.Fatalf("token issuer: %v", err)
	}
	hasher := utils.NewHasher(cfg.Auth.Cost(), cfg.Auth.HashWorkers)

	var mailer service.Mailer = service.LogMailer{Log: e.Logger}
	if cfg.MailDriver == "amqp" {
		mailer = service.AMQPMailer{URL: cfg.AMQPURL}
		e.Logger.Infof("mail: publishing to %s", queue.EmailQueueName)
	}

	authSvc := service.NewAuthService(cfg.Auth, store, issuer, hasher, mailer, e.Logger)
	adminSvc := service.NewAdminService(store, e.Logger)

	rdb := config.NewRedisClient()
	if rdb == nil {
		e.Logger.Warn("redis unavailable; rate limiting is per process")
	} else {
		defer rdb.Close()
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc, cfg), authSvc, limiter)
	router.RegisterAdmin(e, handler.NewAdminHandler(adminSvc), authSvc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := ":" + cfg.Port
		e.Logger.Infof("listening on %s (env=%s, store=%s)", addr, cfg.Env, cfg.DB.Driver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Errorf("shutdown: %v", err)
	}
	authSvc.Wait()
}

// openStore returns the configured account store and its closer.
func openStore(cfg config.Config, logger echo.Logger) (repository.Store, func()) {
	if cfg.DB.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}
	}
	db, dialect, err := database.Open(cfg.DB)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db, dialect); err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	return repository.NewSQLStore(db, dialect), func() { _ = db.Close() }
}
