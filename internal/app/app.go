package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	_ "intake/docs"
	"intake/internal/config"
	"intake/internal/handlers"
	"intake/internal/ratelimit"
	"intake/internal/repositories"
	"intake/internal/routes"
	"intake/internal/services"
	"intake/internal/storage"
	"intake/internal/utils"
)

// Run wires the service from configuration and blocks until SIGINT/SIGTERM
// or until the HTTP server or reconciler fails.
func Run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === Store ===
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[app][close] store: %v", err)
		}
	}()

	// === Collaborators ===
	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	objects, err := storage.NewFilesystemStore(cfg.Files.RootDir)
	if err != nil {
		return err
	}
	tokens := utils.NewSessionTokens(cfg.Token.Secret, cfg.Token.TTL.Duration)

	quotas := routes.Quotas{
		IssueLimit:  cfg.Quota.IssueLimit,
		VerifyLimit: cfg.Quota.VerifyLimit,
		FailOpen:    cfg.Quota.FailOpenOnErr,
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[app][redis] ping addr=%s: %v", cfg.Redis.Addr, err)
		}
		quotas.Limiter = ratelimit.NewQuota(rdb, cfg.Quota.Window.Duration)
	}

	// === Services ===
	identifiers := services.NewIdentifierService(store)
	verification := services.NewVerificationService(store, notifier, services.VerificationConfig{
		CodeLength:     cfg.Verification.CodeLength,
		CodeTTL:        cfg.Verification.CodeTTL.Duration,
		MaxAttempts:    cfg.Verification.MaxAttempts,
		MaxResends:     cfg.Verification.MaxResends,
		ResendCooldown: cfg.Verification.ResendCooldown.Duration,
		BcryptCost:     cfg.Verification.BcryptCost,
		DigestKey:      []byte(cfg.Verification.DigestKey),
	})
	sessions := services.NewSessionService(store, objects, cfg.Files.UploadPrefix, cfg.Files.MaxUploadBytes)
	reconciler := services.NewReconciler(store, objects, services.ReconcilerConfig{
		Interval:          cfg.Reconciler.Interval.Duration,
		AgeThreshold:      cfg.Reconciler.AgeThreshold.Duration,
		RunTimeout:        cfg.Reconciler.RunTimeout.Duration,
		MaxPrefixesPerRun: cfg.Reconciler.MaxPrefixesPerRun,
		DeleteBatchSize:   cfg.Reconciler.DeleteBatchSize,
		Root:              cfg.Files.UploadPrefix,
		PurgeIdleSessions: cfg.Reconciler.PurgeIdleSessions,
	})

	// === Gin ===
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.MaxMultipartMemory = cfg.Files.MaxUploadBytes

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var adminHandler *handlers.AdminHandler
	if cfg.Admin.Password != "" {
		adminHandler = handlers.NewAdminHandler(reconciler, sessions)
	}
	routes.SetupRoutes(
		router,
		handlers.NewSessionHandler(identifiers, sessions, tokens),
		handlers.NewVerifyHandler(verification),
		adminHandler,
		tokens,
		quotas,
		routes.Admin{User: cfg.Admin.User, Password: cfg.Admin.Password},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	// === Run ===
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[app][run] listening addr=%s store=%s email=%s", srv.Addr, cfg.Database.Driver, cfg.Email.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Reconciler.Enabled {
		g.Go(func() error {
			return reconciler.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		log.Printf("[app][shutdown] draining connections")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("[app][shutdown] stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (repositories.Store, error) {
	switch cfg.Driver {
	case "memory":
		log.Printf("[app][store] using in-memory store; data is lost on restart")
		return repositories.NewMemStore(), nil
	case "postgres":
		store, db, err := repositories.OpenPostgres(ctx, cfg.DSN, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := repositories.Migrate(ctx, db); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func newNotifier(cfg *config.Config) (services.Notifier, error) {
	ttl := cfg.Verification.CodeTTL.Duration
	switch cfg.Email.Driver {
	case "smtp":
		return services.NewEmailNotifier(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
			ttl,
		), nil
	case "resend":
		return services.NewResendNotifier(cfg.Email.ResendAPIKey, cfg.Email.FromEmail, ttl)
	case "log":
		return services.NewLogNotifier(), nil
	default:
		return nil, fmt.Errorf("unknown email driver %q", cfg.Email.Driver)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
