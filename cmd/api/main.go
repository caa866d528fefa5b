package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/clearproof/gatekeeper/internal/auth"
	"github.com/clearproof/gatekeeper/internal/background"
	"github.com/clearproof/gatekeeper/internal/config"
	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/handlers"
	middlewareCustom "github.com/clearproof/gatekeeper/internal/middleware"
	"github.com/clearproof/gatekeeper/internal/repositories"
	"github.com/clearproof/gatekeeper/internal/routes"
	"github.com/clearproof/gatekeeper/internal/services"
	pkghttp "github.com/clearproof/gatekeeper/pkg/http"
	pkglogger "github.com/clearproof/gatekeeper/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Redis backs the burst throttle only; everything durable lives in Postgres.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Initialize repositories
	tokenRepo := repositories.NewTokenRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	codeRepo := repositories.NewCodeRepository(db)
	approverRepo := repositories.NewApproverRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)
	blockRepo := repositories.NewBlockRepository(db)
	alertRepo := repositories.NewAlertRepository(db)
	subscriptionRepo := repositories.NewSubscriptionRepository(db)
	agencyUserRepo := repositories.NewAgencyUserRepository(db)

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.SecurityAlertAddress,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	throttle := services.NewThrottleService(rdb, cfg.Gate.BurstWindow, cfg.Gate.BurstMaxAttempts, logger)
	alertService := services.NewAlertService(alertRepo, emailService, logger)
	blockPolicy := services.NewBlockPolicy(cfg.Gate.TempBlockDuration)
	gateService := services.NewGateService(blockRepo, attemptRepo, throttle, alertService, blockPolicy, cfg.Gate.StoreTimeout, logger)
	credentialService := services.NewCredentialService(tokenRepo, sessionRepo, codeRepo)
	sessionService := services.NewSessionService(approverRepo, codeRepo, sessionRepo, emailService, cfg.Gate.CodeValidity, cfg.Gate.SessionValidity, logger)
	entitlementService := services.NewEntitlementService(subscriptionRepo, logger)
	approvalLinkService := services.NewApprovalLinkService(tokenRepo, cfg.Gate.TokenValidity, logger)

	// Token manager for the agency (JWT) plane
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{
		Domain:   cfg.Server.CookieDomain,
		Secure:   cfg.Server.Env == "production",
		SameSite: "lax",
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize handlers
	approvalHandler := handlers.NewApprovalHandler(gateService, credentialService, ipConfig)
	clientAuthHandler := handlers.NewClientAuthHandler(gateService, credentialService, sessionService, timingDelay, ipConfig, cookieConfig)
	accountHandler := handlers.NewAccountHandler(entitlementService)
	adminHandler := handlers.NewAdminHandler(gateService, alertService, approvalLinkService, auditLogger)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(tokenRepo, sessionRepo, codeRepo, logger, cfg.Gate.CleanupInterval)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, approvalHandler, clientAuthHandler, accountHandler, adminHandler, tokenManager, agencyUserRepo)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		stats := db.Stats()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(fmt.Sprintf(`{"status":"healthy","database":"up","db_conns_total":%d,"db_conns_idle":%d}`,
			stats.TotalConns(), stats.IdleConns())))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
