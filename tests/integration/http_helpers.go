package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/clearproof/gatekeeper/internal/auth"
	"github.com/clearproof/gatekeeper/internal/config"
	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/handlers"
	"github.com/clearproof/gatekeeper/internal/models"
	"github.com/clearproof/gatekeeper/internal/repositories"
	"github.com/clearproof/gatekeeper/internal/routes"
	"github.com/clearproof/gatekeeper/internal/services"
	pkghttp "github.com/clearproof/gatekeeper/pkg/http"
	pkglogger "github.com/clearproof/gatekeeper/pkg/logger"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To      string
	Subject string
	Body    string
	Code    string
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

// SendSecurityAlert records the alert email
func (m *MockEmailService) SendSecurityAlert(ctx context.Context, alert *models.SecurityAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:      "security@test.local",
		Subject: "Security alert: " + string(alert.AlertType),
		Body:    alert.Address,
	})
	return nil
}

// SendOneTimeCode records the code email, keeping the plaintext code so
// tests can redeem it.
func (m *MockEmailService) SendOneTimeCode(ctx context.Context, email, name, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:      email,
		Subject: "Your approval portal sign-in code",
		Body:    "Your code: " + code,
		Code:    code,
	})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	Pool         *database.DB
	EmailService *MockEmailService
	Config       *config.Config
	TokenManager *auth.TokenManager

	redisServer *miniredis.Miniredis
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database,
// in-process Redis, and mocked email.
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:           "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry:   15 * time.Minute,
			TimingDelayBaseMs:   1,
			TimingDelayRandomMs: 1,
		},
		Gate: config.GateConfig{
			TempBlockDuration: 1 * time.Hour,
			BurstWindow:       1 * time.Minute,
			BurstMaxAttempts:  100,
			TokenValidity:     7 * 24 * time.Hour,
			CodeValidity:      10 * time.Minute,
			SessionValidity:   24 * time.Hour,
			StoreTimeout:      3 * time.Second,
			CleanupInterval:   1 * time.Hour,
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
	}

	tokenRepo, sessionRepo, codeRepo, attemptRepo, blockRepo, alertRepo, subscriptionRepo :=
		InitializeRepositories(db)
	agencyUserRepo := repositories.NewAgencyUserRepository(db)
	approverRepo := repositories.NewApproverRepository(db)

	mockEmail := &MockEmailService{
		SentEmails: []SentEmail{},
	}

	// In-process Redis for the burst throttle
	redisServer, err := miniredis.Run()
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})

	throttle := services.NewThrottleService(redisClient, cfg.Gate.BurstWindow, cfg.Gate.BurstMaxAttempts, logger)
	alertService := services.NewAlertService(alertRepo, mockEmail, logger)
	blockPolicy := services.NewBlockPolicy(cfg.Gate.TempBlockDuration)
	gateService := services.NewGateService(blockRepo, attemptRepo, throttle, alertService, blockPolicy, cfg.Gate.StoreTimeout, logger)
	credentialService := services.NewCredentialService(tokenRepo, sessionRepo, codeRepo)
	sessionService := services.NewSessionService(approverRepo, codeRepo, sessionRepo, mockEmail, cfg.Gate.CodeValidity, cfg.Gate.SessionValidity, logger)
	entitlementService := services.NewEntitlementService(subscriptionRepo, logger)
	approvalLinkService := services.NewApprovalLinkService(tokenRepo, cfg.Gate.TokenValidity, logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{SameSite: "lax"}
	auditLogger := pkglogger.NewAuditLogger(logger)

	approvalHandler := handlers.NewApprovalHandler(gateService, credentialService, ipConfig)
	clientAuthHandler := handlers.NewClientAuthHandler(gateService, credentialService, sessionService, timingDelay, ipConfig, cookieConfig)
	accountHandler := handlers.NewAccountHandler(entitlementService)
	adminHandler := handlers.NewAdminHandler(gateService, alertService, approvalLinkService, auditLogger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, approvalHandler, clientAuthHandler, accountHandler, adminHandler, tokenManager, agencyUserRepo)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		Pool:         db,
		EmailService: mockEmail,
		Config:       cfg,
		TokenManager: tokenManager,
		redisServer:  redisServer,
		redisClient:  redisClient,
		logger:       logger,
	}, nil
}

// Close shuts down the test server and its Redis
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.redisClient != nil {
		ts.redisClient.Close()
	}
	if ts.redisServer != nil {
		ts.redisServer.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// MintAccessToken issues a JWT for an agency user, the way the main
// application would.
func (ts *TestServer) MintAccessToken(userID, email, role string) (string, error) {
	return ts.TokenManager.GenerateAccessToken(userID, email, role)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	if msg, ok := errResp["error"].(string); ok {
		return msg, nil
	}
	return "", nil
}
