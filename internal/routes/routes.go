package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/clearproof/gatekeeper/internal/auth"
	"github.com/clearproof/gatekeeper/internal/handlers"
	"github.com/clearproof/gatekeeper/internal/middleware"
	"github.com/clearproof/gatekeeper/internal/repositories"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	approvalHandler *handlers.ApprovalHandler,
	clientAuthHandler *handlers.ClientAuthHandler,
	accountHandler *handlers.AccountHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	agencyUserRepo *repositories.AgencyUserRepository,
) {
	gateLimit := middleware.RateLimitByIP(middleware.DefaultGateRateLimit())
	userLimits := middleware.DefaultAuthenticatedRateLimit()

	// Public credential endpoints. The HTTP-level limit here is a coarse
	// backstop; the gate applies its own burst throttle and block tiers.
	router.With(gateLimit).Post("/v1/approval/validate-token", approvalHandler.ValidateToken)
	router.With(gateLimit).Post("/v1/client-auth/request-code", clientAuthHandler.RequestCode)
	router.With(gateLimit).Post("/v1/client-auth/verify-code", clientAuthHandler.VerifyCode)
	router.With(gateLimit).Post("/v1/client-auth/validate-session", clientAuthHandler.ValidateSession)
	router.Post("/v1/client-auth/logout", clientAuthHandler.Logout)

	// Authenticated agency plane.
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByUserID(userLimits, "read"))
			r.Get("/v1/account/subscription", accountHandler.GetSubscription)
			r.Get("/v1/account/entitlements", accountHandler.GetEntitlements)
			r.Post("/v1/account/entitlements/check", accountHandler.CheckEntitlement)
		})

		// Admin-only security dashboard and approval-link issuance.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(agencyUserRepo, "admin"))
			r.Use(middleware.RateLimitByUserID(userLimits, "admin"))

			r.Get("/v1/admin/security/attempts", adminHandler.ListAttempts)
			r.Get("/v1/admin/security/blocks", adminHandler.ListBlocks)
			r.Get("/v1/admin/security/alerts", adminHandler.ListAlerts)
			r.Delete("/v1/admin/security/blocks/{address}", adminHandler.DeleteBlock)
			r.Post("/v1/admin/approval-links", adminHandler.IssueApprovalLink)
		})
	})
}
