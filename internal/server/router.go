// Package server assembles the public HTTP API and the ops gRPC listener.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"account-mirror/internal/audit"
	devotphandler "account-mirror/internal/devotp/handler"
	healthhandler "account-mirror/internal/health/handler"
	identityhandler "account-mirror/internal/identity/handler"
	membershiphandler "account-mirror/internal/membership/handler"
	"account-mirror/internal/metrics"
	"account-mirror/internal/platform/rbac"
	registrationhandler "account-mirror/internal/registration/handler"
	"account-mirror/internal/server/middleware"
)

// Deps holds the handlers and cross-cutting dependencies mounted by NewRouter.
type Deps struct {
	Registration *registrationhandler.Handler
	Auth         *identityhandler.Handler
	Membership   *membershiphandler.Handler
	// DevOTP is mounted at GET /dev/otp only when non-nil. Set it only in dev OTP mode.
	DevOTP *devotphandler.Handler
	// Health backs /healthz. Nil reports healthy unconditionally.
	Health *healthhandler.Checker

	// Tokens validates bearer access tokens and their sessions for the Authenticate middleware.
	Tokens middleware.AccessValidator
	// Accounts resolves the caller for PRIMARY-only routes.
	Accounts rbac.AccountGetter
	// Audit records authenticated state-changing requests. Nil disables request auditing.
	Audit audit.AuditLogger
	// OTPLimiter throttles the public endpoints that send an OTP. Nil selects DefaultOTPLimiter.
	OTPLimiter *middleware.RateLimiter

	CORSOrigins []string
	Log         *zap.Logger
}

// DefaultOTPLimiter allows a burst of 5 OTP sends per client IP, refilling one per 12 seconds.
func DefaultOTPLimiter() *middleware.RateLimiter {
	return middleware.NewRateLimiter(12*time.Second, 5, 10*time.Minute)
}

// NewRouter returns the HTTP handler for the public API.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	limiter := d.OTPLimiter
	if limiter == nil {
		limiter = DefaultOTPLimiter()
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if d.Registration == nil {
		d.Registration = registrationhandler.New(nil, log)
	}
	if d.Auth == nil {
		d.Auth = identityhandler.New(nil, log)
	}
	if d.Membership == nil {
		d.Membership = membershiphandler.New(nil, log)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.ClientIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthhandler.Healthz(d.Health))
	r.Handle("/metrics", metrics.Handler())
	if d.DevOTP != nil {
		r.Get("/dev/otp", d.DevOTP.GetOTP)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Authenticate(d.Tokens))
		api.Use(middleware.Audit(d.Audit))

		// ---------------- Public ----------------
		api.Group(func(pub chi.Router) {
			pub.Post("/auth/register/verify-otp", d.Registration.VerifyOTP)
			pub.Post("/auth/register/complete", d.Registration.Complete)
			pub.Get("/auth/verify-email", d.Registration.VerifyEmail)

			pub.Post("/auth/login", d.Auth.Login)
			pub.Post("/auth/login/otp/verify", d.Auth.LoginWithOTP)
			pub.Post("/auth/token/refresh", d.Auth.Refresh)
			pub.Post("/auth/token/verify", d.Auth.VerifyToken)
			pub.Post("/auth/logout", d.Auth.Logout)
			pub.Post("/auth/password/reset/confirm", d.Auth.ResetPassword)
		})

		// ---------------- OTP senders ----------------
		api.Group(func(g chi.Router) {
			g.Use(limiter.Middleware)
			g.Post("/auth/register/init", d.Registration.Init)
			g.Post("/auth/login/otp/request", d.Auth.RequestLoginOTP)
			g.Post("/auth/password/reset/request", d.Auth.RequestPasswordReset)
		})

		// ---------------- Authenticated ----------------
		api.Group(func(g chi.Router) {
			g.Use(middleware.RequireAuth)
			g.Get("/auth/profile", d.Auth.GetProfile)
			g.Put("/auth/profile", d.Auth.UpdateProfile)
			g.Get("/accounts/pending", d.Membership.ListPending)
			g.Post("/accounts/{id}/approve", d.Membership.Approve)
		})

		// ---------------- PRIMARY only ----------------
		api.Group(func(g chi.Router) {
			g.Use(middleware.RequireAuth)
			if d.Accounts != nil {
				g.Use(rbac.RequirePrimary(d.Accounts))
			}
			g.Post("/auth/send-invitation", d.Membership.SendInvitation)
		})
	})

	return r
}
