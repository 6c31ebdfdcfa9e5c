package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/obs"
	"github.com/aussiebroadwan/authcore/internal/auth/service"
	"github.com/aussiebroadwan/authcore/pkg/guard"
	"github.com/aussiebroadwan/authcore/pkg/httpx"
	"github.com/aussiebroadwan/authcore/pkg/sessionx"
	"github.com/aussiebroadwan/authcore/pkg/slogx"

	_ "github.com/aussiebroadwan/authcore/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Limits selects the rate limit profile for each class of endpoint.
type Limits struct {
	// Credentials covers login and register.
	Credentials httpx.RateLimitConfig
	// Session covers refresh and the authenticated endpoints.
	Session httpx.RateLimitConfig
	// Admin covers /admin, keyed by address ahead of the guard and by user
	// behind it.
	Admin httpx.RateLimitConfig
	// Probe covers health checks.
	Probe httpx.RateLimitConfig
}

// DefaultLimits returns the httpx profiles, which honour the RATELIMIT_*
// environment overrides.
func DefaultLimits() Limits {
	return Limits{
		Credentials: httpx.StrictLimit,
		Session:     httpx.ModerateLimit,
		Admin:       httpx.ModerateLimit,
		Probe:       httpx.LenientLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	limits       Limits

	db      Pinger
	guard   *guard.Guard
	cookies sessionx.Cookies
	metrics *obs.Metrics
	audit   *service.AuditService

	AuthService *service.AuthService
	UserService *service.UserService
}

// RouterOption configures optional Router dependencies.
type RouterOption func(*Router)

// WithMetrics instruments every request and serves GET /metrics.
func WithMetrics(m *obs.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithAudit records rejected /admin requests in the admin audit trail.
func WithAudit(a *service.AuditService) RouterOption {
	return func(r *Router) { r.audit = a }
}

// WithLimits replaces DefaultLimits.
func WithLimits(l Limits) RouterOption {
	return func(r *Router) { r.limits = l }
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) RouterOption {
	return func(r *Router) { r.cookies.Secure = secure }
}

func NewRouter(
	authService *service.AuthService,
	userService *service.UserService,
	g *guard.Guard,
	db Pinger,
	buildVersion string,
	logger *slog.Logger,
	opts ...RouterOption,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		limits:       DefaultLimits(),
		db:           db,
		guard:        g,
		AuthService:  authService,
		UserService:  userService,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}
	if r.metrics != nil {
		// Innermost, so the matched pattern is visible after the mux runs.
		r.middlewares = append(r.middlewares, r.metrics.Instrument)
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("GET /swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			AuthCore API
//	@version		0.1.0
//	@description	Session authentication service. Tokens are HS256 JWTs valid for seven days and may be refreshed
//	@description	up to a day after they expire. Browsers receive the same token in the datespark_auth_token cookie.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/authcore
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@schemes		http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// limitOpts reports 429s to the metrics when they are enabled.
func (r *Router) limitOpts() []httpx.RateLimitOption {
	if r.metrics == nil {
		return nil
	}
	return []httpx.RateLimitOption{httpx.WithRejectHook(r.metrics.RateLimited)}
}

// adminLimitOpts also writes each 429 to the audit trail.
func (r *Router) adminLimitOpts(scope string) []httpx.RateLimitOption {
	if r.audit == nil {
		return r.limitOpts()
	}
	return []httpx.RateLimitOption{httpx.WithRejectHook(func(req *http.Request) {
		if r.metrics != nil {
			r.metrics.RateLimited(req)
		}
		ev := guard.NewAuditEvent(req, guard.ActionRateLimitExceeded)
		ev.Reason = scope
		r.audit.RecordAdminEvent(req.Context(), ev)
	})}
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService, Cookies: r.cookies}

	// Login is limited by IP and by IP + email so one address cannot spray
	// many accounts and one account cannot be hammered from one address.
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(r.limits.Credentials, r.limitOpts()...),
			httpx.RateLimitByIPAndJSONField(r.limits.Credentials, "email", r.limitOpts()...),
		),
	)
	r.Mux.Handle("POST /auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.limits.Credentials, r.limitOpts()...),
		),
	)
	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.limits.Session, r.limitOpts()...),
		),
	)
	r.Mux.Handle("POST /auth/logout", http.HandlerFunc(h.HandleLogout))
	r.Mux.Handle("GET /auth/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			r.guard.Authenticated,
			httpx.RateLimitByUser(r.limits.Session, r.limitOpts()...),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UserHandler{UserService: r.UserService}

	r.Mux.Handle("GET /users/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGetUser),
			r.guard.OwnerFromPath("id"),
			httpx.RateLimitByUser(r.limits.Session, r.limitOpts()...),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &UserHandler{UserService: r.UserService}

	// The address limit runs first so unauthenticated callers cannot make
	// the guard verify tokens and look up roles without bound.
	r.Mux.Handle("GET /admin/users/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleAdminGetUser),
			httpx.RateLimitByIP(r.limits.Admin, r.adminLimitOpts("ip")...),
			r.guard.Admin,
			httpx.RateLimitByUser(r.limits.Admin, r.adminLimitOpts("user")...),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Probe, r.limitOpts()...),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.db),
			httpx.RateLimitByIP(r.limits.Probe, r.limitOpts()...),
		),
	)
	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}
}
