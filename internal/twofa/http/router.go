package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/service"
	"github.com/aussiebroadwan/twofa/internal/twofa/store"
	"github.com/aussiebroadwan/twofa/pkg/authsdk"
	"github.com/aussiebroadwan/twofa/pkg/httpx"
	"github.com/aussiebroadwan/twofa/pkg/slogx"

	_ "github.com/aussiebroadwan/twofa/api/twofa" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers. RegisterLimit and
// TrustProxyHeaders must be set before ApplyRoutes.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store             store.Store
	EnrollmentService *service.EnrollmentService
	Metrics           *Metrics

	// RegisterLimit throttles POST /api/registration per client.
	RegisterLimit httpx.RateLimitConfig

	// TrustProxyHeaders keys the registration limiter on X-Forwarded-For /
	// X-Real-IP instead of the socket address.
	TrustProxyHeaders bool
}

func NewRouter(
	buildVersion string,
	st store.Store,
	enrollment *service.EnrollmentService,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:               http.NewServeMux(),
		buildVersion:      buildVersion,
		startTime:         time.Now(),
		store:             st,
		EnrollmentService: enrollment,
		Metrics:           NewMetrics("twofa"),
		RegisterLimit:     httpx.RegisterLimit,
		logger:            logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerEnrollment()
	r.registerUsers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			twofa TOTP Service API
//	@version		0.1.0
//	@description	Issues and verifies TOTP second factors. Register to obtain a shared secret,
//	@description	confirm enrollment with the first code from an authenticator app, then validate codes on demand.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/twofa
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@schemes		http https
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerEnrollment() {
	h := &EnrollmentHandler{
		EnrollmentService: r.EnrollmentService,
		Metrics:           r.Metrics,
	}

	keyExtractor := httpx.RemoteAddrKeyExtractor
	if r.TrustProxyHeaders {
		keyExtractor = httpx.IPKeyExtractor
	}

	limiter := httpx.NewRateLimiter(r.RegisterLimit)
	limiter.OnLimited = func(*http.Request) { r.Metrics.rateLimited.Inc() }

	// POST /api/registration - every call creates a record, so it is limited per client
	r.Mux.Handle("POST /api/registration",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			limiter.Middleware(keyExtractor),
			r.Metrics.Instrument("registration"),
		),
	)

	r.Mux.Handle("POST /api/key/verification",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			r.Metrics.Instrument("verification"),
		),
	)
	r.Mux.Handle("POST /api/key/validation",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			r.Metrics.Instrument("validation"),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{EnrollmentService: r.EnrollmentService}

	r.Mux.Handle("GET /api/users/{id}",
		httpx.Chain(h, r.Metrics.Instrument("user_status")),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /{$}", WelcomeHandler())
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
	r.Mux.Handle("GET /metrics", r.Metrics.Handler())

	// Anything else gets the JSON error shape rather than the mux's plain text.
	r.Mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		authsdk.ErrNotFound.WriteError(w)
	}))
}
