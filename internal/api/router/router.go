package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-intake/internal/appointments"
	httpmiddleware "github.com/wolfman30/clinic-intake/internal/http/middleware"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Appointments       *appointments.Handler
	AuthSecret         string
	AdminEmails        []string
	CORSAllowedOrigins []string
	MetricsHandler     http.Handler
	// PublicLimiter throttles the unauthenticated verify/slip/check-in routes per client IP.
	PublicLimiter *httpmiddleware.RateLimiter
	HealthChecks  map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	h := cfg.Appointments
	if h == nil {
		return r
	}

	r.Route("/appointments", func(appts chi.Router) {
		// Public: the verification link and slip printed for front-desk staff.
		appts.Group(func(public chi.Router) {
			if cfg.PublicLimiter != nil {
				public.Use(httpmiddleware.RateLimit(cfg.PublicLimiter))
			}
			public.Get("/verify/{id}", h.Verify)
			public.Get("/slip/{id}", h.Slip)
			public.Put("/checkin/{id}", h.CheckIn)
		})

		appts.Group(func(authed chi.Router) {
			authed.Use(httpmiddleware.Authenticate(cfg.AuthSecret, cfg.AdminEmails))
			authed.Post("/book", h.Book)
			authed.Get("/my", h.ListMine)
			authed.Get("/{id}", h.Get)

			authed.Route("/admin", func(admin chi.Router) {
				admin.Use(httpmiddleware.RequireAdmin)
				admin.Get("/all", h.ListAll)
				admin.Put("/confirm/{id}", h.Confirm)
				admin.Put("/reject/{id}", h.Reject)
				admin.Put("/noshow/{id}", h.NoShow)
				admin.Put("/pending/{id}", h.Revert)
				admin.Put("/resend/{id}", h.Resend)
				admin.Delete("/{id}", h.Delete)
			})
		})
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		code := http.StatusOK
		if len(names) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			resp.Checks = make(map[string]string, len(names))
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					code = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
