package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/ams-cubing/public-calendar/internal/api/handlers"
	"github.com/ams-cubing/public-calendar/internal/api/middleware"
	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/auth/oauth"
	"github.com/ams-cubing/public-calendar/internal/config"
	"github.com/ams-cubing/public-calendar/internal/domain/activity"
	"github.com/ams-cubing/public-calendar/internal/domain/availability"
	"github.com/ams-cubing/public-calendar/internal/domain/calendar"
	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/ams-cubing/public-calendar/internal/email"
	"github.com/ams-cubing/public-calendar/internal/jobs"
	"github.com/ams-cubing/public-calendar/internal/metrics"
	"github.com/ams-cubing/public-calendar/internal/storage/postgres"
	"github.com/ams-cubing/public-calendar/internal/validation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// Router is the HTTP handler together with the River client it feeds.
// The caller starts and stops RiverClient.
type Router struct {
	Handler     http.Handler
	RiverClient *river.Client[pgx.Tx]
}

// BuildInfo is reported by /version and /readyz.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// Handlers groups the endpoint handlers mounted by Routes.
type Handlers struct {
	Health         *handlers.HealthChecker
	Public         *handlers.PublicHandler
	Auth           *handlers.AuthHandler
	Competitions   *handlers.CompetitionsHandler
	Availability   *handlers.AvailabilityHandler
	Users          *handlers.PanelUsersHandler
	Build          BuildInfo
	MetricsHandler http.Handler
}

// NewRouter wires storage, services, the job queue and the HTTP stack.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool, build BuildInfo) (*Router, error) {
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return nil, fmt.Errorf("repository init: %w", err)
	}

	mailer, err := email.NewService(cfg.Email, cfg.Server.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("email service: %w", err)
	}

	riverLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	policy := jobs.NewRetryPolicy(cfg.Jobs.NotificationMaxAttempts)
	workers := jobs.NewWorkers(jobs.Dependencies{
		Lookup:   repo.Notifications(),
		Mailer:   mailer,
		Sessions: repo.SessionCleanup(),
		Policy:   policy,
		Logger:   riverLogger,
	})
	riverClient, err := jobs.NewClient(pool, jobs.NewClientConfig(
		workers.Workers,
		policy,
		riverLogger,
		[]rivertype.Hook{metrics.NewJobHook()},
		jobs.NewPeriodicJobs(cfg.Jobs.SessionCleanupInterval),
	))
	if err != nil {
		return nil, fmt.Errorf("river client: %w", err)
	}
	workers.SetQueue(riverClient)
	repo.SetJobInserter(jobs.NewInserter(riverClient, policy))

	keys, err := auth.DeriveKeys([]byte(cfg.Auth.SessionSecret))
	if err != nil {
		return nil, err
	}

	auditLogger := audit.NewLogger(logger)
	wca := oauth.NewWCAClient(oauth.WCAConfig{
		BaseURL:      cfg.WCA.BaseURL,
		ClientID:     cfg.WCA.ClientID,
		ClientSecret: cfg.WCA.ClientSecret,
		CallbackURL:  cfg.WCA.RedirectURL,
	})
	sessions := auth.NewSessions(repo.Sessions(), cfg.Auth.SessionTTL)
	stateTokens := auth.NewStateTokens(keys.OAuthState, cfg.Auth.StateTTL, cfg.Server.BaseURL)

	policyCfg := competitions.Policy{
		LeadMonths:        cfg.Scheduling.LeadMonths,
		MaxRequestsPerDay: cfg.Scheduling.MaxRequestsPerDay,
		QuotaWindow:       cfg.Scheduling.RequestQuotaWindow,
		Location:          cfg.Scheduling.Location(),
	}
	validator := validation.New()
	competitionService := competitions.NewService(repo.Competitions(), auditLogger, validator, policyCfg, logger)
	availabilityService := availability.NewService(repo.Availability(), auditLogger, validator, logger)
	calendarService := calendar.NewService(repo.Calendar(), cfg.Scheduling.LeadMonths, cfg.Scheduling.Location())
	regionService := regions.NewService(repo.Regions())
	userService := users.NewService(repo.Users(), wca, auditLogger, logger)
	activityService := activity.NewService(repo.Activity())

	env := cfg.Environment
	h := Handlers{
		Health:       handlers.NewHealthChecker(pool, build.Version, build.GitCommit),
		Public:       handlers.NewPublicHandler(calendarService, regionService, env),
		Competitions: handlers.NewCompetitionsHandler(competitionService, env),
		Availability: handlers.NewAvailabilityHandler(availabilityService, env),
		Users:        handlers.NewPanelUsersHandler(userService, activityService, env),
		Auth: handlers.NewAuthHandler(wca, stateTokens, sessions, userService, handlers.AuthConfig{
			StateTTL:          cfg.Auth.StateTTL,
			SecureCookies:     cfg.Auth.SecureCookies,
			TrustedProxyCIDRs: cfg.RateLimit.TrustedProxyCIDRs,
		}, env),
		Build:          build,
		MetricsHandler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}

	return &Router{
		Handler:     Stack(cfg, logger, sessions, keys.CSRF, Routes(h, env)),
		RiverClient: riverClient,
	}, nil
}

// Stack wraps the mux with the request middleware. Tracing and metrics sit
// innermost so they see the request the mux records its pattern on.
func Stack(cfg config.Config, logger zerolog.Logger, sessions middleware.SessionResolver, csrfKey []byte, mux http.Handler) http.Handler {
	env := cfg.Environment
	secure := cfg.Auth.SecureCookies

	var handler http.Handler = metrics.HTTPMiddleware(mux)
	handler = middleware.Tracing(handler)
	handler = middleware.CSRFProtection(csrfKey, secure, env)(handler)
	handler = middleware.RateLimit(cfg.RateLimit, env)(handler)
	handler = middleware.LoadSession(sessions, secure)(handler)
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize, env)(handler)
	handler = middleware.SecurityHeaders(secure)(handler)
	handler = middleware.RequestLogging()(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler
}

// Routes mounts every endpoint on a ServeMux.
func Routes(h Handlers, env string) *http.ServeMux {
	signedIn := middleware.RequireSignedIn(env)
	staff := middleware.RequireRole(env, auth.RoleDelegate, auth.RoleAdmin)
	admin := middleware.RequireRole(env, auth.RoleAdmin)

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", h.Health.Ready())
	mux.Handle("GET /version", VersionHandler(h.Build, env))
	if h.MetricsHandler != nil {
		mux.Handle("GET /metrics", h.MetricsHandler)
	}

	mux.HandleFunc("GET /api/v1/calendar", h.Public.Calendar)
	mux.HandleFunc("GET /api/v1/regions", h.Public.Regions)
	mux.HandleFunc("GET /api/v1/directory", h.Public.Directory)

	mux.HandleFunc("GET /auth/login", h.Auth.Login)
	mux.HandleFunc("GET /auth/callback", h.Auth.Callback)
	mux.HandleFunc("POST /auth/logout", h.Auth.Logout)
	mux.Handle("GET /api/v1/me", signedIn(http.HandlerFunc(h.Auth.Me)))

	mux.Handle("/api/v1/date-requests", signedIn(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(h.Competitions.Quota),
		http.MethodPost: http.HandlerFunc(h.Competitions.RequestDate),
	})))
	mux.Handle("GET /api/v1/my/competitions", signedIn(http.HandlerFunc(h.Competitions.Mine)))

	mux.Handle("/api/v1/panel/competitions", staff(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(h.Competitions.List),
		http.MethodPost: http.HandlerFunc(h.Competitions.Create),
	})))
	mux.Handle("/api/v1/panel/competitions/{id}", staff(methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(h.Competitions.Get),
		http.MethodPut:    http.HandlerFunc(h.Competitions.Update),
		http.MethodDelete: http.HandlerFunc(h.Competitions.Delete),
	})))
	mux.Handle("POST /api/v1/panel/competitions/{id}/ultimatum", staff(http.HandlerFunc(h.Competitions.Ultimatum)))

	mux.Handle("/api/v1/panel/availability", signedIn(methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(h.Availability.Overview),
		http.MethodPost:   http.HandlerFunc(h.Availability.Submit),
		http.MethodDelete: http.HandlerFunc(h.Availability.Delete),
	})))
	mux.Handle("POST /api/v1/panel/unavailability", signedIn(http.HandlerFunc(h.Availability.SubmitUnavailability)))

	mux.Handle("GET /api/v1/panel/activity", staff(http.HandlerFunc(h.Users.Activity)))
	mux.Handle("/api/v1/panel/users", staff(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(h.Users.Search),
		http.MethodPost: http.HandlerFunc(h.Users.Import),
	})))
	mux.Handle("PATCH /api/v1/panel/users/{wcaId}", admin(http.HandlerFunc(h.Users.Update)))
	return mux
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
