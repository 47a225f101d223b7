package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/infra/config"
	"github.com/ritaorion/district5b-portal/internal/transport/http/handlers"
	"github.com/ritaorion/district5b-portal/internal/transport/http/middleware"
	"github.com/ritaorion/district5b-portal/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Moderation   *usecase.ModerationService
	Provisioning *usecase.ProvisioningService
	Auth         *usecase.AuthService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	// Gatherer backs /metrics; the default registry is used when nil.
	Gatherer  prometheus.Gatherer
	Services  ServiceSet
	Readiness map[string]handlers.ReadinessCheck
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = "district5b-portal"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	if len(cfg.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.App.AllowedOrigins))
	}

	healthOptions := make([]handlers.HealthOption, 0, len(deps.Readiness))
	for name, check := range deps.Readiness {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck(name, check))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	limits := cfg.RateLimit

	if deps.Services.Moderation != nil {
		handlers.NewStoryHandler(deps.Services.Moderation).
			RegisterRoutes(api, rateLimit(deps, "stories_submit_ip", limits.SubmitMaxAttempts)...)
	}

	if deps.Services.Auth == nil {
		return r
	}

	handlers.NewAuthHandler(deps.Services.Auth).
		RegisterRoutes(api.Group("/auth"), rateLimit(deps, "auth_login_ip", limits.LoginMaxAttempts)...)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireStaff(deps.Services.Auth))

	if deps.Services.Moderation != nil {
		handlers.NewSubmissionHandler(deps.Services.Moderation).RegisterRoutes(admin.Group("/submissions"))
	}

	if deps.Services.Provisioning != nil {
		accountHandler := handlers.NewAccountHandler(deps.Services.Provisioning)
		accountHandler.RegisterSetupRoutes(api.Group("/account"), rateLimit(deps, "account_setup_ip", limits.SetupMaxAttempts)...)

		accounts := admin.Group("/accounts")
		accounts.Use(middleware.RequireAdmin())
		accountHandler.RegisterAdminRoutes(accounts)
	}

	return r
}

func rateLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := time.Minute
	if deps.Config != nil && deps.Config.RateLimit.WindowDuration > 0 {
		window = deps.Config.RateLimit.WindowDuration
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}
	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
