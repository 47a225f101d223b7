package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/config"
	"github.com/ritaorion/district5b-portal/internal/infra/database"
	kafkainfra "github.com/ritaorion/district5b-portal/internal/infra/kafka"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
	"github.com/ritaorion/district5b-portal/internal/infra/mail"
	"github.com/ritaorion/district5b-portal/internal/infra/notify"
	redisinfra "github.com/ritaorion/district5b-portal/internal/infra/redis"
	"github.com/ritaorion/district5b-portal/internal/infra/security"
	"github.com/ritaorion/district5b-portal/internal/infra/telemetry"
	"github.com/ritaorion/district5b-portal/internal/repository/memory"
	postgresrepo "github.com/ritaorion/district5b-portal/internal/repository/postgres"
	redisrepo "github.com/ritaorion/district5b-portal/internal/repository/redis"
	"github.com/ritaorion/district5b-portal/internal/transport/http/handlers"
	"github.com/ritaorion/district5b-portal/internal/transport/http/middleware"
	"github.com/ritaorion/district5b-portal/internal/transport/http/routes"
	"github.com/ritaorion/district5b-portal/internal/usecase"
)

// Application is the assembled portal API process.
type Application struct {
	cfg      *config.AppConfig
	engine   http.Handler
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

type storage struct {
	submissions port.SubmissionRepository
	accounts    port.AccountRepository
	tokens      port.ProvisioningTokenRepository
	articles    port.ArticlePublisher
}

// New wires configuration, storage, notification channel and HTTP transport.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	readiness := make(map[string]handlers.ReadinessCheck)

	store, err := a.openStorage(ctx, readiness)
	if err != nil {
		return nil, err
	}

	var rateLimitStore port.RateLimitStore
	if cfg.Redis.Enabled {
		a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		readiness["redis"] = a.redis.Ping

		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		rateLimitStore = redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: "portal:rate-limit",
			TTL:       window * 2,
		})
	} else {
		log.Info("redis disabled, rate limiting is off")
	}

	notifier, err := a.openNotifier()
	if err != nil {
		return nil, err
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}
	policy := security.NewCredentialPolicy(security.CredentialPolicyConfig{
		MinLength:       cfg.Credential.MinLength,
		MinClasses:      cfg.Credential.MinClasses,
		MinEntropyScore: cfg.Credential.MinEntropyScore,
	})
	accessTokens, err := security.NewAccessTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init access tokens: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	moderation := usecase.NewModerationService(store.submissions, store.articles, notifier, cfg.Moderation.ReviewAddress, log).
		WithMetrics(metrics)
	provisioning := usecase.NewProvisioningService(store.accounts, store.tokens, hasher, policy, notifier, cfg.Provisioning.PublicBaseURL, log).
		WithTTL(cfg.Provisioning.TokenTTL).
		WithMetrics(metrics)
	auth := usecase.NewAuthService(store.accounts, hasher, accessTokens, log)

	if err := bootstrapAdmin(ctx, provisioning, cfg.Provisioning, log); err != nil {
		return nil, err
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		HTTPMetrics: httpMetrics,
		Gatherer:    registry,
		Readiness:   readiness,
		Services: routes.ServiceSet{
			Moderation:   moderation,
			Provisioning: provisioning,
			Auth:         auth,
		},
	})

	ok = true
	return a, nil
}

func (a *Application) openStorage(ctx context.Context, readiness map[string]handlers.ReadinessCheck) (*storage, error) {
	if a.cfg.Storage.Driver == config.StorageDriverMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		mem := memory.NewStore()
		return &storage{
			submissions: mem.Submissions(),
			accounts:    mem.Accounts(),
			tokens:      mem.Tokens(),
			articles:    mem.Articles(),
		}, nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool
	readiness["postgres"] = pool.Ping

	if a.cfg.Postgres.AutoMigrate {
		if err := postgresrepo.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		a.logger.Info("database migrations applied")
	}

	repos := postgresrepo.NewRepositories(pool)
	return &storage{
		submissions: repos.Submissions,
		accounts:    repos.Accounts,
		tokens:      repos.Tokens,
		articles:    repos.Articles,
	}, nil
}

func (a *Application) openNotifier() (port.Notifier, error) {
	switch a.cfg.Notification.Driver {
	case config.NotificationDriverSMTP:
		renderer, err := notify.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("init mail templates: %w", err)
		}
		a.logger.Info("notifications delivered over smtp", zap.String("host", a.cfg.SMTP.Host))
		return notify.NewMailNotifier(renderer, mail.NewSender(a.cfg.SMTP, a.logger), a.logger), nil
	case config.NotificationDriverKafka:
		producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		a.producer = producer
		topic := a.cfg.NotificationTopic()
		a.logger.Info("notifications queued on kafka",
			zap.Strings("brokers", a.cfg.Kafka.Brokers),
			zap.String("topic", topic),
		)
		return kafkainfra.NewNotifier(producer, topic, a.cfg.App, a.logger), nil
	default:
		a.logger.Info("notifications written to the log only")
		return notify.NewLogNotifier(a.logger), nil
	}
}

// bootstrapAdmin creates the first administrator so that someone can provision
// the rest of the staff. An existing account with that username or email is left alone.
func bootstrapAdmin(ctx context.Context, svc *usecase.ProvisioningService, cfg config.ProvisioningSettings, log *zap.Logger) error {
	if cfg.BootstrapAdminUsername == "" || cfg.BootstrapAdminEmail == "" {
		return nil
	}
	result, err := svc.CreateAccount(ctx, usecase.CreateAccountInput{
		Username: cfg.BootstrapAdminUsername,
		Email:    cfg.BootstrapAdminEmail,
		IsAdmin:  true,
	})
	switch {
	case errors.Is(err, usecase.ErrConflict):
		log.Debug("bootstrap admin already present")
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Info("bootstrap admin created",
		zap.String("account_id", result.Account.ID),
		zap.Bool("link_delivered", result.Notification.Delivered),
	)
	return nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, strconv.Itoa(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting portal API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
		zap.String("notification_driver", a.cfg.Notification.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		a.logger.Info("portal API stopped")
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
