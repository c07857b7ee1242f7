package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pickandgo/onboarding/internal/agreement"
	"github.com/pickandgo/onboarding/internal/auth"
	"github.com/pickandgo/onboarding/internal/backend"
	"github.com/pickandgo/onboarding/internal/config"
	"github.com/pickandgo/onboarding/internal/db"
	"github.com/pickandgo/onboarding/internal/events"
	"github.com/pickandgo/onboarding/internal/handlers"
	"github.com/pickandgo/onboarding/internal/logging"
	"github.com/pickandgo/onboarding/internal/metrics"
	"github.com/pickandgo/onboarding/internal/middleware"
	"github.com/pickandgo/onboarding/internal/models"
	"github.com/pickandgo/onboarding/internal/submission"
	"github.com/pickandgo/onboarding/internal/wizard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const janitorInterval = time.Minute

// routerDeps is everything the HTTP surface is built from.
type routerDeps struct {
	Log        logrus.FieldLogger
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Auth       *auth.Service
	Users      db.UserCollection
	Wizard     handlers.WizardService
	Agreements handlers.AgreementLoader
	Health     map[string]handlers.Pinger
	RateLimit  *middleware.RateLimitMiddleware
	MaxUpload  int64
}

func newRouter(d routerDeps) http.Handler {
	authMW := middleware.NewAuthMiddleware(d.Auth)
	authHandler := handlers.NewAuthHandler(d.Auth, d.Users, d.Log)
	wizardHandler := handlers.NewWizardHandler(d.Wizard, d.MaxUpload, d.Log)
	agreementHandler := handlers.NewAgreementHandler(d.Agreements)
	quoteHandler := handlers.NewQuoteHandler()
	healthHandler := handlers.NewHealthHandler(d.Health)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(d.Log))
	r.Use(middleware.RequestLogger(d.Log, d.Metrics))
	if d.RateLimit != nil {
		r.Use(d.RateLimit.RateLimit)
	}

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Authenticate)
			r.Get("/auth/profile", authHandler.GetProfile)
			r.Put("/auth/profile", authHandler.UpdateProfile)
			r.Post("/auth/change-password", authHandler.ChangePassword)
			r.Post("/quotes", quoteHandler.Quote)
			r.With(authMW.RequirePermission(models.PermissionViewAgreement)).
				Get("/agreements/{kind}", agreementHandler.Preview)

			r.Group(func(r chi.Router) {
				r.Use(authMW.RequirePermission(models.PermissionAddVehicle))
				r.Route("/vehicle-wizard", wizardHandler.Routes)
			})
		})
	})

	return otelhttp.NewHandler(r, "onboarding")
}

// newSessionStore builds the configured wizard session store. The memory
// store is pruned by the janitor; the redis store joins the health checks.
func newSessionStore(ctx context.Context, cfg config.SessionConfig, m *metrics.Metrics, health map[string]handlers.Pinger) (wizard.Store, *wizard.MemoryStore, func(), error) {
	if cfg.Store == config.SessionStoreRedis {
		rs, err := wizard.NewRedisStore(ctx, cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, nil, nil, err
		}
		health["redis"] = rs
		return rs, nil, func() { rs.Close() }, nil
	}
	ms := wizard.NewMemoryStore(cfg.TTL).WithMetrics(m)
	return ms, ms, func() {}, nil
}

// janitor drops expired sessions and idle rate limiter entries.
func janitor(ctx context.Context, log logrus.FieldLogger, sessions *wizard.MemoryStore, limiter *middleware.RateLimitMiddleware) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fields := logrus.Fields{"limiter_entries": limiter.Cleanup()}
			if sessions != nil {
				fields["expired_sessions"] = sessions.Prune()
			}
			log.WithFields(fields).Debug("Janitor pass")
		}
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	log.WithField("database", cfg.Mongo.Database).Info("Connected to MongoDB")

	usersColl := mongoClient.Database(cfg.Mongo.Database).Collection(db.UsersCollection)
	if err := db.EnsureUserIndexes(ctx, usersColl); err != nil {
		return err
	}

	authService := auth.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)
	if authService.UsesDefaultSecret() {
		log.Warn("JWT_SECRET is not set, using the default development secret")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	backendClient := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
		RPS:     cfg.Backend.RPS,
		Burst:   cfg.Backend.Burst,
	})

	templates := agreement.DefaultTemplates()
	if cfg.Agreement.FallbackFile != "" {
		templates, err = agreement.LoadTemplates(cfg.Agreement.FallbackFile)
		if err != nil {
			return err
		}
		log.WithField("file", cfg.Agreement.FallbackFile).Info("Loaded fallback agreement templates")
	}
	loader := agreement.NewLoader(backendClient, templates, log)

	health := map[string]handlers.Pinger{
		"mongo": handlers.PingFunc(func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }),
	}

	store, memStore, closeStore, err := newSessionStore(ctx, cfg.Session, m, health)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer closeStore()

	opts := wizard.Options{
		Store:         store,
		Loader:        loader,
		Submitter:     submission.NewOrchestrator(backendClient, log, m),
		Metrics:       m,
		Log:           log,
		AgreementKind: models.AgreementBusiness,
	}
	if cfg.MQTT.Enabled() {
		mqttClient := events.NewMQTTClient(events.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
		})
		switch err := mqttClient.Connect(); {
		case err == nil || errors.Is(err, events.ErrConnectPending):
			if err != nil {
				log.WithError(err).Warn("MQTT broker unavailable, vehicle events wait for the connection")
			}
			defer mqttClient.Close()
			opts.Notifier = events.NewNotifier(mqttClient, cfg.MQTT.TopicPrefix, log)
			log.WithField("broker", cfg.MQTT.Broker).Info("Publishing vehicle events over MQTT")
		default:
			log.WithError(err).Warn("MQTT client failed, vehicle events disabled")
		}
	}

	limiter := middleware.NewRateLimitMiddleware(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go janitor(ctx, log, memStore, limiter)

	srv := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: newRouter(routerDeps{
			Log:        log,
			Metrics:    m,
			Gatherer:   registry,
			Auth:       authService,
			Users:      &db.MongoUserCollection{Collection: usersColl},
			Wizard:     wizard.NewService(opts),
			Agreements: loader,
			Health:     health,
			RateLimit:  limiter,
			MaxUpload:  cfg.Upload.MaxBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.App.Port, "session_store": cfg.Session.Store}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Onboarding service stopped")
	}
}
