package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"idecide/internal/adoption"
	"idecide/internal/audit"
	"idecide/internal/consumer"
	"idecide/internal/decision"
	"idecide/internal/decisiontype"
	"idecide/internal/notification"
	"idecide/internal/patient"
	"idecide/internal/platform/config"
	"idecide/internal/platform/httpserver"
	"idecide/internal/platform/kafka"
	"idecide/internal/platform/logger"
	"idecide/internal/platform/metrics"
	"idecide/internal/platform/redis"
	"idecide/internal/security"
	transport "idecide/internal/transport/http"
	"idecide/internal/verification"
	id "idecide/pkg/domain"
)

// stores groups the persistence layer so construction happens once, backed by
// PostgreSQL when a DSN is configured and in-memory otherwise.
type stores struct {
	patients  patient.Store
	decisions decision.Store
	types     decisiontype.Store
	consumers consumer.Store
	adoptions adoption.Store
	audits    audit.Store
}

func newStores(db *sql.DB) stores {
	if db != nil {
		return stores{
			patients:  patient.NewPostgres(db),
			decisions: decision.NewPostgres(db),
			types:     decisiontype.NewPostgres(db),
			consumers: consumer.NewPostgres(db),
			adoptions: adoption.NewPostgres(db),
			audits:    audit.NewPostgres(db),
		}
	}
	return stores{
		patients:  patient.NewInMemoryStore(),
		decisions: decision.NewInMemoryStore(),
		types:     decisiontype.NewInMemoryStore(),
		consumers: consumer.NewInMemoryStore(),
		adoptions: adoption.NewInMemoryStore(),
		audits:    audit.NewInMemoryStore(),
	}
}

// consumerNamer resolves consumer display names for usage notifications.
type consumerNamer struct {
	store consumer.Store
}

func (n consumerNamer) Name(ctx context.Context, consumerID id.ConsumerID) (string, error) {
	c, err := n.store.FindByID(ctx, consumerID)
	if err != nil {
		return "", err
	}
	return c.Name, nil
}

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
	}
	st := newStores(db)

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := kafka.New(ctx, cfg.KafkaBrokers)
	if err != nil {
		log.Error("kafka connect failed", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
	}

	auditor := audit.NewPublisher(st.audits, producer, log)
	inbox := make(chan audit.Event, 256)
	worker := audit.NewWorker(auditor, inbox)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	var notifier notification.Sender
	if cfg.NotifyEndpoint != "" {
		notifier = notification.NewHTTPSender(cfg.NotifyEndpoint, cfg.NotifyAPIKey)
	} else {
		log.Warn("no notification endpoint configured, logging notifications")
		notifier = notification.NewLogSender(log)
	}

	var limiterStore verification.LimiterStore
	if redisClient != nil {
		limiterStore = verification.NewRedisLimiterStore(redisClient.Client)
	} else {
		limiterStore = verification.NewInMemoryLimiterStore()
	}
	limiter := verification.NewLimiter(limiterStore, cfg.RateLimitMax, cfg.RateLimitWindow)

	var captcha security.CaptchaVerifier
	if cfg.CaptchaSecret != "" {
		captcha = security.NewRecaptchaVerifier(cfg.CaptchaSecret, cfg.CaptchaThreshold)
	} else {
		captcha = security.StaticVerifier{Allow: true}
	}

	sec := security.NewContextProvider()
	tokens := security.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	nhsLogin := security.NewNHSLoginClient(cfg.NHSLoginBaseURL, cfg.NHSLoginClientID)

	codesSvc := verification.NewService(st.patients, notifier, limiter, auditor, m, log, verification.Config{
		CodeTTL:    cfg.CodeTTL,
		CodeLength: cfg.CodeLength,
		MaxRetries: cfg.MaxRetries,
	})
	patientSvc := patient.NewService(st.patients, sec, log)
	typeSvc := decisiontype.NewService(st.types, sec, log)
	consumerSvc := consumer.NewService(st.consumers, sec, log)
	decisionSvc := decision.NewService(
		st.decisions, st.types, st.patients, codesSvc, nhsLogin,
		sec, captcha, auditor, m, log,
		decision.Config{RecencyWindow: cfg.RecencyWindow},
	)
	adoptionSvc := adoption.NewService(
		st.adoptions, st.decisions, st.patients, st.types,
		consumerNamer{store: st.consumers}, notifier, producer, auditor, m, log,
	)

	health := func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}

	router := transport.NewRouter(transport.RouterConfig{
		Logger:         log,
		Metrics:        m,
		TokenValidator: tokens,
		ConsumerAuth:   consumerSvc,
		Patients:       transport.NewPatientsHandler(patientSvc, st.audits, log),
		Codes:          transport.NewCodesHandler(codesSvc, log),
		Decisions:      transport.NewDecisionsHandler(decisionSvc, log),
		Adoptions:      transport.NewAdoptionsHandler(adoptionSvc, log),
		Admin:          transport.NewAdminHandler(consumerSvc, typeSvc, log),
		Audit:          &transport.AuditTrail{Publisher: auditor, Inbox: inbox},
		Health:         health,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting idecide", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
