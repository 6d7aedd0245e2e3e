package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idecide/internal/platform/metrics"
	"idecide/internal/platform/middleware"
)

// RouterConfig wires the handlers and cross-cutting dependencies into the
// HTTP surface.
type RouterConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	TokenValidator middleware.TokenValidator
	ConsumerAuth   ConsumerAuthenticator

	Patients  *PatientsHandler
	Codes     *CodesHandler
	Decisions *DecisionsHandler
	Adoptions *AdoptionsHandler
	Admin     *AdminHandler

	// Audit, when set, records staff mutations on the audit trail.
	Audit *AuditTrail

	Health  http.HandlerFunc
	Timeout time.Duration
}

// NewRouter assembles the service router: citizen consent endpoints behind
// bearer auth, the adoption feed behind consumer basic auth, and the staff
// surface behind the admin role.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Metadata)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Latency(cfg.Metrics))
	r.Use(middleware.Timeout(cfg.Timeout))
	r.Use(middleware.ContentTypeJSON)

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Citizen surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.TokenValidator, cfg.Logger))

			r.Post("/patients/search", cfg.Patients.Search)
			r.Post("/codes", cfg.Codes.Issue)
			r.Post("/codes/submissions", cfg.Codes.Submit)
			r.Get("/decision-types", cfg.Admin.ListDecisionTypes)

			r.Post("/decisions", cfg.Decisions.Record)
			r.Put("/decisions/{decisionID}", cfg.Decisions.Modify)
			r.Get("/decisions/{decisionID}", cfg.Decisions.Get)
			r.Get("/patients/{patientID}/decisions", cfg.Decisions.ListForPatient)
		})

		// Consumer surface.
		r.Group(func(r chi.Router) {
			r.Use(RequireConsumer(cfg.ConsumerAuth, cfg.Logger))

			r.Post("/adoption/decisions", cfg.Adoptions.Adopt)
			r.Get("/adoption/decisions", cfg.Adoptions.Pending)
		})

		// Staff surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.TokenValidator, cfg.Logger))
			r.Use(middleware.RequireRole("admin", cfg.Logger))
			r.Use(cfg.Audit.auditAdmin)

			r.Post("/admin/patients", cfg.Patients.Register)
			r.Delete("/admin/patients/{patientID}", cfg.Patients.Delete)
			r.Get("/admin/patients/{patientID}/audit", cfg.Patients.AuditTrail)

			r.Post("/admin/consumers", cfg.Admin.RegisterConsumer)
			r.Get("/admin/consumers", cfg.Admin.ListConsumers)
			r.Post("/admin/consumers/{consumerID}/secret", cfg.Admin.RotateConsumerSecret)

			r.Post("/admin/decision-types", cfg.Admin.CreateDecisionType)
			r.Put("/admin/decision-types/{typeID}", cfg.Admin.UpdateDecisionType)
			r.Delete("/admin/decision-types/{typeID}", cfg.Admin.DeleteDecisionType)
		})
	})

	return r
}
