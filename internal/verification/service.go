// Package verification owns the patient verification-code lifecycle:
// issuing time-boxed codes, matching submissions against them, bounding
// retries, and enforcing the one-active-code policy. All durable state lives
// on the patient record; every transition is persisted before the operation
// returns.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"idecide/internal/audit"
	"idecide/internal/notification"
	"idecide/internal/patient"
	"idecide/internal/platform/metrics"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// PatientStore is the slice of patient persistence the lifecycle needs.
type PatientStore interface {
	FindByNHSNumber(ctx context.Context, nhsNumber string) (*patient.Patient, error)
	Update(ctx context.Context, p *patient.Patient) error
}

// Config carries the lifecycle tunables.
type Config struct {
	CodeTTL    time.Duration
	CodeLength int
	MaxRetries int
}

// Service drives code issuance and matching against the patient store.
type Service struct {
	patients PatientStore
	notifier notification.Sender
	limiter  *Limiter
	auditor  *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config
	generate func(int) (string, error)
}

// Option configures the Service.
type Option func(*Service)

// WithCodeGenerator overrides code generation; tests pin the code.
func WithCodeGenerator(fn func(int) (string, error)) Option {
	return func(s *Service) { s.generate = fn }
}

func NewService(
	patients PatientStore,
	notifier notification.Sender,
	limiter *Limiter,
	auditor *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	svc := &Service{
		patients: patients,
		notifier: notifier,
		limiter:  limiter,
		auditor:  auditor,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		generate: GenerateCode,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// IssueCode generates and delivers a fresh verification code for the patient
// identified by NHS number.
//
// An active code blocks reissue unless forceNew is set: the citizen must
// either use the outstanding code or explicitly request a new one. Issuance
// is rate limited per NHS number and per client IP with a sliding window.
func (s *Service) IssueCode(ctx context.Context, nhsNumber string, forceNew bool) (*patient.Patient, error) {
	now := requestcontext.Now(ctx)

	if err := s.limiter.Allow(ctx, now, "nhs:"+nhsNumber, "ip:"+requestcontext.ClientIP(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrRateLimited) {
			return nil, dErrors.Wrap(err, dErrors.CodeTooManyRequests, "code requested too frequently")
		}
		s.logger.ErrorContext(ctx, "rate limit store failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "rate limit check unavailable")
	}

	p, err := s.patients.FindByNHSNumber(ctx, nhsNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no patient record for nhs number")
		}
		s.logger.ErrorContext(ctx, "patient lookup failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "patient store unavailable")
	}

	if p.HasActiveCode(now, s.cfg.MaxRetries) && !forceNew {
		return nil, dErrors.Wrap(
			fmt.Errorf("code issued at current ttl: %w", sentinel.ErrActiveCodeExists),
			dErrors.CodeConflict, "a valid verification code already exists")
	}

	code, err := s.generate(s.cfg.CodeLength)
	if err != nil {
		s.logger.ErrorContext(ctx, "code generation failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate verification code")
	}

	p.BeginCode(code, now, s.cfg.CodeTTL)
	p.UpdatedDate = now

	if err := s.persist(ctx, p); err != nil {
		return nil, err
	}

	s.metrics.CodesIssued.Inc()
	_ = s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionCodeIssued,
		PatientID: p.ID,
		Detail:    fmt.Sprintf("expires %s", p.ValidationCodeExpiresOn.Format(time.RFC3339)),
	})

	if _, err := s.notifier.SendCodeNotification(ctx, notification.Info{Patient: *p, Code: code}); err != nil {
		// The code is already persisted; the citizen can force a new one.
		s.metrics.NotificationFailures.Inc()
		s.logger.ErrorContext(ctx, "code notification failed",
			"patient_id", p.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not deliver verification code")
	}

	return p, nil
}

// SubmitCode applies one code submission for the patient identified by NHS
// number. Failed matches burn a retry and are persisted before the error
// returns, so a crashed process never forgets an attempt. A successful match
// stamps ValidationCodeMatchedOn exactly once.
func (s *Service) SubmitCode(ctx context.Context, nhsNumber, submitted string) (*patient.Patient, error) {
	now := requestcontext.Now(ctx)

	p, err := s.patients.FindByNHSNumber(ctx, nhsNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no patient record for nhs number")
		}
		s.logger.ErrorContext(ctx, "patient lookup failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "patient store unavailable")
	}

	submitErr := p.SubmitCode(submitted, now, s.cfg.MaxRetries)

	switch {
	case submitErr == nil:
		p.UpdatedDate = now
		if err := s.persist(ctx, p); err != nil {
			return nil, err
		}
		s.metrics.CodesMatched.Inc()
		_ = s.auditor.Emit(ctx, audit.Event{Action: audit.ActionCodeMatched, PatientID: p.ID})
		return p, nil

	case errors.Is(submitErr, sentinel.ErrCodeMismatch):
		// The retry increment must survive even though the call fails.
		p.UpdatedDate = now
		if err := s.persist(ctx, p); err != nil {
			return nil, err
		}
		_ = s.auditor.Emit(ctx, audit.Event{
			Action:    audit.ActionCodeRejected,
			PatientID: p.ID,
			Detail:    fmt.Sprintf("retry %d of %d", p.RetryCount, s.cfg.MaxRetries),
		})
		return nil, dErrors.Wrap(submitErr, dErrors.CodeValidation, "verification code does not match")

	case errors.Is(submitErr, sentinel.ErrExpired):
		s.metrics.CodesExpired.Inc()
		return nil, dErrors.Wrap(submitErr, dErrors.CodeValidation, "verification code has expired")

	case errors.Is(submitErr, sentinel.ErrRetriesExhausted):
		s.metrics.CodeRetriesExhausted.Inc()
		_ = s.auditor.Emit(ctx, audit.Event{Action: audit.ActionRetriesExhausted, PatientID: p.ID})
		return nil, dErrors.Wrap(submitErr, dErrors.CodeValidation, "maximum verification attempts exceeded")

	case errors.Is(submitErr, sentinel.ErrAlreadyUsed):
		return nil, dErrors.Wrap(submitErr, dErrors.CodeConflict, "verification code already used")

	default:
		return nil, dErrors.Wrap(submitErr, dErrors.CodeValidation, "no verification code outstanding")
	}
}

// persist writes the patient back, mapping the optimistic-concurrency loser
// to a retryable locked error.
func (s *Service) persist(ctx context.Context, p *patient.Patient) error {
	if err := s.patients.Update(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrLocked) {
			return dErrors.Wrap(err, dErrors.CodeLocked, "patient record was updated concurrently, retry")
		}
		s.logger.ErrorContext(ctx, "patient update failed",
			"patient_id", p.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.Wrap(err, dErrors.CodeDependency, "patient store unavailable")
	}
	return nil
}
