package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idecide/internal/audit"
	"idecide/internal/decisiontype"
	"idecide/internal/patient"
	"idecide/internal/platform/metrics"
	"idecide/internal/security"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// CodeVerifier matches a submitted verification code against the patient's
// outstanding one.
type CodeVerifier interface {
	SubmitCode(ctx context.Context, nhsNumber, submitted string) (*patient.Patient, error)
}

// PatientStore is the slice of patient persistence the workflow needs.
type PatientStore interface {
	FindByNHSNumber(ctx context.Context, nhsNumber string) (*patient.Patient, error)
}

// DecisionTypeStore resolves decision type references.
type DecisionTypeStore interface {
	FindByID(ctx context.Context, typeID id.DecisionTypeID) (*decisiontype.DecisionType, error)
}

// IdentityProvider verifies an NHS login access token as an alternative to a
// verification code.
type IdentityProvider interface {
	Enabled() bool
	UserInfo(ctx context.Context, accessToken string) (*security.NHSLoginUserInfo, error)
}

// Config carries the workflow tunables.
type Config struct {
	// RecencyWindow bounds how old a decision's audit stamps may be at
	// validation time.
	RecencyWindow time.Duration
}

// Service orchestrates decision recording: it gates on the authenticated
// user, optionally checks a CAPTCHA, proves the patient's identity, then
// validates and persists the decision with audit stamps.
type Service struct {
	decisions Store
	types     DecisionTypeStore
	patients  PatientStore
	verifier  CodeVerifier
	identity  IdentityProvider
	security  security.Provider
	captcha   security.CaptchaVerifier
	auditor   *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	cfg       Config
}

func NewService(
	decisions Store,
	types DecisionTypeStore,
	patients PatientStore,
	verifier CodeVerifier,
	identity IdentityProvider,
	sec security.Provider,
	captcha security.CaptchaVerifier,
	auditor *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		decisions: decisions,
		types:     types,
		patients:  patients,
		verifier:  verifier,
		identity:  identity,
		security:  sec,
		captcha:   captcha,
		auditor:   auditor,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("idecide/decision"),
		cfg:       cfg,
	}
}

// RecordInput is a citizen's decision submission.
type RecordInput struct {
	NHSNumber        string
	VerificationCode string
	NHSLoginToken    string
	CaptchaToken     string

	DecisionTypeID id.DecisionTypeID
	Choice         Choice

	ResponsiblePersonGivenName    string
	ResponsiblePersonSurname      string
	ResponsiblePersonRelationship string
}

// RecordDecision runs the full recording workflow. Each step gates the next:
// authentication, CAPTCHA, identity proof, validation, persistence. Nothing
// is written before the patient's identity is proven, and a persisted
// decision is always followed by an audit event.
func (s *Service) RecordDecision(ctx context.Context, in RecordInput) (*Decision, error) {
	ctx, span := s.tracer.Start(ctx, "decision.Record")
	defer span.End()

	user, err := s.security.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("decision.choice", string(in.Choice)))

	if err := s.checkCaptcha(ctx, in.CaptchaToken); err != nil {
		span.RecordError(err)
		return nil, err
	}

	p, err := s.proveIdentity(ctx, in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("patient.id", p.ID.String()))

	if _, err := s.types.FindByID(ctx, in.DecisionTypeID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.WithFields(dErrors.CodeValidation, "decision is invalid",
				[]dErrors.FieldError{{Field: "decisionTypeId", Message: "unknown decision type"}})
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not resolve decision type")
	}

	now := requestcontext.Now(ctx)
	d := &Decision{
		ID:                            id.NewDecisionID(),
		PatientID:                     p.ID,
		DecisionTypeID:                in.DecisionTypeID,
		Choice:                        in.Choice,
		ResponsiblePersonGivenName:    in.ResponsiblePersonGivenName,
		ResponsiblePersonSurname:      in.ResponsiblePersonSurname,
		ResponsiblePersonRelationship: in.ResponsiblePersonRelationship,
		CreatedBy:                     user.ID,
		CreatedDate:                   now,
		UpdatedBy:                     user.ID,
		UpdatedDate:                   now,
	}
	if err := d.ValidateOnAdd(user.ID, now, s.cfg.RecencyWindow); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.decisions.Insert(ctx, d); err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "decision already exists")
		case errors.Is(err, sentinel.ErrInvalidReference):
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "decision references an unknown patient or decision type")
		case errors.Is(err, sentinel.ErrLocked):
			return nil, dErrors.Wrap(err, dErrors.CodeLocked, "decision was updated concurrently, retry")
		default:
			s.logger.ErrorContext(ctx, "decision insert failed",
				"patient_id", p.ID,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not store decision")
		}
	}

	s.metrics.DecisionsRecorded.WithLabelValues(string(d.Choice)).Inc()
	_ = s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionDecisionRecorded,
		PatientID: p.ID,
		ActorID:   user.ID.String(),
		Detail:    fmt.Sprintf("decision %s choice %s", d.ID, d.Choice),
	})
	return d, nil
}

// ModifyInput updates an existing decision through the same validated path.
type ModifyInput struct {
	Choice Choice

	ResponsiblePersonGivenName    string
	ResponsiblePersonSurname      string
	ResponsiblePersonRelationship string
}

// ModifyDecision re-runs field validation against the stored decision so the
// creation stamps stay immutable and updatedDate moves strictly forward.
func (s *Service) ModifyDecision(ctx context.Context, decisionID id.DecisionID, in ModifyInput) (*Decision, error) {
	ctx, span := s.tracer.Start(ctx, "decision.Modify")
	defer span.End()

	user, err := s.security.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	prev, err := s.Get(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	d := *prev
	d.Choice = in.Choice
	d.ResponsiblePersonGivenName = in.ResponsiblePersonGivenName
	d.ResponsiblePersonSurname = in.ResponsiblePersonSurname
	d.ResponsiblePersonRelationship = in.ResponsiblePersonRelationship
	d.UpdatedBy = user.ID
	d.UpdatedDate = now

	if err := d.ValidateOnModify(prev, user.ID, now, s.cfg.RecencyWindow); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.decisions.Update(ctx, &d); err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, sentinel.ErrLocked):
			return nil, dErrors.Wrap(err, dErrors.CodeLocked, "decision was updated concurrently, retry")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "decision not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not store decision")
		}
	}

	_ = s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionDecisionModified,
		PatientID: d.PatientID,
		ActorID:   user.ID.String(),
		Detail:    fmt.Sprintf("decision %s choice %s", d.ID, d.Choice),
	})
	return &d, nil
}

func (s *Service) Get(ctx context.Context, decisionID id.DecisionID) (*Decision, error) {
	d, err := s.decisions.FindByID(ctx, decisionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "decision not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not load decision")
	}
	return d, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID id.PatientID) ([]Decision, error) {
	out, err := s.decisions.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not list decisions")
	}
	return out, nil
}

// checkCaptcha verifies the token when one was supplied. Requests without a
// token pass through; the transport decides when a CAPTCHA is required.
func (s *Service) checkCaptcha(ctx context.Context, token string) error {
	if token == "" || s.captcha == nil {
		return nil
	}
	ok, err := s.captcha.Verify(ctx, token, requestcontext.ClientIP(ctx))
	if err != nil {
		s.logger.ErrorContext(ctx, "captcha verification failed", "error", err)
		return dErrors.Wrap(err, dErrors.CodeDependency, "captcha verification unavailable")
	}
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "captcha verification failed")
	}
	return nil
}

// proveIdentity establishes that the caller controls the patient record,
// either by matching the outstanding verification code or by presenting an
// NHS login token whose NHS number matches the target record.
func (s *Service) proveIdentity(ctx context.Context, in RecordInput) (*patient.Patient, error) {
	switch {
	case in.VerificationCode != "":
		return s.verifier.SubmitCode(ctx, in.NHSNumber, in.VerificationCode)

	case in.NHSLoginToken != "":
		if s.identity == nil || !s.identity.Enabled() {
			return nil, dErrors.New(dErrors.CodeValidation, "nhs login is not available")
		}
		info, err := s.identity.UserInfo(ctx, in.NHSLoginToken)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "nhs login token rejected")
		}
		if info.NHSNumber != in.NHSNumber {
			return nil, dErrors.New(dErrors.CodeForbidden, "nhs login identity does not match the patient")
		}
		p, err := s.patients.FindByNHSNumber(ctx, in.NHSNumber)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no patient record for nhs number")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeDependency, "patient store unavailable")
		}
		return p, nil

	default:
		return nil, dErrors.WithFields(dErrors.CodeValidation, "decision is invalid",
			[]dErrors.FieldError{{Field: "verificationCode", Message: "a verification code or nhs login token is required"}})
	}
}
