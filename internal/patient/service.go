package patient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"idecide/internal/security"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
	"idecide/pkg/validate"
)

// Service wraps the patient store for the lookup and admin surfaces. The
// verification and decision workflows talk to the store directly; this
// service only covers search, registration and cleanup.
type Service struct {
	store    Store
	security security.Provider
	logger   *slog.Logger
}

func NewService(store Store, sec security.Provider, logger *slog.Logger) *Service {
	return &Service{store: store, security: sec, logger: logger}
}

// Search resolves a patient by NHS number and returns a redacted copy; the
// citizen confirms "this is me" against masked contact details before a code
// is ever sent.
func (s *Service) Search(ctx context.Context, nhsNumber string) (*Patient, error) {
	if err := validate.Evaluate("search is invalid",
		validate.NotEmpty("nhsNumber", nhsNumber),
	); err != nil {
		return nil, err
	}
	p, err := s.store.FindByNHSNumber(ctx, nhsNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no patient record for nhs number")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "patient store unavailable")
	}
	redacted := p.Redact()
	return &redacted, nil
}

// RegisterInput is a staff-entered patient record.
type RegisterInput struct {
	NHSNumber   string
	Title       string
	GivenName   string
	Surname     string
	Gender      string
	DateOfBirth time.Time
	Email       string
	Phone       string
	Address     string
	PostCode    string

	NotificationPreference NotificationPreference
}

// Register creates a patient record through the admin surface.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Patient, error) {
	user, err := s.security.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := validate.Evaluate("patient is invalid",
		validate.NotEmpty("nhsNumber", in.NHSNumber),
		validate.NotEmpty("givenName", in.GivenName),
		validate.NotEmpty("surname", in.Surname),
		validate.Fail("notificationPreference", !in.NotificationPreference.Valid(),
			"must be email, sms, letter or empty"),
	); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	p := &Patient{
		ID:                     id.NewPatientID(),
		NHSNumber:              in.NHSNumber,
		Title:                  in.Title,
		GivenName:              in.GivenName,
		Surname:                in.Surname,
		Gender:                 in.Gender,
		DateOfBirth:            in.DateOfBirth,
		Email:                  in.Email,
		Phone:                  in.Phone,
		Address:                in.Address,
		PostCode:               in.PostCode,
		NotificationPreference: in.NotificationPreference,
		CreatedBy:              user.ID,
		CreatedDate:            now,
		UpdatedBy:              user.ID,
		UpdatedDate:            now,
	}
	if err := s.store.Insert(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "nhs number already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not store patient")
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, patientID id.PatientID) (*Patient, error) {
	p, err := s.store.FindByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "patient not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "patient store unavailable")
	}
	return p, nil
}

// Delete removes a patient record. Admin cleanup only; the consent flow
// never deletes patients.
func (s *Service) Delete(ctx context.Context, patientID id.PatientID) error {
	if _, err := s.security.CurrentUser(ctx); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, patientID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "patient not found")
		}
		return dErrors.Wrap(err, dErrors.CodeDependency, "could not delete patient")
	}
	return nil
}
