package decisiontype

import (
	"context"
	"errors"
	"log/slog"

	"idecide/internal/security"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
)

// Service wraps the store with validation and audit stamping.
type Service struct {
	store    Store
	security security.Provider
	logger   *slog.Logger
}

func NewService(store Store, sec security.Provider, logger *slog.Logger) *Service {
	return &Service{store: store, security: sec, logger: logger}
}

// Create stamps and persists a new decision type.
func (s *Service) Create(ctx context.Context, name, description string) (*DecisionType, error) {
	user, err := s.security.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	d := &DecisionType{
		ID:          id.NewDecisionTypeID(),
		Name:        name,
		Description: description,
		CreatedBy:   user.ID,
		CreatedDate: now,
		UpdatedBy:   user.ID,
		UpdatedDate: now,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "decision type name already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not store decision type")
	}
	return d, nil
}

// Update renames or re-describes an existing type.
func (s *Service) Update(ctx context.Context, typeID id.DecisionTypeID, name, description string) (*DecisionType, error) {
	user, err := s.security.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.Get(ctx, typeID)
	if err != nil {
		return nil, err
	}
	d.Name = name
	d.Description = description
	d.UpdatedBy = user.ID
	d.UpdatedDate = requestcontext.Now(ctx)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, d); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrLocked):
			return nil, dErrors.Wrap(err, dErrors.CodeLocked, "decision type was updated concurrently, retry")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "decision type name already in use")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "decision type not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not store decision type")
		}
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, typeID id.DecisionTypeID) (*DecisionType, error) {
	d, err := s.store.FindByID(ctx, typeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "decision type not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not load decision type")
	}
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]DecisionType, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not list decision types")
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, typeID id.DecisionTypeID) error {
	if err := s.store.Delete(ctx, typeID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "decision type not found")
		}
		return dErrors.Wrap(err, dErrors.CodeDependency, "could not delete decision type")
	}
	return nil
}
