package consumer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"idecide/internal/security"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
)

const secretBytes = 32

// Service registers consumers and checks their API credentials.
type Service struct {
	store    Store
	security security.Provider
	logger   *slog.Logger
}

func NewService(store Store, sec security.Provider, logger *slog.Logger) *Service {
	return &Service{store: store, security: sec, logger: logger}
}

// Register creates a consumer and returns the plaintext API secret exactly
// once. Only the bcrypt hash is stored; the secret cannot be recovered later,
// only rotated.
func (s *Service) Register(ctx context.Context, name, contactURL string) (*Consumer, string, error) {
	user, err := s.security.CurrentUser(ctx)
	if err != nil {
		return nil, "", err
	}
	secret, hash, err := newSecret()
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate consumer secret")
	}
	now := requestcontext.Now(ctx)
	c := &Consumer{
		ID:          id.NewConsumerID(),
		Name:        name,
		ContactURL:  contactURL,
		SecretHash:  hash,
		Active:      true,
		CreatedBy:   user.ID,
		CreatedDate: now,
		UpdatedBy:   user.ID,
		UpdatedDate: now,
	}
	if err := c.Validate(); err != nil {
		return nil, "", err
	}
	if err := s.store.Insert(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, "", dErrors.Wrap(err, dErrors.CodeConflict, "consumer name already registered")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeDependency, "could not store consumer")
	}
	return c, secret, nil
}

// RotateSecret replaces the consumer's API secret and returns the new
// plaintext once.
func (s *Service) RotateSecret(ctx context.Context, consumerID id.ConsumerID) (string, error) {
	user, err := s.security.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	c, err := s.Get(ctx, consumerID)
	if err != nil {
		return "", err
	}
	secret, hash, err := newSecret()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate consumer secret")
	}
	c.SecretHash = hash
	c.UpdatedBy = user.ID
	c.UpdatedDate = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrLocked) {
			return "", dErrors.Wrap(err, dErrors.CodeLocked, "consumer was updated concurrently, retry")
		}
		return "", dErrors.Wrap(err, dErrors.CodeDependency, "could not store consumer")
	}
	return secret, nil
}

// Authenticate verifies a consumer's API secret. Inactive consumers and bad
// secrets both fail with an unauthorized error so callers cannot distinguish
// them.
func (s *Service) Authenticate(ctx context.Context, consumerID id.ConsumerID, secret string) (*Consumer, error) {
	c, err := s.store.FindByID(ctx, consumerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid consumer credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not load consumer")
	}
	if !c.Active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid consumer credentials")
	}
	if err := bcrypt.CompareHashAndPassword(c.SecretHash, []byte(secret)); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid consumer credentials")
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, consumerID id.ConsumerID) (*Consumer, error) {
	c, err := s.store.FindByID(ctx, consumerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "consumer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not load consumer")
	}
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]Consumer, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not list consumers")
	}
	return out, nil
}

func newSecret() (string, []byte, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	// bcrypt caps input at 72 bytes; a 43-character secret is well inside.
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash secret: %w", err)
	}
	return secret, hash, nil
}
