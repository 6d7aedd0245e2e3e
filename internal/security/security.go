// Package security resolves the current caller and fronts the external
// identity collaborators: CAPTCHA validation and NHS login. The core services
// depend only on the interfaces here; everything behind them is out of
// process.
package security

import (
	"context"

	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/requestcontext"
)

// User is the resolved current caller.
type User struct {
	ID    id.UserID
	Roles []string
}

// Provider resolves the authenticated caller for audit stamping and
// authorization gates.
type Provider interface {
	CurrentUser(ctx context.Context) (User, error)
}

// ContextProvider reads the caller that auth middleware placed in the request
// context. Fails when no authenticated user is present, so orchestration can
// gate before any patient lookup.
type ContextProvider struct{}

func NewContextProvider() *ContextProvider {
	return &ContextProvider{}
}

func (p *ContextProvider) CurrentUser(ctx context.Context) (User, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return User{}, dErrors.New(dErrors.CodeUnauthorized, "no authenticated user")
	}
	return User{ID: userID, Roles: requestcontext.Roles(ctx)}, nil
}
