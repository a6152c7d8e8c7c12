package service

import (
	"context"
	"errors"
	"fmt"

	"crm/internal/apperror"
	"crm/internal/approval"
	"crm/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identity is the acting user as seen by the services.
type Identity struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
	// Privileged identities hold the override role.
	Privileged bool
}

// Actor converts the identity for the approval state machine.
func (i Identity) Actor() approval.Actor {
	return approval.Actor{ID: i.UserID, Role: i.Role, Privileged: i.Privileged}
}

// IdentityResolver loads the effective role of a user.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (Identity, error)
}

type identityResolver struct {
	users        repository.UserRepository
	overrideRole string
}

func NewIdentityResolver(users repository.UserRepository, overrideRole string) IdentityResolver {
	return &identityResolver{users: users, overrideRole: overrideRole}
}

// Resolve reads the role from the users table rather than from the token,
// so a role change takes effect on the next request.
func (r *identityResolver) Resolve(ctx context.Context, userID uuid.UUID) (Identity, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, apperror.ErrActorNotFound
		}
		return Identity{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return Identity{}, apperror.ErrActorNotFound.WithMessage("Acting user is inactive")
	}
	if user.OrganizationID == uuid.Nil {
		return Identity{}, apperror.ErrNoOrganization
	}
	return Identity{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
		Privileged:     r.overrideRole != "" && user.Role == r.overrideRole,
	}, nil
}
