package service

import (
	"context"

	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/repository"
	apperrors "github.com/spec-kit/webdesk/pkg/util"
)

// RoleValidator confirms that users named in ticket slots hold the role the
// slot requires.
type RoleValidator struct {
	store repository.Store
}

// NewRoleValidator creates the validator.
func NewRoleValidator(store repository.Store) *RoleValidator {
	return &RoleValidator{store: store}
}

func (v *RoleValidator) withStore(tx repository.Store) *RoleValidator {
	return &RoleValidator{store: tx}
}

// EnsureRole fails with NotFound when the user does not exist, is deleted or
// is inactive, and with RoleMismatch when the user holds another role.
func (v *RoleValidator) EnsureRole(ctx context.Context, userID string, expected domain.UserRole) error {
	user, err := v.store.Users().GetByID(ctx, userID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return err
	}
	if !user.Live() {
		return apperrors.NewNotFound("user", map[string]any{"user_id": userID})
	}
	if user.Role != expected {
		return apperrors.NewRoleMismatch("user does not hold the required role", map[string]any{
			"user_id":       userID,
			"expected_role": expected,
			"actual_role":   user.Role,
		})
	}
	return nil
}
