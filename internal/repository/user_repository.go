package repository

import (
	"context"

	"github.com/spec-kit/webdesk/internal/domain"
)

// UserRepository reads the user directory.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type userRepository struct {
	db DBTX
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, name, email, role, active, created_at, updated_at, deleted_at
        FROM users WHERE id=$1 AND deleted_at IS NULL`

	var user domain.User
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	); err != nil {
		return nil, lookupErr(err)
	}
	return &user, nil
}
