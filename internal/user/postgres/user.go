package postgres

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/loan-intake/internal/user"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(userID int64) (*user.User, error) {
	var u user.User
	query := `SELECT id, email, name, password_hash, country, phone, is_active, created_at, updated_at
	          FROM users WHERE id = $1`
	if err := r.db.Get(&u, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetPermissions(userID int64) ([]string, error) {
	var permissions []string
	query := `SELECT p.name
	          FROM permissions p
	          JOIN user_permissions up ON up.permission_id = p.id
	          WHERE up.user_id = $1
	          ORDER BY p.name`
	if err := r.db.Select(&permissions, query, userID); err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *UserRepository) HasPermission(userID int64, permission string) (bool, error) {
	var exists bool
	query := `
SELECT EXISTS(
  SELECT 1 FROM user_permissions up
  JOIN permissions p ON up.permission_id = p.id
  WHERE up.user_id = $1 AND p.name = $2
)
`
	if err := r.db.Get(&exists, query, userID, permission); err != nil {
		return false, err
	}
	return exists, nil
}
