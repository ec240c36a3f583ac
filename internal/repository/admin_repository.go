package repository

import (
	"context"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminRepository handles admin data access.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// GetByID retrieves an admin by ID.
func (r *AdminRepository) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	a := &model.Admin{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, role, created_at
		 FROM admins WHERE id = $1`, id,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByUsername retrieves an admin by their unique username.
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*model.Admin, error) {
	a := &model.Admin{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, role, created_at
		 FROM admins WHERE username = $1`, username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new admin.
func (r *AdminRepository) Create(ctx context.Context, a *model.Admin) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO admins (username, password_hash, role)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		a.Username, a.PasswordHash, a.Role,
	).Scan(&a.ID, &a.CreatedAt)
}

// UpdatePassword replaces the password hash of an existing admin.
func (r *AdminRepository) UpdatePassword(ctx context.Context, username, hash string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE admins SET password_hash = $2 WHERE username = $1`, username, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
