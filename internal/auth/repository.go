package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/pkg/database"
)

const userColumns = `id, email, name, COALESCE(picture_url,''), domain, first_login, last_login, login_count, is_active`

// Repository handles user persistence.
type Repository struct {
	db database.DB
}

// NewRepository creates an auth repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// GetByID returns a user by ID, or nil when none exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// RecordLogin inserts the user on first sign-in, otherwise refreshes the
// profile and bumps the login counter.
func (r *Repository) RecordLogin(ctx context.Context, id *Identity) (*models.User, error) {
	const q = `INSERT INTO users (email, name, picture_url, domain)
		VALUES ($1, $2, NULLIF($3,''), $4)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			picture_url = EXCLUDED.picture_url,
			last_login = NOW(),
			login_count = users.login_count + 1
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, q, id.Email, id.Name, id.Picture, id.Domain))
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PictureURL, &u.Domain,
		&u.FirstLogin, &u.LastLogin, &u.LoginCount, &u.IsActive); err != nil {
		return nil, err
	}
	return &u, nil
}
