package repository

import (
	"context"
	"database/sql"
	"strings"

	"eventcart/internal/database"
	"eventcart/internal/models"
)

type AdminRepository struct {
	db Querier
}

func NewAdminRepository(db Querier) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) getOne(ctx context.Context, where string, arg any) (*models.Admin, error) {
	admin := &models.Admin{}
	var expiresAt sql.NullTime
	query := `
		SELECT id, username, email, password_hash, verification_code, verification_expires_at, role
		FROM admins
		WHERE ` + where

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&admin.ID,
		&admin.Username,
		&admin.Email,
		&admin.PasswordHash,
		&admin.VerificationCode,
		&expiresAt,
		&admin.Role,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		admin.VerificationExpiresAt = &t
	}
	return admin, nil
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	return r.getOne(ctx, `username = $1`, username)
}

func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return r.getOne(ctx, `email = $1`, strings.ToLower(email))
}

func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	admin.Email = strings.ToLower(admin.Email)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admins (id, username, email, password_hash, verification_code, verification_expires_at, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		admin.ID,
		admin.Username,
		admin.Email,
		admin.PasswordHash,
		admin.VerificationCode,
		admin.VerificationExpiresAt,
		admin.Role,
	)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *AdminRepository) Update(ctx context.Context, admin *models.Admin) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE admins
		SET email = $1, password_hash = $2, verification_code = $3, verification_expires_at = $4
		WHERE id = $5`,
		strings.ToLower(admin.Email),
		admin.PasswordHash,
		admin.VerificationCode,
		admin.VerificationExpiresAt,
		admin.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AdminRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM admins WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
