package repository

import (
	"context"
	"database/sql"
	"strings"

	"eventcart/internal/database"
	"eventcart/internal/models"
)

type ClientRepository struct {
	db Querier
}

func NewClientRepository(db Querier) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) getOne(ctx context.Context, where string, arg any) (*models.Client, error) {
	client := &models.Client{}
	var expiresAt sql.NullTime
	query := `
		SELECT id, email, name, phone, address, password_hash, active, verification_code,
		       verification_expires_at, role, cart_id, created_at
		FROM clients
		WHERE ` + where

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&client.ID,
		&client.Email,
		&client.Name,
		&client.Phone,
		&client.Address,
		&client.PasswordHash,
		&client.Active,
		&client.VerificationCode,
		&expiresAt,
		&client.Role,
		&client.CartID,
		&client.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		client.VerificationExpiresAt = &t
	}

	client.UsedCoupons, err = r.usedCoupons(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *ClientRepository) usedCoupons(ctx context.Context, clientID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT coupon_name FROM client_used_coupons WHERE client_id = $1 ORDER BY used_at, coupon_name`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *ClientRepository) GetByEmail(ctx context.Context, email string) (*models.Client, error) {
	return r.getOne(ctx, `email = $1`, strings.ToLower(email))
}

func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	client.Email = strings.ToLower(client.Email)
	query := `
		INSERT INTO clients (id, email, name, phone, address, password_hash, active,
		                     verification_code, verification_expires_at, role, cart_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		client.ID,
		client.Email,
		client.Name,
		client.Phone,
		client.Address,
		client.PasswordHash,
		client.Active,
		client.VerificationCode,
		client.VerificationExpiresAt,
		client.Role,
		client.CartID,
	).Scan(&client.CreatedAt)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Update writes the profile columns; used coupons are only ever appended
// through AddUsedCoupon.
func (r *ClientRepository) Update(ctx context.Context, client *models.Client) error {
	client.Email = strings.ToLower(client.Email)
	query := `
		UPDATE clients
		SET email = $1, name = $2, phone = $3, address = $4, password_hash = $5, active = $6,
		    verification_code = $7, verification_expires_at = $8, cart_id = $9
		WHERE id = $10`

	res, err := r.db.ExecContext(ctx, query,
		client.Email,
		client.Name,
		client.Phone,
		client.Address,
		client.PasswordHash,
		client.Active,
		client.VerificationCode,
		client.VerificationExpiresAt,
		client.CartID,
		client.ID,
	)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
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

func (r *ClientRepository) AddUsedCoupon(ctx context.Context, clientID, couponName string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO client_used_coupons (client_id, coupon_name)
		VALUES ($1, $2)
		ON CONFLICT (client_id, coupon_name) DO NOTHING`, clientID, couponName)
	return err
}
