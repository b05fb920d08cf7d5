package repository

import (
	"context"
	"database/sql"

	"eventcart/internal/database"
	"eventcart/internal/models"
)

type CouponRepository struct {
	db Querier
}

func NewCouponRepository(db Querier) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) GetByName(ctx context.Context, name string) (*models.Coupon, error) {
	coupon := &models.Coupon{}
	query := `
		SELECT name, discount_percent, expires_at, min_purchase_amount, used, created_at
		FROM coupons
		WHERE name = $1`

	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&coupon.Name,
		&coupon.DiscountPercent,
		&coupon.ExpiresAt,
		&coupon.MinPurchaseAmount,
		&coupon.Used,
		&coupon.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return coupon, err
}

func (r *CouponRepository) List(ctx context.Context) ([]models.Coupon, error) {
	query := `
		SELECT name, discount_percent, expires_at, min_purchase_amount, used, created_at
		FROM coupons
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coupons := []models.Coupon{}
	for rows.Next() {
		var c models.Coupon
		if err := rows.Scan(&c.Name, &c.DiscountPercent, &c.ExpiresAt, &c.MinPurchaseAmount, &c.Used, &c.CreatedAt); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

func (r *CouponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	query := `
		INSERT INTO coupons (name, discount_percent, expires_at, min_purchase_amount, used)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		coupon.Name,
		coupon.DiscountPercent,
		coupon.ExpiresAt,
		coupon.MinPurchaseAmount,
		coupon.Used,
	).Scan(&coupon.CreatedAt)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *CouponRepository) Update(ctx context.Context, coupon *models.Coupon) error {
	query := `
		UPDATE coupons
		SET discount_percent = $1, expires_at = $2, min_purchase_amount = $3, used = $4
		WHERE name = $5`

	res, err := r.db.ExecContext(ctx, query,
		coupon.DiscountPercent,
		coupon.ExpiresAt,
		coupon.MinPurchaseAmount,
		coupon.Used,
		coupon.Name,
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

func (r *CouponRepository) Delete(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE name = $1`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CouponRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *CouponRepository) MarkConsumed(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE coupons SET used = TRUE WHERE name = $1`, name)
	return err
}
