package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"eventcart/internal/database"
	"eventcart/internal/models"
)

type CartRepository struct {
	db Querier
}

func NewCartRepository(db Querier) *CartRepository {
	return &CartRepository{db: db}
}

const cartColumns = `id, client_id, orders, total_price, coupon_claimed, applied_coupon_name,
		       applied_discount_factor, total_price_with_discount, status, checkout_seq,
		       checkout_attempt_id, checkout_started_at, preference_id, created_at, updated_at`

func scanCart(row interface{ Scan(...any) error }) (*models.Cart, error) {
	cart := &models.Cart{}
	var orders []byte
	var startedAt sql.NullTime

	err := row.Scan(
		&cart.ID,
		&cart.ClientID,
		&orders,
		&cart.TotalPrice,
		&cart.CouponClaimed,
		&cart.AppliedCouponName,
		&cart.AppliedDiscountFactor,
		&cart.TotalPriceWithDiscount,
		&cart.Status,
		&cart.CheckoutSeq,
		&cart.CheckoutAttemptID,
		&startedAt,
		&cart.PreferenceID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(orders, &cart.Orders); err != nil {
		return nil, fmt.Errorf("failed to decode cart orders: %w", err)
	}
	if cart.Orders == nil {
		cart.Orders = []models.LocalityOrder{}
	}
	if startedAt.Valid {
		t := startedAt.Time
		cart.CheckoutStartedAt = &t
	}
	return cart, nil
}

func (r *CartRepository) getOne(ctx context.Context, where string, arg any) (*models.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE ` + where
	cart, err := scanCart(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cart, err
}

func (r *CartRepository) GetByID(ctx context.Context, id string) (*models.Cart, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *CartRepository) GetActiveByClient(ctx context.Context, clientID string) (*models.Cart, error) {
	return r.getOne(ctx, `client_id = $1 AND status IN ('OPEN', 'PENDING_PAYMENT')`, clientID)
}

// GetByCheckoutAttempt finds the cart that issued the attempt, in any state.
func (r *CartRepository) GetByCheckoutAttempt(ctx context.Context, attemptID string) (*models.Cart, error) {
	if attemptID == "" {
		return nil, nil
	}
	return r.getOne(ctx, `checkout_attempt_id = $1`, attemptID)
}

func (r *CartRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Cart, error) {
	query := `
		SELECT ` + cartColumns + `
		FROM carts
		WHERE status = 'PENDING_PAYMENT' AND checkout_started_at < $1
		ORDER BY checkout_started_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	carts := []models.Cart{}
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, err
		}
		carts = append(carts, *cart)
	}
	return carts, rows.Err()
}

func (r *CartRepository) Create(ctx context.Context, cart *models.Cart) error {
	orders, err := json.Marshal(cart.Orders)
	if err != nil {
		return fmt.Errorf("failed to encode cart orders: %w", err)
	}

	query := `
		INSERT INTO carts (id, client_id, orders, total_price, coupon_claimed, applied_coupon_name,
		                   applied_discount_factor, total_price_with_discount, status, checkout_seq,
		                   checkout_attempt_id, checkout_started_at, preference_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.db.ExecContext(ctx, query,
		cart.ID,
		cart.ClientID,
		orders,
		cart.TotalPrice,
		cart.CouponClaimed,
		cart.AppliedCouponName,
		cart.AppliedDiscountFactor,
		cart.TotalPriceWithDiscount,
		cart.Status,
		cart.CheckoutSeq,
		cart.CheckoutAttemptID,
		cart.CheckoutStartedAt,
		cart.PreferenceID,
		cart.CreatedAt,
		cart.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *CartRepository) Update(ctx context.Context, cart *models.Cart, expected models.CartStatus) error {
	orders, err := json.Marshal(cart.Orders)
	if err != nil {
		return fmt.Errorf("failed to encode cart orders: %w", err)
	}

	cart.UpdatedAt = time.Now()
	query := `
		UPDATE carts
		SET orders = $1, total_price = $2, coupon_claimed = $3, applied_coupon_name = $4,
		    applied_discount_factor = $5, total_price_with_discount = $6, status = $7,
		    checkout_seq = $8, checkout_attempt_id = $9, checkout_started_at = $10,
		    preference_id = $11, updated_at = $12
		WHERE id = $13 AND status = $14`

	res, err := r.db.ExecContext(ctx, query,
		orders,
		cart.TotalPrice,
		cart.CouponClaimed,
		cart.AppliedCouponName,
		cart.AppliedDiscountFactor,
		cart.TotalPriceWithDiscount,
		cart.Status,
		cart.CheckoutSeq,
		cart.CheckoutAttemptID,
		cart.CheckoutStartedAt,
		cart.PreferenceID,
		cart.UpdatedAt,
		cart.ID,
		expected,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
