package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"eventcart/internal/database"
	"eventcart/internal/models"
)

type PurchaseRepository struct {
	db Querier
}

func NewPurchaseRepository(db Querier) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

const purchaseColumns = `id, client_id, cart_id, checkout_attempt_id, preference_id, orders,
		       total_price, total_price_with_discount, coupon_name, purchased_at`

func scanPurchase(row interface{ Scan(...any) error }) (*models.Purchase, error) {
	p := &models.Purchase{}
	var orders []byte
	err := row.Scan(
		&p.ID,
		&p.ClientID,
		&p.CartID,
		&p.CheckoutAttemptID,
		&p.PreferenceID,
		&orders,
		&p.TotalPrice,
		&p.TotalPriceWithDiscount,
		&p.CouponName,
		&p.PurchasedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(orders, &p.Orders); err != nil {
		return nil, fmt.Errorf("failed to decode purchase orders: %w", err)
	}
	return p, nil
}

// Create inserts the purchase; a second purchase for the same checkout
// attempt fails with ErrDuplicate.
func (r *PurchaseRepository) Create(ctx context.Context, p *models.Purchase) error {
	orders, err := json.Marshal(p.Orders)
	if err != nil {
		return fmt.Errorf("failed to encode purchase orders: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO purchases (id, client_id, cart_id, checkout_attempt_id, preference_id, orders,
		                       total_price, total_price_with_discount, coupon_name, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID,
		p.ClientID,
		p.CartID,
		p.CheckoutAttemptID,
		p.PreferenceID,
		orders,
		p.TotalPrice,
		p.TotalPriceWithDiscount,
		p.CouponName,
		p.PurchasedAt,
	)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PurchaseRepository) GetByCheckoutAttempt(ctx context.Context, attemptID string) (*models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE checkout_attempt_id = $1`
	p, err := scanPurchase(r.db.QueryRowContext(ctx, query, attemptID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PurchaseRepository) ListByClient(ctx context.Context, clientID string, page, size int) ([]models.Purchase, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchases WHERE client_id = $1`, clientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE client_id = $1
		ORDER BY purchased_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, clientID, size, page*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	purchases := []models.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, *p)
	}
	return purchases, total, rows.Err()
}
