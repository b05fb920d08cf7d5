package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"eventcart/internal/models"
)

var (
	ErrInsufficientCapacity = errors.New("insufficient locality capacity")
	ErrCapacityOverflow     = errors.New("locality capacity would exceed total")
	ErrLocalityNotFound     = errors.New("locality not found")
	ErrDuplicate            = errors.New("duplicate key")
	ErrNotFound             = errors.New("not found")
	// ErrConflict: строка изменилась между чтением и условной записью
	ErrConflict = errors.New("conditional update conflict")
)

// EventStore persists events with their localities. Get methods return
// (nil, nil) when the event does not exist.
type EventStore interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	GetMany(ctx context.Context, ids []string) ([]models.Event, error)
	Search(ctx context.Context, filter models.EventFilter) ([]models.Event, int64, error)
	ListAll(ctx context.Context) ([]models.Event, error)
	Save(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) (bool, error)
	// AdjustLocalityCapacity atomically adds delta to the remaining capacity
	// and keeps the event total in sync. It never lets the capacity leave
	// [0, total].
	AdjustLocalityCapacity(ctx context.Context, eventID, localityName string, delta int) error
}

type CartStore interface {
	GetByID(ctx context.Context, id string) (*models.Cart, error)
	GetActiveByClient(ctx context.Context, clientID string) (*models.Cart, error)
	GetByCheckoutAttempt(ctx context.Context, attemptID string) (*models.Cart, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	// Update writes the cart only if its stored status still equals expected.
	Update(ctx context.Context, cart *models.Cart, expected models.CartStatus) error
}

type CouponStore interface {
	GetByName(ctx context.Context, name string) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Create(ctx context.Context, coupon *models.Coupon) error
	Update(ctx context.Context, coupon *models.Coupon) error
	Delete(ctx context.Context, name string) (bool, error)
	DeleteAll(ctx context.Context) (int64, error)
	MarkConsumed(ctx context.Context, name string) error
}

type ClientStore interface {
	GetByID(ctx context.Context, id string) (*models.Client, error)
	GetByEmail(ctx context.Context, email string) (*models.Client, error)
	Create(ctx context.Context, client *models.Client) error
	Update(ctx context.Context, client *models.Client) error
	// AddUsedCoupon is a set insert; adding the same name twice is a no-op.
	AddUsedCoupon(ctx context.Context, clientID, couponName string) error
}

type AdminStore interface {
	GetByID(ctx context.Context, id string) (*models.Admin, error)
	GetByUsername(ctx context.Context, username string) (*models.Admin, error)
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	Create(ctx context.Context, admin *models.Admin) error
	Update(ctx context.Context, admin *models.Admin) error
	Delete(ctx context.Context, id string) (bool, error)
}

type PurchaseStore interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	GetByCheckoutAttempt(ctx context.Context, attemptID string) (*models.Purchase, error)
	ListByClient(ctx context.Context, clientID string, page, size int) ([]models.Purchase, int64, error)
}

type Repositories struct {
	Events    EventStore
	Carts     CartStore
	Coupons   CouponStore
	Clients   ClientStore
	Admins    AdminStore
	Purchases PurchaseStore
}

// Store gives access to the repositories, either directly or inside a
// serializable transaction.
type Store interface {
	Repos() *Repositories
	// WithinTx runs fn in one transaction. Nothing fn wrote is visible if it
	// returns an error.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
	Close() error
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
