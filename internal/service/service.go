package service

import (
	"context"
	"errors"
	"time"

	"eventcart/internal/auth"
	apperr "eventcart/internal/errors"
	"eventcart/internal/logger"
	"eventcart/internal/models"
	"eventcart/internal/repository"
)

// Publisher sends domain events to the message broker.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// Notifier delivers account emails.
type Notifier interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

// PaymentGateway creates the gateway side of a checkout.
type PaymentGateway interface {
	CreatePreference(ctx context.Context, snapshot models.CheckoutSnapshot) (*models.Preference, error)
}

// EventIndex is the full-text index of events.
type EventIndex interface {
	IndexEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id string) error
	Search(ctx context.Context, filter models.EventFilter) ([]string, int64, error)
}

// EventCache keeps rendered search pages for a short time.
type EventCache interface {
	GetPage(ctx context.Context, filter models.EventFilter) (*models.Page[models.Event], bool)
	SetPage(ctx context.Context, filter models.EventFilter, page *models.Page[models.Event])
	Invalidate(ctx context.Context)
}

// Deps collects everything the services are built from. Index and Cache
// are optional.
type Deps struct {
	Store     repository.Store
	Publisher Publisher
	Notifier  Notifier
	Gateway   PaymentGateway
	Tokens    *auth.TokenManager
	Index     EventIndex
	Cache     EventCache
	Now       func() time.Time

	GatewayTimeout time.Duration
	CheckoutExpiry time.Duration
}

type Services struct {
	Carts    *CartService
	Events   *EventService
	Coupons  *CouponService
	Accounts *AccountService
}

func NewServices(d Deps) *Services {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.GatewayTimeout == 0 {
		d.GatewayTimeout = 10 * time.Second
	}
	if d.CheckoutExpiry == 0 {
		d.CheckoutExpiry = 15 * time.Minute
	}
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}

	return &Services{
		Carts:    NewCartService(d),
		Events:   NewEventService(d),
		Coupons:  NewCouponService(d),
		Accounts: NewAccountService(d),
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) error { return nil }

// publish logs instead of failing: events are sent after commit.
func publish(ctx context.Context, p Publisher, subject string, data interface{}) {
	if err := p.Publish(subject, data); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event", "subject", subject, "error", err)
	}
}

// storageError keeps domain errors and hides everything else behind INTERNAL.
func storageError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.Internal, msg, err)
}
