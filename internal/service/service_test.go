package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"eventcart/internal/auth"
	apperr "eventcart/internal/errors"
	"eventcart/internal/models"
	"eventcart/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.EmailMessage
}

func (n *recordingNotifier) Send(_ context.Context, msg models.EmailMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type stubGateway struct {
	mu    sync.Mutex
	err   error
	calls []models.CheckoutSnapshot
}

func (g *stubGateway) CreatePreference(_ context.Context, s models.CheckoutSnapshot) (*models.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.calls = append(g.calls, s)
	return &models.Preference{ID: fmt.Sprintf("pref-%d", len(g.calls))}, nil
}

type fixture struct {
	svc       *Services
	store     *memory.Store
	gateway   *stubGateway
	publisher *recordingPublisher
	notifier  *recordingNotifier
	now       time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.New(),
		gateway:   &stubGateway{},
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
		now:       time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewServices(Deps{
		Store:          f.store,
		Publisher:      f.publisher,
		Notifier:       f.notifier,
		Gateway:        f.gateway,
		Tokens:         auth.NewTokenManager("test", time.Hour).WithClock(f.clock),
		Now:            f.clock,
		CheckoutExpiry: 15 * time.Minute,
	})
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// event creates an event with one locality named GEN.
func (f *fixture) event(t *testing.T, price string, capacity int) *models.Event {
	t.Helper()
	e, err := f.svc.Events.Create(context.Background(), &models.EventRequest{
		Name:      "Show",
		City:      "Rosario",
		EventDate: f.now.Add(10 * 24 * time.Hour),
		Type:      models.EventTypeConcert,
		Localities: []models.LocalityRequest{
			{Name: "GEN", Price: decp(price), TotalCapacity: capacity},
		},
	})
	require.NoError(t, err)
	return e
}

// client registers and verifies a client.
func (f *fixture) client(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.Accounts.RegisterClient(ctx, &models.RegisterClientRequest{
		Email: email, Name: "C", Password: "password123",
	})
	require.NoError(t, err)
	stored, err := f.store.Repos().Clients.GetByID(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.svc.Accounts.VerifyClient(ctx, c.ID, stored.VerificationCode)
	require.NoError(t, err)
	return c.ID
}

func (f *fixture) coupon(t *testing.T, name, percent, min string) {
	t.Helper()
	_, err := f.svc.Coupons.Create(context.Background(), &models.CouponRequest{
		Name:              name,
		DiscountPercent:   decp(percent),
		ExpiresAt:         f.now.Add(24 * time.Hour),
		MinPurchaseAmount: decp(min),
	})
	require.NoError(t, err)
}

func (f *fixture) remaining(t *testing.T, eventID string) int {
	t.Helper()
	e, err := f.svc.Events.Get(context.Background(), eventID)
	require.NoError(t, err)
	return e.Locality("GEN").RemainingCapacity
}

func reserveIn(eventID string, n int, price string) ReserveInput {
	return ReserveInput{EventID: eventID, LocalityName: "GEN", TicketsSelected: n, ExpectedUnitPrice: decp(price)}
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), err.Error())
}

func TestStorageErrorKeepsDomainErrors(t *testing.T) {
	domain := apperr.New(apperr.CouponNotFound, "coupon not found")
	assert.Same(t, domain, storageError(domain, "x"))

	wrapped := storageError(errors.New("connection reset"), "failed to get cart")
	assert.Equal(t, apperr.Internal, apperr.KindOf(wrapped))
	assert.Nil(t, storageError(nil, "x"))
}
