package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventcart/internal/models"
	"eventcart/internal/notify"
	"eventcart/internal/repository"

	"github.com/nats-io/stan.go"
)

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

type Handlers struct {
	store   repository.Store
	mailer  EmailSender
	timeout time.Duration
}

func NewHandlers(store repository.Store, mailer EmailSender, timeout time.Duration) *Handlers {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handlers{
		store:   store,
		mailer:  mailer,
		timeout: timeout,
	}
}

// errPoison marks messages that will never succeed; they are acked and dropped.
type errPoison struct{ err error }

func (e errPoison) Error() string { return e.err.Error() }

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errPoison{err: err}
	}
	return nil
}

// ack wraps a processor into a stan handler. Failed messages are left
// unacked and redelivered after AckWait.
func (h *Handlers) ack(name string, process func(ctx context.Context, data []byte) error) stan.MsgHandler {
	return func(m *stan.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		if err := process(ctx, m.Data); err != nil {
			var poison errPoison
			if !errors.As(err, &poison) {
				slog.Error("Failed to process message, will retry",
					"handler", name, "sequence", m.Sequence, "redelivered", m.Redelivered, "error", err)
				return
			}
			slog.Error("Dropping malformed message", "handler", name, "sequence", m.Sequence, "error", err)
		}

		if err := m.Ack(); err != nil {
			slog.Error("Failed to ack message", "handler", name, "sequence", m.Sequence, "error", err)
		}
	}
}

func (h *Handlers) HandleEmailRequested(m *stan.Msg) {
	h.ack("email", h.processEmail)(m)
}

func (h *Handlers) HandlePurchaseCompleted(m *stan.Msg) {
	h.ack("purchase", h.processPurchase)(m)
}

func (h *Handlers) HandleCheckoutSettled(m *stan.Msg) {
	h.ack("checkout_settled", h.processSettled)(m)
}

func (h *Handlers) HandleCartReset(m *stan.Msg) {
	h.ack("cart_reset", h.processReset)(m)
}

func (h *Handlers) processEmail(ctx context.Context, data []byte) error {
	var msg models.EmailMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if msg.To == "" {
		return errPoison{err: fmt.Errorf("email without recipient")}
	}
	return h.mailer.Send(ctx, msg)
}

// processPurchase sends the receipt to the buyer.
func (h *Handlers) processPurchase(ctx context.Context, data []byte) error {
	var event models.PurchaseCompletedEvent
	if err := decode(data, &event); err != nil {
		return err
	}

	slog.Info("Processing purchase completed event",
		"purchase_id", event.PurchaseID, "client_id", event.ClientID,
		"total", event.TotalPriceWithDiscount.StringFixed(2))

	client, err := h.store.Repos().Clients.GetByID(ctx, event.ClientID)
	if err != nil {
		return fmt.Errorf("failed to get client: %w", err)
	}
	if client == nil {
		slog.Warn("Purchase for unknown client", "client_id", event.ClientID)
		return nil
	}

	return h.mailer.Send(ctx, notify.PurchaseEmail(client.Email, client.Name, event))
}

func (h *Handlers) processSettled(_ context.Context, data []byte) error {
	var event models.CheckoutSettledEvent
	if err := decode(data, &event); err != nil {
		return err
	}
	slog.Info("Checkout settled",
		"cart_id", event.CartID, "checkout_attempt_id", event.CheckoutAttemptID, "outcome", event.Outcome)
	return nil
}

func (h *Handlers) processReset(_ context.Context, data []byte) error {
	var event models.CartResetEvent
	if err := decode(data, &event); err != nil {
		return err
	}
	slog.Info("Cart reset by admin",
		"client_id", event.ClientID, "old_cart_id", event.OldCartID, "new_cart_id", event.NewCartID)
	return nil
}
