package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NATS subjects
const (
	SubjectCartReserved      = "cart.reserved"
	SubjectCartCanceled      = "cart.canceled"
	SubjectCheckoutStarted   = "checkout.started"
	SubjectCheckoutSettled   = "checkout.settled"
	SubjectPurchaseCompleted = "purchase.completed"
	SubjectCartReset         = "cart.reset"
	SubjectEmailRequested    = "notification.email"
)

// CartChangedEvent is published after reserve and cancel
type CartChangedEvent struct {
	ClientID        string    `json:"client_id"`
	CartID          string    `json:"cart_id"`
	EventID         string    `json:"event_id"`
	LocalityName    string    `json:"locality_name"`
	TicketsSelected int       `json:"tickets_selected"`
	Timestamp       time.Time `json:"timestamp"`
}

// CheckoutStartedEvent represents a cart entering PENDING_PAYMENT
type CheckoutStartedEvent struct {
	ClientID          string          `json:"client_id"`
	CartID            string          `json:"cart_id"`
	CheckoutAttemptID string          `json:"checkout_attempt_id"`
	PreferenceID      string          `json:"preference_id"`
	Amount            decimal.Decimal `json:"amount"`
	Timestamp         time.Time       `json:"timestamp"`
}

// CheckoutSettledEvent represents the terminal resolution of a payment attempt
type CheckoutSettledEvent struct {
	ClientID          string    `json:"client_id"`
	CartID            string    `json:"cart_id"`
	CheckoutAttemptID string    `json:"checkout_attempt_id"`
	Outcome           Outcome   `json:"outcome"`
	Timestamp         time.Time `json:"timestamp"`
}

// PurchaseCompletedEvent represents a paid cart
type PurchaseCompletedEvent struct {
	PurchaseID             string          `json:"purchase_id"`
	ClientID               string          `json:"client_id"`
	CouponName             string          `json:"coupon_name,omitempty"`
	TotalPrice             decimal.Decimal `json:"total_price"`
	TotalPriceWithDiscount decimal.Decimal `json:"total_price_with_discount"`
	Timestamp              time.Time       `json:"timestamp"`
}

// CartResetEvent represents an admin reset of a client cart
type CartResetEvent struct {
	ClientID  string    `json:"client_id"`
	OldCartID string    `json:"old_cart_id"`
	NewCartID string    `json:"new_cart_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EmailMessage is queued for delivery by the consumers process
type EmailMessage struct {
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Queued  time.Time `json:"queued"`
}
