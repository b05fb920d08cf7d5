package notify

import (
	"context"
	"fmt"
	"time"

	"eventcart/internal/models"
)

// Publisher is the part of the NATS client the queue needs.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// Queue hands emails to the consumers process.
type Queue struct {
	publisher Publisher
}

func NewQueue(publisher Publisher) *Queue {
	return &Queue{publisher: publisher}
}

func (q *Queue) Send(_ context.Context, msg models.EmailMessage) error {
	if msg.Queued.IsZero() {
		msg.Queued = time.Now().UTC()
	}
	if err := q.publisher.Publish(models.SubjectEmailRequested, msg); err != nil {
		return fmt.Errorf("failed to queue email: %w", err)
	}
	return nil
}

// VerificationEmail builds the message carrying an account verification code.
func VerificationEmail(to, name, code string, ttl time.Duration) models.EmailMessage {
	return models.EmailMessage{
		To:      to,
		Subject: "Verify your account",
		Body: fmt.Sprintf("Hello %s,\n\nYour verification code is %s. It expires in %d minutes.\n",
			name, code, int(ttl.Minutes())),
	}
}

// RecoveryEmail builds the password recovery message.
func RecoveryEmail(to, code string, ttl time.Duration) models.EmailMessage {
	return models.EmailMessage{
		To:      to,
		Subject: "Password recovery",
		Body: fmt.Sprintf("Your password recovery code is %s. It expires in %d minutes.\n"+
			"If you did not request it, ignore this message.\n", code, int(ttl.Minutes())),
	}
}

// PurchaseEmail builds the receipt sent after a payment is approved.
func PurchaseEmail(to, name string, p models.PurchaseCompletedEvent) models.EmailMessage {
	body := fmt.Sprintf("Hello %s,\n\nYour purchase %s is confirmed.\nTotal: %s\n",
		name, p.PurchaseID, p.TotalPriceWithDiscount.StringFixed(2))
	if p.CouponName != "" {
		body += fmt.Sprintf("Coupon %s applied, price before discount %s.\n",
			p.CouponName, p.TotalPrice.StringFixed(2))
	}
	return models.EmailMessage{
		To:      to,
		Subject: "Your tickets are confirmed",
		Body:    body,
	}
}
