package handlers

import (
	"encoding/json"
	"net/http"

	"eventcart/internal/external"
	"eventcart/internal/logger"
	"eventcart/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const SignatureHeader = "X-Signature"

// PaymentWebhook - POST /payments/webhook
// Принимать уведомления от платежного шлюза. Тело подписано HMAC-SHA256.
// Повторные уведомления по той же попытке ничего не меняют.
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	log := logger.WithContext(c.Request.Context())

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	if !h.payments.VerifyWebhookSignature(body, c.GetHeader(SignatureHeader)) {
		log.Warn("Payment notification with invalid signature", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var notification models.PaymentNotificationPayload
	if err := json.Unmarshal(body, &notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := binding.Validator.ValidateStruct(&notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// без orderId или статуса спрашиваем шлюз напрямую
	if notification.OrderID == "" || notification.Status == "" {
		details, err := h.payments.GetPayment(c.Request.Context(), notification.PaymentID)
		if err != nil {
			log.Error("Failed to check payment", "payment_id", notification.PaymentID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment lookup failed"})
			return
		}
		notification.OrderID = details.OrderID
		notification.Status = details.Status
	}

	outcome, final := external.MapStatus(notification.Status)
	if !final {
		log.Info("Intermediate payment status ignored",
			"payment_id", notification.PaymentID, "status", notification.Status)
		c.Status(http.StatusOK)
		return
	}

	applied, err := h.services.Carts.Settle(c.Request.Context(), notification.OrderID, outcome)
	if err != nil {
		log.Error("Failed to settle checkout", "checkout_attempt_id", notification.OrderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to handle notification"})
		return
	}

	log.Info("Payment notification handled",
		"payment_id", notification.PaymentID,
		"checkout_attempt_id", notification.OrderID,
		"outcome", outcome,
		"applied", applied)
	c.Status(http.StatusOK)
}
