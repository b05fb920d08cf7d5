package handlers

import (
	"context"
	"strconv"

	apperr "eventcart/internal/errors"
	"eventcart/internal/external"
	"eventcart/internal/middleware"
	"eventcart/internal/models"
	"eventcart/internal/service"

	"github.com/gin-gonic/gin"
)

// PaymentWebhook is the gateway side used to authenticate and resolve
// payment notifications.
type PaymentWebhook interface {
	VerifyWebhookSignature(body []byte, signature string) bool
	GetPayment(ctx context.Context, paymentID string) (*external.PaymentDetails, error)
}

type Handlers struct {
	services *service.Services
	payments PaymentWebhook
}

func NewHandlers(services *service.Services, payments PaymentWebhook) *Handlers {
	return &Handlers{
		services: services,
		payments: payments,
	}
}

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, models.APIResponse{
		Status:  models.StatusSuccess,
		Message: message,
		Data:    data,
	})
}

func fail(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// bindJSON binds the body and answers 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, apperr.Wrap(apperr.ValidationFailed, "invalid request body: "+err.Error(), err))
		return false
	}
	return true
}

// queryInt reads a non-negative integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		fail(c, apperr.New(apperr.ValidationFailed, name+" must be a non-negative integer"))
		return 0, false
	}
	return n, true
}
