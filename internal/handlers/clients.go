package handlers

import (
	"net/http"

	"eventcart/internal/models"

	"github.com/gin-gonic/gin"
)

// GetClient - GET /clients/:clientId
func (h *Handlers) GetClient(c *gin.Context) {
	client, err := h.services.Accounts.GetClient(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Client retrieved", client)
}

// UpdateClient - PUT /clients/:clientId
func (h *Handlers) UpdateClient(c *gin.Context) {
	var req models.UpdateClientRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.services.Accounts.UpdateClient(c.Request.Context(), c.Param("clientId"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Client updated", resp)
}

// DeactivateClient - DELETE /clients/:clientId
func (h *Handlers) DeactivateClient(c *gin.Context) {
	if err := h.services.Accounts.DeactivateClient(c.Request.Context(), c.Param("clientId")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Client deactivated", nil)
}

// ListPurchases - GET /clients/:clientId/purchases
func (h *Handlers) ListPurchases(c *gin.Context) {
	page, valid := queryInt(c, "page", 0)
	if !valid {
		return
	}
	size, valid := queryInt(c, "size", 0)
	if !valid {
		return
	}

	result, err := h.services.Accounts.PurchaseHistory(c.Request.Context(), c.Param("clientId"), page, size)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Purchases retrieved", result)
}
