package handlers

import (
	"net/http"
	"strings"

	apperr "eventcart/internal/errors"
	"eventcart/internal/models"

	"github.com/gin-gonic/gin"
)

// Auth handlers

// RegisterClient - POST /auth/clients/register
func (h *Handlers) RegisterClient(c *gin.Context) {
	var req models.RegisterClientRequest
	if !bindJSON(c, &req) {
		return
	}

	client, err := h.services.Accounts.RegisterClient(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Client registered, verification code sent", client)
}

// LoginClient - POST /auth/clients/login
func (h *Handlers) LoginClient(c *gin.Context) {
	var req models.ClientLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.services.Accounts.LoginClient(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Logged in", token)
}

// VerifyClient - POST /auth/clients/:clientId/verify
func (h *Handlers) VerifyClient(c *gin.Context) {
	var req models.VerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	client, err := h.services.Accounts.VerifyClient(c.Request.Context(), c.Param("clientId"), req.Code)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Account verified", client)
}

// ResendVerification - POST /auth/clients/:clientId/verification-code
func (h *Handlers) ResendVerification(c *gin.Context) {
	if err := h.services.Accounts.ResendVerification(c.Request.Context(), c.Param("clientId")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Verification code sent", nil)
}

// RequestRecoveryCode - POST /auth/password/recovery-code
func (h *Handlers) RequestRecoveryCode(c *gin.Context) {
	var req models.RecoveryCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.services.Accounts.SendRecoveryCode(c.Request.Context(), req.Email, req.Role); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Recovery code sent", nil)
}

// RecoverPassword - POST /auth/password/recover
func (h *Handlers) RecoverPassword(c *gin.Context) {
	var req models.RecoverPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.services.Accounts.RecoverPassword(c.Request.Context(), &req); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Password updated", nil)
}

// LoginAdmin - POST /auth/admins/login
func (h *Handlers) LoginAdmin(c *gin.Context) {
	var req models.AdminLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.services.Accounts.LoginAdmin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Logged in", token)
}

// RefreshToken - POST /auth/refresh
// Принимает и просроченный токен, если подпись верна
func (h *Handlers) RefreshToken(c *gin.Context) {
	token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		fail(c, apperr.ErrUnauthorized)
		return
	}

	resp, err := h.services.Accounts.RefreshToken(c.Request.Context(), strings.TrimSpace(token))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Token refreshed", resp)
}
