// Package validation smoke-checks a running API: health, auth guards,
// error envelope and, with admin credentials, the search endpoint.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"eventcart/internal/models"
)

// SmokeValidator - проверка запущенного API
type SmokeValidator struct {
	baseURL       string
	adminUsername string
	adminPassword string
	client        *http.Client
}

// NewSmokeValidator создает новый валидатор
func NewSmokeValidator(baseURL, adminUsername, adminPassword string) *SmokeValidator {
	return &SmokeValidator{
		baseURL:       baseURL,
		adminUsername: adminUsername,
		adminPassword: adminPassword,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateAll runs every check and stops at the first failure.
func (v *SmokeValidator) ValidateAll() error {
	slog.Info("Starting API validation", "base_url", v.baseURL)

	if err := v.validateHealth(); err != nil {
		return fmt.Errorf("health validation failed: %w", err)
	}
	if err := v.validateGuards(); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	if v.adminUsername != "" {
		if err := v.validateSearch(); err != nil {
			return fmt.Errorf("events validation failed: %w", err)
		}
	} else {
		slog.Info("No admin credentials, skipping authenticated checks")
	}

	slog.Info("All endpoints passed validation")
	return nil
}

func (v *SmokeValidator) validateHealth() error {
	resp, err := v.makeRequest(http.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /health: expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		return fmt.Errorf("GET /health: missing X-Request-ID header")
	}
	return nil
}

// validateGuards checks that protected routes answer 401 with the error envelope.
func (v *SmokeValidator) validateGuards() error {
	for _, path := range []string{"/events", "/cart/smoke", "/admin/coupons"} {
		resp, err := v.makeRequest(http.MethodGet, path, "", nil)
		if err != nil {
			return err
		}

		var body models.APIResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			return fmt.Errorf("GET %s: expected 401, got %d", path, resp.StatusCode)
		}
		if decodeErr != nil {
			return fmt.Errorf("GET %s: failed to decode response: %w", path, decodeErr)
		}
		if body.Status != models.StatusError {
			return fmt.Errorf("GET %s: expected status %q, got %q", path, models.StatusError, body.Status)
		}
	}
	return nil
}

func (v *SmokeValidator) validateSearch() error {
	resp, err := v.makeRequest(http.MethodPost, "/auth/admins/login", "", models.AdminLoginRequest{
		Username: v.adminUsername,
		Password: v.adminPassword,
	})
	if err != nil {
		return err
	}

	var login struct {
		Data models.TokenResponse `json:"data"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&login)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST /auth/admins/login: expected 200, got %d", resp.StatusCode)
	}
	if decodeErr != nil || login.Data.Token == "" {
		return fmt.Errorf("POST /auth/admins/login: no token in response")
	}

	resp, err = v.makeRequest(http.MethodGet, "/events?size=1", login.Data.Token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /events: expected 200, got %d", resp.StatusCode)
	}

	var page struct {
		Data models.Page[models.Event] `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return fmt.Errorf("GET /events: failed to decode response: %w", err)
	}
	if page.Data.Size != 1 {
		return fmt.Errorf("GET /events: expected page size 1, got %d", page.Data.Size)
	}
	return nil
}

func (v *SmokeValidator) makeRequest(method, path, token string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, v.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	return resp, nil
}
