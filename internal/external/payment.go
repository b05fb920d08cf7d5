package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/models"

	"github.com/shopspring/decimal"
)

type PaymentClient struct {
	baseURL         string
	teamSlug        string
	password        string
	webhookSecret   string
	notificationURL string
	successURL      string
	failURL         string
	currency        string
	httpClient      *http.Client
}

type PaymentConfig struct {
	BaseURL         string        `env:"PAYMENT_GATEWAY_URL" env-default:"http://localhost:9090"`
	TeamSlug        string        `env:"PAYMENT_TEAM_SLUG"`
	Password        string        `env:"PAYMENT_PASSWORD"`
	WebhookSecret   string        `env:"PAYMENT_WEBHOOK_SECRET"`
	NotificationURL string        `env:"PAYMENT_NOTIFICATION_URL"`
	SuccessURL      string        `env:"PAYMENT_SUCCESS_URL"`
	FailURL         string        `env:"PAYMENT_FAIL_URL"`
	Currency        string        `env:"PAYMENT_CURRENCY" env-default:"ARS"`
	Timeout         time.Duration `env:"PAYMENT_TIMEOUT" env-default:"10s"`
}

// PaymentInitRequest - запрос на создание платежа (preference)
type PaymentInitRequest struct {
	TeamSlug        string            `json:"teamSlug"`
	Token           string            `json:"token"`
	Amount          int64             `json:"amount"`
	OrderID         string            `json:"orderId"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description,omitempty"`
	Email           string            `json:"email,omitempty"`
	Items           []PaymentInitItem `json:"items,omitempty"`
	SuccessURL      string            `json:"successURL,omitempty"`
	FailURL         string            `json:"failURL,omitempty"`
	NotificationURL string            `json:"notificationURL,omitempty"`
}

type PaymentInitItem struct {
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type PaymentInitResponse struct {
	Success    bool   `json:"success"`
	PaymentID  string `json:"paymentId"`
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	PaymentURL string `json:"paymentURL"`
	ExpiresAt  string `json:"expiresAt"`
}

type PaymentCheckRequest struct {
	TeamSlug  string `json:"teamSlug"`
	Token     string `json:"token"`
	PaymentID string `json:"paymentId,omitempty"`
}

type PaymentCheckResponse struct {
	Success  bool             `json:"success"`
	Payments []PaymentDetails `json:"payments"`
}

type PaymentDetails struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	UpdatedAt string `json:"updatedAt"`
}

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "ARS"
	}

	return &PaymentClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		teamSlug:        cfg.TeamSlug,
		password:        cfg.Password,
		webhookSecret:   cfg.WebhookSecret,
		notificationURL: cfg.NotificationURL,
		successURL:      cfg.SuccessURL,
		failURL:         cfg.FailURL,
		currency:        cfg.Currency,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// generateToken: значения параметров, отсортированные по ключу, склеиваются и хешируются SHA-256
func (pc *PaymentClient) generateToken(params map[string]string) string {
	params["TeamSlug"] = pc.teamSlug
	params["Password"] = pc.password

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(params[key])
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// minorUnits converts an amount to cents.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreatePreference registers the frozen cart with the gateway. The checkout
// attempt id travels as the gateway order id and comes back on the webhook.
func (pc *PaymentClient) CreatePreference(ctx context.Context, snapshot models.CheckoutSnapshot) (*models.Preference, error) {
	amount := minorUnits(snapshot.Total)
	params := map[string]string{
		"Amount":   strconv.FormatInt(amount, 10),
		"Currency": pc.currency,
		"OrderId":  snapshot.CheckoutAttemptID,
	}

	items := make([]PaymentInitItem, 0, len(snapshot.Orders))
	for _, o := range snapshot.Orders {
		items = append(items, PaymentInitItem{
			Title:     o.EventID + " / " + o.LocalityName,
			Quantity:  o.TicketsSelected,
			UnitPrice: minorUnits(o.UnitPrice),
		})
	}

	req := PaymentInitRequest{
		TeamSlug:        pc.teamSlug,
		Token:           pc.generateToken(params),
		Amount:          amount,
		OrderID:         snapshot.CheckoutAttemptID,
		Currency:        pc.currency,
		Description:     "Tickets for client " + snapshot.ClientID,
		Email:           snapshot.ClientEmail,
		Items:           items,
		SuccessURL:      pc.successURL,
		FailURL:         pc.failURL,
		NotificationURL: pc.notificationURL,
	}

	var result PaymentInitResponse
	if err := pc.post(ctx, "/api/v1/PaymentInit/init", req, &result); err != nil {
		return nil, fmt.Errorf("failed to init payment: %w", err)
	}
	if !result.Success || result.PaymentID == "" {
		// шлюз ответил, но платёж не принял
		return nil, apperr.New(apperr.PaymentRejected, fmt.Sprintf("payment was declined: status %q", result.Status))
	}

	return &models.Preference{ID: result.PaymentID, InitPoint: result.PaymentURL}, nil
}

// GetPayment fetches the current state of a payment.
func (pc *PaymentClient) GetPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	req := PaymentCheckRequest{
		TeamSlug:  pc.teamSlug,
		Token:     pc.generateToken(map[string]string{"PaymentId": paymentID}),
		PaymentID: paymentID,
	}

	var result PaymentCheckResponse
	if err := pc.post(ctx, "/api/v1/PaymentCheck/check", req, &result); err != nil {
		return nil, fmt.Errorf("failed to check payment: %w", err)
	}
	if !result.Success || len(result.Payments) == 0 {
		return nil, fmt.Errorf("payment %s not found", paymentID)
	}

	return &result.Payments[0], nil
}

func (pc *PaymentClient) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return apperr.New(apperr.PaymentRejected, fmt.Sprintf("payment was declined: status code %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of body sent by the gateway.
func (pc *PaymentClient) VerifyWebhookSignature(body []byte, signature string) bool {
	if pc.webhookSecret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(SignWebhook(pc.webhookSecret, body)), []byte(strings.ToLower(signature)))
}

// SignWebhook returns the signature the gateway puts into X-Signature.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// MapStatus converts a gateway status to a settlement outcome. ok is false
// for intermediate statuses that do not settle the cart.
func MapStatus(status string) (models.Outcome, bool) {
	switch strings.ToLower(status) {
	case "approved", "confirmed", "completed":
		return models.OutcomeApproved, true
	case "rejected", "cancelled", "canceled", "failed":
		return models.OutcomeRejected, true
	case "expired", "deadline_expired":
		return models.OutcomeExpired, true
	default:
		return "", false
	}
}
