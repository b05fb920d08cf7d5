package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *PaymentClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaymentClient(PaymentConfig{
		BaseURL:       srv.URL + "/",
		TeamSlug:      "team",
		Password:      "pw",
		WebhookSecret: "whsec",
		Timeout:       time.Second,
	})
}

func TestCreatePreference(t *testing.T) {
	var got PaymentInitRequest
	pc := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/PaymentInit/init", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(PaymentInitResponse{
			Success: true, PaymentID: "pay-1", PaymentURL: "https://pay.example/1",
		})
	})

	pref, err := pc.CreatePreference(context.Background(), models.CheckoutSnapshot{
		CheckoutAttemptID: "cart-1",
		ClientID:          "c1",
		ClientEmail:       "a@example.com",
		Orders: []models.LocalityOrder{
			{EventID: "e1", LocalityName: "GEN", TicketsSelected: 3, UnitPrice: decimal.RequireFromString("20")},
		},
		Total: decimal.RequireFromString("54.005"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", pref.ID)
	assert.Equal(t, "https://pay.example/1", pref.InitPoint)

	assert.Equal(t, int64(5401), got.Amount)
	assert.Equal(t, "cart-1", got.OrderID)
	assert.Equal(t, "ARS", got.Currency)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(2000), got.Items[0].UnitPrice)
	assert.Equal(t, pc.generateToken(map[string]string{
		"Amount": "5401", "Currency": "ARS", "OrderId": "cart-1",
	}), got.Token)
}

func TestCreatePreferenceFailures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		declined bool
	}{
		{name: "server error", handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{name: "not successful", handler: func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(PaymentInitResponse{Success: false, Status: "REJECTED"})
		}, declined: true},
		{name: "payment required", handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
		}, declined: true},
		{name: "garbage", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := newGateway(t, tt.handler)
			_, err := pc.CreatePreference(context.Background(), models.CheckoutSnapshot{CheckoutAttemptID: "x-1"})
			require.Error(t, err)
			assert.Equal(t, tt.declined, apperr.Is(err, apperr.PaymentRejected), err.Error())
		})
	}
}

func TestGetPayment(t *testing.T) {
	pc := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req PaymentCheckRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.PaymentID != "pay-1" {
			_ = json.NewEncoder(w).Encode(PaymentCheckResponse{Success: true})
			return
		}
		_ = json.NewEncoder(w).Encode(PaymentCheckResponse{
			Success:  true,
			Payments: []PaymentDetails{{PaymentID: "pay-1", OrderID: "cart-1", Status: "CONFIRMED"}},
		})
	})

	p, err := pc.GetPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "cart-1", p.OrderID)

	_, err = pc.GetPayment(context.Background(), "pay-2")
	assert.Error(t, err)
}

func TestVerifyWebhookSignature(t *testing.T) {
	pc := NewPaymentClient(PaymentConfig{WebhookSecret: "whsec"})
	body := []byte(`{"paymentId":"p1","status":"CONFIRMED"}`)
	sig := SignWebhook("whsec", body)

	assert.True(t, pc.VerifyWebhookSignature(body, sig))
	assert.False(t, pc.VerifyWebhookSignature(body, ""))
	assert.False(t, pc.VerifyWebhookSignature([]byte(`{}`), sig))
	assert.False(t, pc.VerifyWebhookSignature(body, SignWebhook("other", body)))

	// без секрета подпись не принимается
	assert.False(t, NewPaymentClient(PaymentConfig{}).VerifyWebhookSignature(body, SignWebhook("", body)))
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		status string
		want   models.Outcome
		final  bool
	}{
		{"CONFIRMED", models.OutcomeApproved, true},
		{"approved", models.OutcomeApproved, true},
		{"REJECTED", models.OutcomeRejected, true},
		{"CANCELLED", models.OutcomeRejected, true},
		{"DEADLINE_EXPIRED", models.OutcomeExpired, true},
		{"NEW", "", false},
		{"AUTHORIZED", "", false},
	}
	for _, tt := range tests {
		got, final := MapStatus(tt.status)
		assert.Equal(t, tt.final, final, tt.status)
		assert.Equal(t, tt.want, got, tt.status)
	}
}
