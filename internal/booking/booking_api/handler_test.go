package booking_api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"staybook/internal/booking"
	"staybook/internal/booking/booking_api"
	"staybook/internal/config"
	"staybook/internal/logger"
	"staybook/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookHandler(secret string) *booking_api.Handler {
	log := logger.NewLogger()
	service := booking.NewService(nil, nil, nil, nil, nil, nil, nil,
		config.PropertyConfig{}, config.TopicConfig{}, log)
	return booking_api.NewHandler(service, log, secret)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestStripeWebhookBadSignatureReturnsBadRequest(t *testing.T) {
	handler := newWebhookHandler("whsec_test")

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(`{"type":"payment_intent.succeeded"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	rec := httptest.NewRecorder()

	handler.StripeWebhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code, "a forged signature is the caller's fault, not ours")
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid webhook signature", resp.Error)
}

func TestStripeWebhookMissingSecretReturnsServerError(t *testing.T) {
	handler := newWebhookHandler("")

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	rec := httptest.NewRecorder()

	handler.StripeWebhook(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "Webhook processing error", resp.Error, "configuration details stay out of the response")
}
