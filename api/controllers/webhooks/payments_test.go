package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentwebhooks "github.com/armorylabs/armory-backend/internal/webhooks/payments"
)

const testSigningSecret = "whsec_test"

func TestStripeWebhookSuccessAndIdempotent(t *testing.T) {
	payload, header := buildSignedIntentEvent(t)
	service := &fakeStripeWebhookService{}
	guard := newTestGuard(t, "stripe-webhook")
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, service.calls)

	// Replay the same event
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, 1, service.calls)
}

func TestStripeWebhookInvalidSignature(t *testing.T) {
	payload, _ := buildSignedIntentEvent(t)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, newTestGuard(t, "stripe-webhook"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, service.calls)
}

func TestStripeWebhookMissingSignature(t *testing.T) {
	payload, _ := buildSignedIntentEvent(t)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, newTestGuard(t, "stripe-webhook"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, service.calls)
}

func TestStripeWebhookGuardReleasedOnFailure(t *testing.T) {
	payload, header := buildSignedIntentEvent(t)
	service := &fakeStripeWebhookService{err: fmt.Errorf("settlement unavailable")}
	guard := newTestGuard(t, "stripe-webhook")
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// The failed delivery must stay retryable.
	service.err = nil
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, 2, service.calls)
}

func TestCryptoWebhookSuccessAndIdempotent(t *testing.T) {
	service := &fakeCryptoWebhookService{}
	guard := newTestGuard(t, "crypto-webhook")
	handler := CryptoWebhook(service, "ipn-secret", guard, nil)

	body := []byte(`{"invoice_id":"inv_42","order_id":"ARM-AB12CD34","status":"finished","extra_field":"ignored"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/crypto", bytes.NewReader(body))
	req.Header.Set("X-Api-Key", "ipn-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, service.notes, 1)
	assert.Equal(t, "inv_42", service.notes[0].InvoiceID)
	assert.Equal(t, "finished", service.notes[0].Status)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/crypto", bytes.NewReader(body))
	req2.Header.Set("X-Api-Key", "ipn-secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Len(t, service.notes, 1)
}

func TestCryptoWebhookStatusChangeNotDeduped(t *testing.T) {
	service := &fakeCryptoWebhookService{}
	guard := newTestGuard(t, "crypto-webhook")
	handler := CryptoWebhook(service, "ipn-secret", guard, nil)

	for _, status := range []string{"confirming", "finished"} {
		body := []byte(fmt.Sprintf(`{"invoice_id":"inv_42","status":"%s"}`, status))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/crypto", bytes.NewReader(body))
		req.Header.Set("X-Api-Key", "ipn-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Len(t, service.notes, 2)
}

func TestCryptoWebhookBadCredentials(t *testing.T) {
	service := &fakeCryptoWebhookService{}
	handler := CryptoWebhook(service, "ipn-secret", newTestGuard(t, "crypto-webhook"), nil)

	body := []byte(`{"invoice_id":"inv_42","status":"finished"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/crypto", bytes.NewReader(body))
	req.Header.Set("X-Api-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, service.notes)
}

func TestCryptoWebhookMissingFields(t *testing.T) {
	service := &fakeCryptoWebhookService{}
	handler := CryptoWebhook(service, "ipn-secret", newTestGuard(t, "crypto-webhook"), nil)

	body := []byte(`{"status":"finished"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/crypto", bytes.NewReader(body))
	req.Header.Set("X-Api-Key", "ipn-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, service.notes)
}

func buildSignedIntentEvent(t *testing.T) ([]byte, string) {
	t.Helper()

	intent := &stripe.PaymentIntent{
		ID:     "pi_" + uuid.NewString(),
		Status: stripe.PaymentIntentStatusSucceeded,
	}
	rawIntent, err := json.Marshal(intent)
	require.NoError(t, err)

	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data: &stripe.EventData{
			Raw: rawIntent,
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return payload, buildStripeSignatureHeader(payload, testSigningSecret, time.Now().Unix())
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestGuard(t *testing.T, scope string) *paymentwebhooks.IdempotencyGuard {
	t.Helper()
	guard, err := paymentwebhooks.NewIdempotencyGuard(newInMemoryStore(), time.Minute, scope)
	require.NoError(t, err)
	return guard
}

type fakeStripeWebhookService struct {
	calls int
	err   error
}

func (f *fakeStripeWebhookService) HandleStripeEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

type fakeCryptoWebhookService struct {
	notes []paymentwebhooks.CryptoNotification
	err   error
}

func (f *fakeCryptoWebhookService) HandleCryptoNotification(ctx context.Context, note paymentwebhooks.CryptoNotification) error {
	f.notes = append(f.notes, note)
	return f.err
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("arm:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
