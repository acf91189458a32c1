package paymentwebhooks

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/armorylabs/armory-backend/pkg/logger"
)

type stubSettler struct {
	confirmed []string
	failed    []string
}

func (s *stubSettler) ConfirmPayment(_ context.Context, ref string) error {
	s.confirmed = append(s.confirmed, ref)
	return nil
}

func (s *stubSettler) FailPayment(_ context.Context, ref string) error {
	s.failed = append(s.failed, ref)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhooks-test", Output: io.Discard})
}

func intentEvent(t *testing.T, eventType stripe.EventType, intentID string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"id": intentID})
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_1",
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleStripeEventSucceededConfirms(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{}
	svc, err := NewService(settler, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_123")
	if err := svc.HandleStripeEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleStripeEvent: %v", err)
	}
	if len(settler.confirmed) != 1 || settler.confirmed[0] != "pi_123" {
		t.Fatalf("expected pi_123 confirmed, got %v", settler.confirmed)
	}
}

func TestHandleStripeEventFailureMarksFailed(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{}
	svc, _ := NewService(settler, testLogger())

	for _, eventType := range []stripe.EventType{
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled,
	} {
		event := intentEvent(t, eventType, "pi_dead")
		if err := svc.HandleStripeEvent(context.Background(), event); err != nil {
			t.Fatalf("HandleStripeEvent(%s): %v", eventType, err)
		}
	}
	if len(settler.failed) != 2 {
		t.Fatalf("expected two failures recorded, got %v", settler.failed)
	}
	if len(settler.confirmed) != 0 {
		t.Fatalf("no confirmations expected, got %v", settler.confirmed)
	}
}

func TestHandleStripeEventIgnoresUnrelatedTypes(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{}
	svc, _ := NewService(settler, testLogger())

	event := intentEvent(t, stripe.EventTypeCustomerCreated, "cus_1")
	if err := svc.HandleStripeEvent(context.Background(), event); err != nil {
		t.Fatalf("unrelated event must be acknowledged: %v", err)
	}
	if len(settler.confirmed)+len(settler.failed) != 0 {
		t.Fatal("unrelated event must not settle anything")
	}
}

func TestHandleCryptoNotificationStatuses(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{}
	svc, _ := NewService(settler, testLogger())

	cases := []struct {
		status    string
		confirmed int
		failed    int
	}{
		{"finished", 1, 0},
		{"FAILED", 1, 1},
		{"waiting", 1, 1},
		{"expired", 1, 2},
	}
	for _, tc := range cases {
		err := svc.HandleCryptoNotification(context.Background(), CryptoNotification{
			InvoiceID: "inv_1",
			Status:    tc.status,
		})
		if err != nil {
			t.Fatalf("HandleCryptoNotification(%s): %v", tc.status, err)
		}
		if len(settler.confirmed) != tc.confirmed || len(settler.failed) != tc.failed {
			t.Fatalf("after %s expected %d/%d, got %d/%d",
				tc.status, tc.confirmed, tc.failed, len(settler.confirmed), len(settler.failed))
		}
	}
}

func TestHandleCryptoNotificationRequiresInvoiceID(t *testing.T) {
	t.Parallel()

	svc, _ := NewService(&stubSettler{}, testLogger())
	if err := svc.HandleCryptoNotification(context.Background(), CryptoNotification{Status: "finished"}); err == nil {
		t.Fatal("expected validation error")
	}
}

type fakeGuardStore struct {
	data map[string]string
}

func (f *fakeGuardStore) Get(_ context.Context, key string) (string, error) {
	return f.data[key], nil
}

func (f *fakeGuardStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if f.data == nil {
		f.data = map[string]string{}
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = "1"
	return true, nil
}

func (f *fakeGuardStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (f *fakeGuardStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func TestGuardCheckAndMark(t *testing.T) {
	t.Parallel()

	guard, err := NewIdempotencyGuard(&fakeGuardStore{}, time.Hour, "stripe_webhooks")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}

	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || seen {
		t.Fatalf("first check should mark fresh event, got seen=%v err=%v", seen, err)
	}
	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || !seen {
		t.Fatalf("second check should report already processed, got seen=%v err=%v", seen, err)
	}

	if err := guard.Delete(context.Background(), "evt_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	seen, _ = guard.CheckAndMark(context.Background(), "evt_1")
	if seen {
		t.Fatal("deleted event should be markable again")
	}
}
