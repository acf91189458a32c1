package coupons

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/pkg/config"
	"github.com/armorylabs/armory-backend/pkg/enums"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
)

func remoteConfig(url string) config.CouponsConfig {
	return config.CouponsConfig{
		Mode:           "remote",
		ValidatorURL:   url,
		RequestTimeout: 2 * time.Second,
		RetryOnNetwork: true,
	}
}

func TestRemoteValidateSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"valid":true,"type":"fixed","value":"5.00"}`))
	}))
	defer server.Close()

	v, err := NewRemoteValidator(remoteConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	details, err := v.Validate(context.Background(), "save5")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if details.Code != "SAVE5" || details.Type != enums.CouponTypeFixed {
		t.Fatalf("unexpected details %+v", details)
	}
	if !details.Value.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("unexpected value %s", details.Value)
	}
}

func TestRemoteValidateRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"valid":false,"reason":"expired"}`))
	}))
	defer server.Close()

	v, err := NewRemoteValidator(remoteConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	_, err = v.Validate(context.Background(), "OLD")
	assertCouponCode(t, err, pkgerrors.CodeCouponExpired)
}

func TestRemoteValidateRetriesServerErrorOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"valid":true,"type":"percentage","value":"10"}`))
	}))
	defer server.Close()

	v, err := NewRemoteValidator(remoteConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	details, err := v.Validate(context.Background(), "RETRY")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
	if details.Type != enums.CouponTypePercentage {
		t.Fatalf("unexpected type %s", details.Type)
	}
}

func TestRemoteValidateNetworkFailureIsDependencyError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	server.Close() // connection refused from here on

	v, err := NewRemoteValidator(remoteConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	_, err = v.Validate(context.Background(), "ANY")
	assertCouponCode(t, err, pkgerrors.CodeDependency)
}
