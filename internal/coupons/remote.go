package coupons

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/pkg/config"
	"github.com/armorylabs/armory-backend/pkg/enums"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
)

const (
	remoteBodyReadLimit int64 = 1024
	remoteRetryBackoff        = 500 * time.Millisecond
)

var errValidatorURLRequired = errors.New("coupon validator url is required")

type remoteValidator struct {
	httpClient *http.Client
	baseURL    string
	retries    uint64
}

// NewRemoteValidator validates coupons against an external validator
// service. Network failures are retried once, then surfaced as a
// dependency error so the caller can tell outage from rejection.
func NewRemoteValidator(cfg config.CouponsConfig, httpClient *http.Client) (Validator, error) {
	baseURL := strings.TrimSpace(cfg.ValidatorURL)
	if baseURL == "" {
		return nil, errValidatorURLRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	var retries uint64
	if cfg.RetryOnNetwork {
		retries = 1
	}

	return &remoteValidator{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		retries:    retries,
	}, nil
}

type remoteRequest struct {
	Code string `json:"code"`
}

type remoteResponse struct {
	Valid  bool            `json:"valid"`
	Reason string          `json:"reason,omitempty"`
	Type   string          `json:"type,omitempty"`
	Value  decimal.Decimal `json:"value,omitempty"`
}

// Validate posts the code to the validator service and maps its verdict.
func (v *remoteValidator) Validate(ctx context.Context, code string) (*Details, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	payload, err := json.Marshal(remoteRequest{Code: code})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal validation request")
	}

	var verdict remoteResponse
	backoff := retry.WithMaxRetries(v.retries, retry.NewConstant(remoteRetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/validate", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := v.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusInternalServerError {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, remoteBodyReadLimit))
			return retry.RetryableError(fmt.Errorf("validator status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, remoteBodyReadLimit))
			return fmt.Errorf("validator status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return json.NewDecoder(resp.Body).Decode(&verdict)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "coupon validator unreachable")
	}

	if !verdict.Valid {
		if strings.EqualFold(verdict.Reason, "expired") {
			return nil, pkgerrors.New(pkgerrors.CodeCouponExpired, "coupon code has expired")
		}
		return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon code is not valid")
	}

	couponType, err := enums.ParseCouponType(verdict.Type)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validator returned unknown coupon type")
	}

	return &Details{
		Code:  strings.ToUpper(code),
		Type:  couponType,
		Value: verdict.Value,
	}, nil
}
