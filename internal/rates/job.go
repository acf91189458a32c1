package rates

import (
	"context"
	"fmt"
)

type refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshJob refreshes the cached FX table on the worker cadence.
type RefreshJob struct {
	svc refresher
}

// NewRefreshJob builds a refresh job around the rates service.
func NewRefreshJob(svc refresher) (*RefreshJob, error) {
	if svc == nil {
		return nil, fmt.Errorf("rates service required")
	}
	return &RefreshJob{svc: svc}, nil
}

// Name identifies the job in logs and metrics.
func (j *RefreshJob) Name() string { return "rates-refresh" }

// Run performs one refresh.
func (j *RefreshJob) Run(ctx context.Context) error {
	return j.svc.Refresh(ctx)
}
