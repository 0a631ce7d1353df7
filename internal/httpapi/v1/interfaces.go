package v1

import (
	"context"

	"github.com/tinoosan/loanledger/internal/scheduler"
)

// ReadyChecker is implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Runner triggers a scheduler run on demand.
type Runner interface {
	RunOnce(ctx context.Context) (scheduler.RunResult, error)
}
