// Package processing bounds caller-facing work with a time budget.
package processing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrBudgetExceeded = errors.New("time budget exceeded")

// Runner executes work within whatever limits it enforces.
type Runner interface {
	Run(ctx context.Context, process func(ctx context.Context) error) error
}

// Budget cancels work that runs longer than Timeout. A zero Timeout only
// propagates the parent context.
type Budget struct {
	Timeout time.Duration
}

func NewBudget(timeout time.Duration) *Budget {
	return &Budget{Timeout: timeout}
}

// Run calls process with a derived context and waits for it to return or
// for the deadline to pass, whichever comes first. process keeps running in
// the background after a deadline and must honour ctx to stop early.
func (b *Budget) Run(ctx context.Context, process func(ctx context.Context) error) error {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- process(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrBudgetExceeded, b.Timeout)
		}
		return ctx.Err()
	}
}
