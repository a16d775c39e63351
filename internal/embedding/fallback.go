package embedding

import (
	"context"
	"fmt"
	"log"

	"event-forecast-lab/internal/retry"
)

// Fallback wraps a primary provider with the shared retry policy and falls
// back to a deterministic local provider once attempts are exhausted.
// Availability is prioritized over embedding quality: the fallback is logged
// as degraded, never silent.
type Fallback struct {
	primary Provider
	local   *Local
	policy  retry.Policy
	logger  *log.Logger

	// onDegraded is invoked whenever the local fallback is used, after
	// logging. Optional; used to bump the degraded-embedding counter.
	onDegraded func()
}

// FallbackOptions configures a Fallback provider.
type FallbackOptions struct {
	Primary    Provider
	Policy     retry.Policy
	Logger     *log.Logger
	OnDegraded func()
}

// NewFallback creates a Fallback provider. The local provider mirrors the
// primary's dimension so downstream index inserts never see a mismatch.
func NewFallback(opts FallbackOptions) (*Fallback, error) {
	if opts.Primary == nil {
		return nil, fmt.Errorf("embedding fallback: primary provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Fallback{
		primary:    opts.Primary,
		local:      NewLocal(opts.Primary.Dimension()),
		policy:     opts.Policy,
		logger:     logger,
		onDegraded: opts.OnDegraded,
	}, nil
}

// Embed tries the primary with retries, then degrades to the local provider.
func (f *Fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var embedErr error
		vec, embedErr = f.primary.Embed(ctx, text)
		return embedErr
	})
	if err == nil {
		return vec, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f.logger.Printf("[embedding] DEGRADED: provider %s failed, using %s placeholder: %v",
		f.primary.Name(), f.local.Name(), err)
	if f.onDegraded != nil {
		f.onDegraded()
	}
	return f.local.Embed(ctx, text)
}

// Dimension returns the primary provider's dimension.
func (f *Fallback) Dimension() int {
	return f.primary.Dimension()
}

// Name returns the provider identifier.
func (f *Fallback) Name() string {
	return fmt.Sprintf("%s+fallback", f.primary.Name())
}

var _ Provider = (*Fallback)(nil)
