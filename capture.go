package meter

import (
	"context"
	"sync"
)

// CostResult is the outcome of a WithCost region: the cost and usage of the
// last metered call that completed inside it.
type CostResult struct {
	Cost  float64
	Usage *Usage
}

type captureSlot struct {
	mu     sync.Mutex
	result CostResult
}

type captureKey struct{}

// WithCost runs fn and captures the cost of metered calls made inside it.
// When multiple calls happen in the region the last writer wins; callers
// that need per-call costs should capture each call in its own region or
// use an AfterResponse hook. Nested regions shadow outer ones: a call
// publishes only to the innermost enclosing region.
func WithCost(ctx context.Context, fn func(ctx context.Context) error) (CostResult, error) {
	slot := &captureSlot{}
	err := fn(context.WithValue(ctx, captureKey{}, slot))

	slot.mu.Lock()
	result := slot.result
	slot.mu.Unlock()
	return result, err
}

// publishCapture records a completed call's cost into the innermost capture
// region on ctx, if any.
func publishCapture(ctx context.Context, cost float64, usage *Usage) {
	slot, ok := ctx.Value(captureKey{}).(*captureSlot)
	if !ok {
		return
	}
	slot.mu.Lock()
	slot.result = CostResult{Cost: cost, Usage: usage}
	slot.mu.Unlock()
}
