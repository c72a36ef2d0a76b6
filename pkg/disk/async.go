package disk

import (
	"context"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// AsyncSampler offloads the filesystem walk to its own goroutine so callers
// on the hot path never block on traversal. The walk inherits the caller's
// context, so cancellation and the correlation id both carry through.
type AsyncSampler struct {
	inner Sampler
}

// NewAsyncSampler wraps a sampler with goroutine offload.
func NewAsyncSampler(inner Sampler) *AsyncSampler {
	return &AsyncSampler{inner: inner}
}

// Sample runs the wrapped sampler on a worker goroutine and waits for the
// result or cancellation. On cancellation the partial walk is abandoned and
// an empty sample with the cancellation timestamp is returned.
func (a *AsyncSampler) Sample(ctx context.Context, paths, exclusions []string) types.DiskSample {
	ch := make(chan types.DiskSample, 1)
	go func() {
		ch <- a.inner.Sample(ctx, paths, exclusions)
	}()

	select {
	case s := <-ch:
		return s
	case <-ctx.Done():
		return types.DiskSample{
			Paths:      append([]string(nil), paths...),
			Exclusions: append([]string(nil), exclusions...),
		}
	}
}

// SampleAsync starts the walk and returns immediately; the result arrives on
// the returned channel (buffered, never blocks the worker).
func (a *AsyncSampler) SampleAsync(ctx context.Context, paths, exclusions []string) <-chan types.DiskSample {
	ch := make(chan types.DiskSample, 1)
	go func() {
		ch <- a.inner.Sample(ctx, paths, exclusions)
	}()
	return ch
}
