package governor

import "context"

// workerIDKey carries the caller's stable worker identity through context,
// so the render path can enforce one WASM instance per worker.
type workerIDKey struct{}

// WithWorkerID tags ctx with a stable worker identity. No caller in this
// repository tags its context, so every render shares the fallback id that
// WorkerIDFrom returns.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerIDKey{}, id)
}

// WorkerIDFrom returns the worker identity tagged on ctx, or a shared
// fallback id for untagged callers.
func WorkerIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(workerIDKey{}).(string); ok && id != "" {
		return id
	}
	return "worker-0"
}
