package media

import "context"

// ProgressFunc receives a job's completion percentage (0-100)
type ProgressFunc func(percent int)

type progressKey struct{}

// WithProgress attaches a progress callback to ctx
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress calls the callback attached to ctx, if any
func ReportProgress(ctx context.Context, percent int) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(percent)
	}
}
