package transport

import "context"

// Recorder receives per-conversation call events.
// domain.CallMetrics satisfies it.
type Recorder interface {
	RecordAttempt()
	RecordRetry()
	RecordSuccess()
	RecordAbort()
}

type recorderKey struct{}

// WithRecorder attaches r to ctx so calls made with it are attributed to r.
func WithRecorder(ctx context.Context, r Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

func recorderFrom(ctx context.Context) Recorder {
	if r, ok := ctx.Value(recorderKey{}).(Recorder); ok && r != nil {
		return r
	}
	return nopRecorder{}
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt() {}
func (nopRecorder) RecordRetry()   {}
func (nopRecorder) RecordSuccess() {}
func (nopRecorder) RecordAbort()   {}
