package agent

import "context"

// DiagnosticSink receives out-of-band Diagnostic notices emitted during a
// send_to/stream_to call: recovered tool and memory failures, round-cap
// exhaustion, aborted compactions. None of these are returned as errors;
// a nil sink silently drops them.
type DiagnosticSink interface {
	Emit(ctx context.Context, d Diagnostic)
}

// ChanDiagnosticSink fans diagnostics out to a buffered channel. Runtime
// callers that don't care about diagnostics can leave this unset; the
// zero value of *Runtime uses a NopDiagnosticSink.
type ChanDiagnosticSink struct {
	ch chan Diagnostic
}

// NewChanDiagnosticSink creates a sink backed by a channel of the given
// buffer size. A zero or negative size still allows one pending notice.
func NewChanDiagnosticSink(buffer int) *ChanDiagnosticSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanDiagnosticSink{ch: make(chan Diagnostic, buffer)}
}

// Emit pushes a diagnostic, dropping it silently if the channel is full —
// diagnostics are best-effort and must never block the execution loop.
func (s *ChanDiagnosticSink) Emit(_ context.Context, d Diagnostic) {
	select {
	case s.ch <- d:
	default:
	}
}

// C returns the channel consumers drain diagnostics from.
func (s *ChanDiagnosticSink) C() <-chan Diagnostic {
	return s.ch
}

// NopDiagnosticSink discards every diagnostic.
type NopDiagnosticSink struct{}

func (NopDiagnosticSink) Emit(context.Context, Diagnostic) {}
