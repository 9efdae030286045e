package meter

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ongoingai/meter/internal/providers"
)

// Stream wraps a provider streaming response. Recv behaves exactly like the
// underlying stream's Recv; usage is accumulated from chunks as they pass
// through and metering finalizes exactly once, on end-of-stream, on error,
// or on Close, whichever comes first.
type Stream struct {
	monitor *Monitor
	span    trace.Span
	ctx     context.Context
	req     *RequestInfo
	args    []any
	start   time.Time
	inner   *streamShape

	mu        sync.Mutex
	usage     *Usage
	finalized bool
}

func (m *Monitor) newStream(ctx context.Context, span trace.Span, inner *streamShape, req *RequestInfo, start time.Time, args []any) *Stream {
	return &Stream{
		monitor: m,
		span:    span,
		ctx:     ctx,
		req:     req,
		args:    args,
		start:   start,
		inner:   inner,
	}
}

// Recv returns the next chunk from the underlying stream. io.EOF marks
// normal completion and finalizes metering with success status; any other
// error finalizes with error status. Chunks carrying usage update the
// running tally with a latest-wins policy, matching providers that send
// cumulative usage in their final chunks.
func (s *Stream) Recv() (any, error) {
	chunk, err := s.inner.recv(s.ctx)
	if err != nil {
		if err == io.EOF {
			s.finalize(nil)
			return nil, io.EOF
		}
		s.finalize(err)
		return nil, err
	}
	s.observeChunk(chunk)
	return chunk, nil
}

// Close closes the underlying stream. Closing before end-of-stream is
// treated as caller cancellation: whatever usage arrived so far is metered
// and the span completes with success status.
func (s *Stream) Close() error {
	s.finalize(nil)
	if s.inner.close == nil {
		return nil
	}
	return s.inner.close(s.ctx)
}

func (s *Stream) observeChunk(chunk any) {
	usage := providers.ExtractUsage(strings.Split(s.req.MethodPath, "."), chunk, s.args, s.monitor.provider)
	if usage == nil {
		return
	}

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.usage = usage
	s.mu.Unlock()

	if s.monitor.cfg.onStreamingCost != nil {
		s.runStreamingCost(s.monitor.price(usage), usage, false)
	}
}

// finalize closes out metering exactly once. Later calls, including a Close
// after the stream already drained, are no-ops.
func (s *Stream) finalize(streamErr error) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	usage := s.usage
	s.mu.Unlock()

	duration := time.Since(s.start)
	cost := s.monitor.price(usage)

	// Whatever usage arrived before termination is published to the
	// enclosing capture region on every path, failures included.
	publishCapture(s.ctx, cost, usage)

	if streamErr != nil {
		s.monitor.failSpan(s.span, streamErr)
		if usage != nil {
			s.span.SetAttributes(usageAttributes(usage, cost)...)
		}
		s.span.End()
		s.monitor.runOnError(s.ctx, &ErrorInfo{
			RequestInfo:  *s.req,
			Err:          streamErr,
			Duration:     duration,
			PartialUsage: usage,
		})
	} else {
		if usage != nil {
			s.span.SetAttributes(usageAttributes(usage, cost)...)
		}
		s.span.SetStatus(codes.Ok, "")
		s.span.End()
		s.monitor.runAfterResponse(s.ctx, &ResponseInfo{
			RequestInfo: *s.req,
			Cost:        cost,
			Usage:       usage,
			Duration:    duration,
		})
		s.monitor.export(s.req, usage, cost, duration)
	}

	if s.monitor.cfg.onStreamingCost != nil {
		s.runStreamingCost(cost, usage, true)
	}
}

func (s *Stream) runStreamingCost(cost float64, usage *Usage, isComplete bool) {
	defer func() {
		if r := recover(); r != nil {
			logger().Warn("streaming cost hook failed", "method_path", s.req.MethodPath, "panic", r)
		}
	}()
	s.monitor.cfg.onStreamingCost(cost, usage, isComplete)
}
