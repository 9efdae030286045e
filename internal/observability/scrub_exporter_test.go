package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordingExporter captures exported spans for test assertions.
type recordingExporter struct {
	mu    sync.Mutex
	spans []sdktrace.ReadOnlySpan
}

func (e *recordingExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, spans...)
	return nil
}

func (e *recordingExporter) Shutdown(_ context.Context) error { return nil }

func (e *recordingExporter) Spans() []sdktrace.ReadOnlySpan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sdktrace.ReadOnlySpan(nil), e.spans...)
}

func spanAttrMap(span sdktrace.ReadOnlySpan) map[string]string {
	out := make(map[string]string)
	for _, a := range span.Attributes() {
		out[string(a.Key)] = a.Value.Emit()
	}
	return out
}

func exportOne(t *testing.T, exporter sdktrace.SpanExporter, stub tracetest.SpanStub) {
	t.Helper()
	if err := exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}); err != nil {
		t.Fatalf("ExportSpans() error: %v", err)
	}
}

func TestScrubbingExporterRedactsAttributeValue(t *testing.T) {
	t.Parallel()

	inner := &recordingExporter{}
	exporter := newScrubbingExporter(inner)

	exportOne(t, exporter, tracetest.SpanStub{
		Name: "openai.Chat.Completions.Create",
		Attributes: []attribute.KeyValue{
			attribute.String("error.message", "401 for key sk-proj-abc123def456ghi"),
			attribute.String("ai.provider", "openai"),
			attribute.Float64("ai.cost_usd", 0.0125),
		},
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{1},
			SpanID:  trace.SpanID{1},
		}),
	})

	spans := inner.Spans()
	if len(spans) != 1 {
		t.Fatalf("exported spans = %d, want 1", len(spans))
	}
	attrs := spanAttrMap(spans[0])
	if got := attrs["error.message"]; got != "401 for key [REDACTED]" {
		t.Fatalf("error.message = %q, want credential redacted", got)
	}
	if got := attrs["ai.provider"]; got != "openai" {
		t.Fatalf("ai.provider = %q", got)
	}
	if got := attrs["ai.cost_usd"]; got != "0.0125" {
		t.Fatalf("ai.cost_usd = %q", got)
	}
}

func TestScrubbingExporterCleanSpanPassesThrough(t *testing.T) {
	t.Parallel()

	inner := &recordingExporter{}
	exporter := newScrubbingExporter(inner)

	exportOne(t, exporter, tracetest.SpanStub{
		Name: "anthropic.Messages.New",
		Attributes: []attribute.KeyValue{
			attribute.String("ai.provider", "anthropic"),
			attribute.String("ai.model", "claude-sonnet-4"),
			attribute.Int("ai.usage.input_units", 300),
		},
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{2},
			SpanID:  trace.SpanID{2},
		}),
	})

	spans := inner.Spans()
	if len(spans) != 1 {
		t.Fatalf("exported spans = %d, want 1", len(spans))
	}
	attrs := spanAttrMap(spans[0])
	if attrs["ai.model"] != "claude-sonnet-4" || attrs["ai.usage.input_units"] != "300" {
		t.Fatalf("attrs = %v", attrs)
	}
}

func TestScrubbingExporterRedactsEventAttributes(t *testing.T) {
	t.Parallel()

	inner := &recordingExporter{}
	exporter := newScrubbingExporter(inner)

	exportOne(t, exporter, tracetest.SpanStub{
		Name: "openai.Chat.Completions.Create",
		Events: []sdktrace.Event{
			{
				Name: "exception",
				Time: time.Now(),
				Attributes: []attribute.KeyValue{
					attribute.String("exception.message", "upstream rejected token=abcdefghijklmnop"),
				},
			},
		},
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{3},
			SpanID:  trace.SpanID{3},
		}),
	})

	spans := inner.Spans()
	if len(spans) != 1 {
		t.Fatalf("exported spans = %d, want 1", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	for _, a := range events[0].Attributes {
		if string(a.Key) == "exception.message" {
			if ContainsCredential(a.Value.AsString()) {
				t.Fatalf("event attribute still carries credential: %q", a.Value.AsString())
			}
			return
		}
	}
	t.Fatal("missing exception.message event attribute")
}

func TestScrubbingExporterRedactsStatusDescription(t *testing.T) {
	t.Parallel()

	inner := &recordingExporter{}
	exporter := newScrubbingExporter(inner)

	exportOne(t, exporter, tracetest.SpanStub{
		Name: "openai.Chat.Completions.Create",
		Status: sdktrace.Status{
			Code:        codes.Error,
			Description: "authentication failed for sk-ant-api03-abcdef123456",
		},
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{4},
			SpanID:  trace.SpanID{4},
		}),
	})

	spans := inner.Spans()
	if len(spans) != 1 {
		t.Fatalf("exported spans = %d, want 1", len(spans))
	}
	status := spans[0].Status()
	if ContainsCredential(status.Description) {
		t.Fatalf("status description still carries credential: %q", status.Description)
	}
	if status.Code != codes.Error {
		t.Fatalf("status code = %v, want %v", status.Code, codes.Error)
	}
}

func TestScrubbingExporterShutdownDelegates(t *testing.T) {
	t.Parallel()

	exporter := newScrubbingExporter(&recordingExporter{})
	if err := exporter.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
