package meter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute names. Every metered quantity is written twice: once under
// the library namespace and once under the standard gen_ai namespace, so
// both dashboards keyed on either convention work out of the box.
const (
	attrProvider    = "meter.provider"
	attrModel       = "meter.model"
	attrTarget      = "meter.target"
	attrMethodPath  = "meter.method_path"
	attrInputUnits  = "meter.usage.input_units"
	attrOutputUnits = "meter.usage.output_units"
	attrCachedUnits = "meter.usage.cached_input_units"
	attrCostUSD     = "meter.cost_usd"
	attrStreaming   = "meter.streaming"

	attrGenAISystem       = "gen_ai.system"
	attrGenAIModel        = "gen_ai.response.model"
	attrGenAIInputTokens  = "gen_ai.usage.input_tokens"
	attrGenAIOutputTokens = "gen_ai.usage.output_tokens"
)

// startAttributes builds the attribute set a span opens with: caller base
// attributes, ambient baggage, provider, target name, and method path.
func (m *Monitor) startAttributes(ctx context.Context, methodPath string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m.cfg.attributes)+8)
	for key, value := range m.cfg.attributes {
		attrs = append(attrs, attribute.String(key, value))
	}
	for _, member := range baggage.FromContext(ctx).Members() {
		attrs = append(attrs, attribute.String(member.Key(), member.Value()))
	}
	attrs = append(attrs,
		attribute.String(attrProvider, m.provider),
		attribute.String(attrGenAISystem, m.provider),
		attribute.String(attrTarget, m.name),
		attribute.String(attrMethodPath, methodPath),
	)
	return attrs
}

// usageAttributes converts extracted usage plus its computed cost into span
// attributes. Cost must be attached before the span closes: most exporters
// freeze attributes at End.
func usageAttributes(usage *Usage, cost float64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 9)
	attrs = append(attrs,
		attribute.String(attrProvider, usage.Provider),
		attribute.String(attrGenAISystem, usage.Provider),
		attribute.String(attrModel, usage.Model),
		attribute.String(attrGenAIModel, usage.Model),
		attribute.Float64(attrCostUSD, cost),
	)
	if usage.InputUnits != nil {
		attrs = append(attrs,
			attribute.Float64(attrInputUnits, *usage.InputUnits),
			attribute.Int64(attrGenAIInputTokens, int64(*usage.InputUnits)),
		)
	}
	if usage.OutputUnits != nil {
		attrs = append(attrs,
			attribute.Float64(attrOutputUnits, *usage.OutputUnits),
			attribute.Int64(attrGenAIOutputTokens, int64(*usage.OutputUnits)),
		)
	}
	if usage.CachedInputUnits != nil {
		attrs = append(attrs, attribute.Float64(attrCachedUnits, *usage.CachedInputUnits))
	}
	return attrs
}

func (m *Monitor) startSpan(ctx context.Context, spanName, methodPath string) (context.Context, trace.Span) {
	return m.shared.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(m.startAttributes(ctx, methodPath)...),
	)
}

// WithAttributes returns a context whose baggage carries the given key-value
// pairs; every span created inside that context inherits them. Scoping
// follows context semantics: inner values shadow outer ones and vanish when
// the inner context does.
func WithAttributes(ctx context.Context, attributes map[string]string) (context.Context, error) {
	bag := baggage.FromContext(ctx)
	for key, value := range attributes {
		member, err := baggage.NewMember(key, value)
		if err != nil {
			return ctx, err
		}
		bag, err = bag.SetMember(member)
		if err != nil {
			return ctx, err
		}
	}
	return baggage.ContextWithBaggage(ctx, bag), nil
}
