package meter

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ongoingai/meter/internal/observability"
	"github.com/ongoingai/meter/internal/pricing"
	"github.com/ongoingai/meter/internal/providers"
)

const tracerName = "ongoingai.meter"

// tagTable associates client objects with an explicit provider id. An
// explicit tag always wins over detection. Keys must be pointer-shaped
// clients; tagging a non-hashable value is rejected.
var tagTable = struct {
	mu      sync.Mutex
	entries map[any]string
}{entries: make(map[any]string)}

// Tag pins the provider for a client object before wrapping it.
func Tag(client any, provider string) error {
	if client == nil {
		return fmt.Errorf("cannot tag a nil client")
	}
	kind := reflect.ValueOf(client).Kind()
	if kind != reflect.Pointer && kind != reflect.Map && kind != reflect.Chan && kind != reflect.Func {
		return fmt.Errorf("cannot tag a %s client: pass a pointer", kind)
	}
	tagTable.mu.Lock()
	tagTable.entries[client] = provider
	tagTable.mu.Unlock()
	return nil
}

func taggedProvider(client any) (string, bool) {
	if client == nil {
		return "", false
	}
	kind := reflect.ValueOf(client).Kind()
	if kind != reflect.Pointer && kind != reflect.Map && kind != reflect.Chan && kind != reflect.Func {
		return "", false
	}
	tagTable.mu.Lock()
	provider, ok := tagTable.entries[client]
	tagTable.mu.Unlock()
	return provider, ok
}

// shared is the state common to a monitor and all its wrapped sub-clients.
type shared struct {
	tracer trace.Tracer

	mu      sync.Mutex
	wrapped map[any]*Monitor
}

// Monitor is the instrumented wrapper around a client object. Calls are
// driven through Invoke with a dotted method path; every non-factory call
// gets a span, usage extraction, and pricing.
type Monitor struct {
	target   any
	name     string
	provider string
	path     []string
	cfg      *config
	shared   *shared
}

// Wrap instruments a client object. The provider is taken from WithProvider,
// an explicit Tag, or structural detection, in that order. Unknown clients
// are still wrapped and still produce spans; their extraction will simply
// find no strategy.
func Wrap(client any, opts ...Option) *Monitor {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	provider := cfg.provider
	if provider == "" {
		if tagged, ok := taggedProvider(client); ok {
			provider = tagged
		}
	}
	if provider == "" {
		provider = providers.Detect(client)
	}

	name := cfg.name
	if name == "" {
		name = defaultClientName(client)
	}

	return &Monitor{
		target:   client,
		name:     name,
		provider: provider,
		cfg:      cfg,
		shared: &shared{
			tracer:  otel.Tracer(tracerName),
			wrapped: make(map[any]*Monitor),
		},
	}
}

func defaultClientName(client any) string {
	if client == nil {
		return "client"
	}
	t := reflect.TypeOf(client)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "client"
	}
	return t.Name()
}

// Target returns the original unwrapped client.
func (m *Monitor) Target() any {
	return m.target
}

// Provider returns the provider id this monitor meters against.
func (m *Monitor) Provider() string {
	return m.provider
}

// Invoke resolves a dotted method path on the wrapped client and calls it
// with full instrumentation. Intermediate segments resolve to exported
// fields or zero-argument factory methods; the final segment must be a
// method. The caller observes the same success/failure contract as the
// unwrapped client, with panics normalized to errors.
func (m *Monitor) Invoke(ctx context.Context, methodPath string, args ...any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	segments := strings.Split(methodPath, ".")

	recv := reflect.ValueOf(m.target)
	walked := append([]string{}, m.path...)
	for i, segment := range segments {
		if i == len(segments)-1 {
			return m.invokeFinal(ctx, recv, walked, segment, args)
		}
		next, ok := m.resolveSegment(ctx, recv, walked, segment)
		if !ok {
			return nil, fmt.Errorf("%s: no member %q on %s", methodPath, segment, m.name)
		}
		recv = next
		walked = append(walked, segment)
	}
	return nil, fmt.Errorf("empty method path")
}

// resolveSegment resolves a non-final path segment: an exported field, or a
// zero-argument method treated as a sub-client accessor.
func (m *Monitor) resolveSegment(ctx context.Context, recv reflect.Value, walked []string, segment string) (reflect.Value, bool) {
	if providers.IsBlockedMember(segment) {
		return reflect.Value{}, false
	}
	if field, ok := fieldMember(recv, segment); ok {
		return field, true
	}
	method, ok := methodMember(recv, segment)
	if !ok {
		return reflect.Value{}, false
	}
	payload, err := callReflect(ctx, method, strings.Join(append(walked, segment), "."), nil)
	if err != nil || payload == nil {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(payload), true
}

func (m *Monitor) invokeFinal(ctx context.Context, recv reflect.Value, walked []string, prop string, args []any) (any, error) {
	methodPath := append(walked, prop)
	joined := strings.Join(methodPath, ".")

	method, ok := methodMember(recv, prop)
	if !ok {
		return nil, fmt.Errorf("%s: no method %q on %s", joined, prop, m.name)
	}

	// Blocked members and factory methods call through without a span.
	// Factory results that look like nested clients come back wrapped so
	// chained usage stays instrumented.
	if providers.IsBlockedMember(prop) {
		return callReflect(ctx, method, joined, args)
	}
	if providers.IsFactoryMethod(m.provider, prop) {
		payload, err := callReflect(ctx, method, joined, args)
		if err != nil {
			return nil, err
		}
		if shouldProxy(payload, prop) {
			return m.child(payload, methodPath), nil
		}
		return payload, nil
	}

	spanName := m.name + "." + joined
	ctx, span := m.startSpan(ctx, spanName, joined)

	req := &RequestInfo{
		MethodPath: joined,
		Args:       args,
		Provider:   m.provider,
		SpanName:   spanName,
	}

	if m.cfg.beforeRequest != nil {
		if hookErr := m.runBeforeRequest(ctx, req); hookErr != nil {
			// The underlying call never starts. The span closes with error
			// status and the error hook still observes the failure.
			m.failSpan(span, hookErr)
			span.End()
			m.runOnError(ctx, &ErrorInfo{RequestInfo: *req, Err: hookErr})
			return nil, hookErr
		}
	}

	start := time.Now()
	payload, err := callReflect(ctx, method, joined, args)
	duration := time.Since(start)

	if err != nil {
		m.failSpan(span, err)
		span.End()
		m.runOnError(ctx, &ErrorInfo{RequestInfo: *req, Err: err, Duration: duration})
		return nil, err
	}

	if stream, ok := detectStream(payload, joined); ok {
		span.SetAttributes(attribute.Bool(attrStreaming, true))
		return m.newStream(ctx, span, stream, req, start, args), nil
	}

	return m.finishCall(ctx, span, req, payload, args, duration, prop)
}

// finishCall runs the success path: extraction, pricing, capture publish,
// span attributes, hooks, and optional re-wrapping of nested clients.
func (m *Monitor) finishCall(ctx context.Context, span trace.Span, req *RequestInfo, payload any, args []any, duration time.Duration, prop string) (any, error) {
	usage := providers.ExtractUsage(strings.Split(req.MethodPath, "."), payload, args, m.provider)
	cost := m.price(usage)
	if usage == nil {
		logger().Debug("no extraction strategy matched", "method_path", req.MethodPath, "provider", m.provider)
	}

	publishCapture(ctx, cost, usage)
	if usage != nil {
		span.SetAttributes(usageAttributes(usage, cost)...)
	}
	span.SetStatus(codes.Ok, "")
	span.End()

	m.runAfterResponse(ctx, &ResponseInfo{
		RequestInfo: *req,
		Result:      payload,
		Cost:        cost,
		Usage:       usage,
		Duration:    duration,
	})
	m.export(req, usage, cost, duration)

	if shouldProxy(payload, prop) {
		return m.child(payload, strings.Split(req.MethodPath, ".")), nil
	}
	return payload, nil
}

// price resolves the rate for extracted usage and computes its cost. A
// missing rate entry is not an error: it degrades to zero cost with a
// diagnostic log.
func (m *Monitor) price(usage *Usage) float64 {
	if usage == nil {
		return 0
	}
	if usage.RawCost != nil && *usage.RawCost >= 0 {
		return *usage.RawCost
	}
	table := pricing.Default().Current()
	rate := pricing.Lookup(usage.Provider, usage.Model, table)
	if rate == nil {
		logger().Debug("no rate entry for model", "provider", usage.Provider, "model", usage.Model)
		return 0
	}
	return pricing.Cost(usage, rate)
}

// child wraps a nested client, memoizing by identity so the same sub-client
// is never wrapped twice.
func (m *Monitor) child(payload any, path []string) *Monitor {
	hashable := false
	switch reflect.ValueOf(payload).Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func:
		hashable = true
	}

	if hashable {
		m.shared.mu.Lock()
		if existing, ok := m.shared.wrapped[payload]; ok {
			m.shared.mu.Unlock()
			return existing
		}
		m.shared.mu.Unlock()
	}

	childMonitor := &Monitor{
		target:   payload,
		name:     m.name,
		provider: m.provider,
		path:     append([]string{}, path...),
		cfg:      m.cfg,
		shared:   m.shared,
	}

	if hashable {
		m.shared.mu.Lock()
		m.shared.wrapped[payload] = childMonitor
		m.shared.mu.Unlock()
	}
	return childMonitor
}

func (m *Monitor) failSpan(span trace.Span, err error) {
	sanitized := observability.SanitizeMessage(err.Error())
	span.RecordError(fmt.Errorf("%s", sanitized))
	span.SetStatus(codes.Error, sanitized)
}

func (m *Monitor) runBeforeRequest(ctx context.Context, req *RequestInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("beforeRequest hook panicked: %v", r)
		}
	}()
	return m.cfg.beforeRequest(ctx, req)
}

func (m *Monitor) runAfterResponse(ctx context.Context, resp *ResponseInfo) {
	if m.cfg.afterResponse == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger().Warn("afterResponse hook failed", "method_path", resp.MethodPath, "panic", r)
		}
	}()
	m.cfg.afterResponse(ctx, resp)
}

func (m *Monitor) runOnError(ctx context.Context, errInfo *ErrorInfo) {
	if m.cfg.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger().Warn("onError hook failed", "method_path", errInfo.MethodPath, "panic", r)
		}
	}()
	m.cfg.onError(ctx, errInfo)
}

func (m *Monitor) export(req *RequestInfo, usage *Usage, cost float64, duration time.Duration) {
	if m.cfg.exporter == nil || usage == nil {
		return
	}
	event := &CostEvent{
		Time:             time.Now().UTC(),
		SpanName:         req.SpanName,
		MethodPath:       req.MethodPath,
		Provider:         usage.Provider,
		Model:            usage.Model,
		InputUnits:       providers.Value(usage.InputUnits),
		OutputUnits:      providers.Value(usage.OutputUnits),
		CachedInputUnits: providers.Value(usage.CachedInputUnits),
		CostUSD:          cost,
		Duration:         duration,
		Attributes:       m.cfg.attributes,
	}
	m.cfg.exporter.ExportCostEvent(event)
}
