package meter

import "context"

// BeforeRequestHook runs before the underlying call. It is the only hook
// allowed to affect control flow: a non-nil error aborts the call, closes
// the span with error status, and is returned to the caller.
type BeforeRequestHook func(ctx context.Context, req *RequestInfo) error

// AfterResponseHook runs after a successful call or stream completion.
// Failures (panics) inside it are logged and swallowed.
type AfterResponseHook func(ctx context.Context, resp *ResponseInfo)

// OnErrorHook runs after a failed call or stream. Failures inside it are
// logged and swallowed; the original error always reaches the caller.
type OnErrorHook func(ctx context.Context, errInfo *ErrorInfo)

// StreamingCostHook receives the running cost of a wrapped stream after each
// usage-bearing chunk (isComplete=false) and exactly once at stream
// termination (isComplete=true).
type StreamingCostHook func(cost float64, usage *Usage, isComplete bool)

type config struct {
	name            string
	provider        string
	attributes      map[string]string
	beforeRequest   BeforeRequestHook
	afterResponse   AfterResponseHook
	onError         OnErrorHook
	onStreamingCost StreamingCostHook
	exporter        Exporter
}

// Option configures a Monitor at Wrap time.
type Option func(*config)

// WithName sets the client name used as the span-name prefix. Defaults to
// the wrapped client's type name.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithProvider pins the provider instead of detecting it.
func WithProvider(provider string) Option {
	return func(c *config) { c.provider = provider }
}

// WithSpanAttributes adds base attributes to every span the monitor creates.
func WithSpanAttributes(attributes map[string]string) Option {
	return func(c *config) {
		if c.attributes == nil {
			c.attributes = make(map[string]string, len(attributes))
		}
		for k, v := range attributes {
			c.attributes[k] = v
		}
	}
}

// WithBeforeRequest installs the pre-call hook.
func WithBeforeRequest(hook BeforeRequestHook) Option {
	return func(c *config) { c.beforeRequest = hook }
}

// WithAfterResponse installs the post-call hook.
func WithAfterResponse(hook AfterResponseHook) Option {
	return func(c *config) { c.afterResponse = hook }
}

// WithOnError installs the error hook.
func WithOnError(hook OnErrorHook) Option {
	return func(c *config) { c.onError = hook }
}

// WithStreamingCost installs the per-chunk streaming cost callback.
func WithStreamingCost(hook StreamingCostHook) Option {
	return func(c *config) { c.onStreamingCost = hook }
}

// WithExporter publishes every finished cost event to an exporter.
func WithExporter(exporter Exporter) Option {
	return func(c *config) { c.exporter = exporter }
}
