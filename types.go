package meter

import (
	"time"

	"github.com/ongoingai/meter/internal/providers"
)

// Usage is the normalized billable-quantity record produced by extraction.
type Usage = providers.Usage

// Strategy is a provider-specific recognizer and extractor over response
// shapes. Integrators registering a new provider may supply one directly.
type Strategy = providers.Strategy

// CustomProvider describes a caller-registered provider: a detection
// predicate, a full Strategy or an ExtractUsage/ExtractModel pair, and any
// additional factory method names.
type CustomProvider = providers.Custom

// Float returns a pointer to v, for building Usage literals.
func Float(v float64) *float64 {
	return providers.Float(v)
}

// RequestInfo is the read-only context handed to the BeforeRequest hook.
type RequestInfo struct {
	MethodPath string
	Args       []any
	Provider   string
	SpanName   string
}

// ResponseInfo is handed to the AfterResponse hook once a call (or stream)
// has finished successfully.
type ResponseInfo struct {
	RequestInfo
	Result   any
	Cost     float64
	Usage    *Usage
	Duration time.Duration
}

// ErrorInfo is handed to the OnError hook. PartialUsage carries whatever a
// stream had accumulated before failing.
type ErrorInfo struct {
	RequestInfo
	Err          error
	Duration     time.Duration
	PartialUsage *Usage
}

// CostEvent is what the monitor publishes to an Exporter for every finished
// metered call.
type CostEvent struct {
	Time             time.Time
	SpanName         string
	MethodPath       string
	Provider         string
	Model            string
	InputUnits       float64
	OutputUnits      float64
	CachedInputUnits float64
	CostUSD          float64
	Duration         time.Duration
	Attributes       map[string]string
}

// Exporter receives finished cost events, typically backed by the buffered
// relational writer in internal/export. Implementations must not block.
type Exporter interface {
	ExportCostEvent(event *CostEvent)
}
