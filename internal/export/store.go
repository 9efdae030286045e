package export

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("export store record not found")

// Store persists and aggregates cost event records.
type Store interface {
	WriteRecord(ctx context.Context, record *Record) error
	WriteBatch(ctx context.Context, records []*Record) error
	CostSummary(ctx context.Context, filter Filter) (*Summary, error)
	CostSeries(ctx context.Context, filter Filter, groupBy, bucket string) ([]Point, error)
	ModelStats(ctx context.Context, filter Filter) ([]ModelStats, error)
}

// Filter narrows aggregate queries. Zero fields match everything.
type Filter struct {
	Provider string
	Model    string
	From     time.Time
	To       time.Time
}

type Summary struct {
	TotalCostUSD     float64
	TotalInputUnits  float64
	TotalOutputUnits float64
	RequestCount     int64
}

type Point struct {
	BucketStart  time.Time
	Group        string
	TotalCostUSD float64
	RequestCount int64
}

type ModelStats struct {
	Provider      string
	Model         string
	RequestCount  int64
	TotalInput    float64
	TotalOutput   float64
	TotalCostUSD  float64
	AvgDurationMS float64
}
