package meter

import (
	"context"
	"encoding/json"

	"github.com/ongoingai/meter/internal/export"
)

// StoreExporter persists cost events to a local database through a buffered
// background writer. Use it with WithExporter to keep a queryable record of
// spend alongside the span pipeline.
type StoreExporter struct {
	writer *export.Writer
	store  interface{ Close() error }
}

// NewSQLiteExporter opens (creating if needed) a sqlite cost event database
// at path and starts the write pipeline.
func NewSQLiteExporter(path string) (*StoreExporter, error) {
	store, err := export.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return newStoreExporter(store, store), nil
}

// NewPostgresExporter connects to a postgres cost event database and starts
// the write pipeline.
func NewPostgresExporter(dsn string) (*StoreExporter, error) {
	store, err := export.NewPostgresStore(dsn)
	if err != nil {
		return nil, err
	}
	return newStoreExporter(store, store), nil
}

func newStoreExporter(store export.Store, closer interface{ Close() error }) *StoreExporter {
	writer := export.NewWriter(store, 256)
	writer.SetWriteFailureHandler(func(failure export.WriteFailure) {
		logger().Warn("cost event write failed",
			"operation", failure.Operation,
			"failed_count", failure.FailedCount,
			"error_class", failure.ErrorClass,
			"error", failure.Err,
		)
	})
	writer.Start(context.Background())
	return &StoreExporter{writer: writer, store: closer}
}

// ExportCostEvent enqueues the event for persistence. It never blocks; when
// the queue is full the event is dropped and counted.
func (e *StoreExporter) ExportCostEvent(event *CostEvent) {
	if e == nil || event == nil {
		return
	}
	attributes := "{}"
	if len(event.Attributes) > 0 {
		if raw, err := json.Marshal(event.Attributes); err == nil {
			attributes = string(raw)
		}
	}
	e.writer.Enqueue(&export.Record{
		Timestamp:        event.Time,
		SpanName:         event.SpanName,
		MethodPath:       event.MethodPath,
		Provider:         event.Provider,
		Model:            event.Model,
		InputUnits:       event.InputUnits,
		OutputUnits:      event.OutputUnits,
		CachedInputUnits: event.CachedInputUnits,
		CostUSD:          event.CostUSD,
		DurationMS:       event.Duration.Milliseconds(),
		Attributes:       attributes,
	})
}

// Shutdown drains the queue, flushes pending batches, and closes the store.
func (e *StoreExporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	err := e.writer.Shutdown(ctx)
	if closeErr := e.store.Close(); err == nil {
		err = closeErr
	}
	return err
}
