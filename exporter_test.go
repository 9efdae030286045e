package meter

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ongoingai/meter/internal/export"
)

func TestSQLiteExporterPersistsEvents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "costs.db")
	exporter, err := NewSQLiteExporter(path)
	if err != nil {
		t.Fatalf("NewSQLiteExporter: %v", err)
	}

	exporter.ExportCostEvent(&CostEvent{
		Time:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		SpanName:    "client.Chat.Completions.Create",
		MethodPath:  "Chat.Completions.Create",
		Provider:    "openai",
		Model:       "gpt-4o",
		InputUnits:  120,
		OutputUnits: 40,
		CostUSD:     0.0007,
		Duration:    420 * time.Millisecond,
		Attributes:  map[string]string{"team": "search"},
	})
	exporter.ExportCostEvent(&CostEvent{
		Time:        time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC),
		SpanName:    "client.Messages.Create",
		MethodPath:  "Messages.Create",
		Provider:    "anthropic",
		Model:       "claude-sonnet-4",
		InputUnits:  300,
		OutputUnits: 90,
		CostUSD:     0.0023,
		Duration:    900 * time.Millisecond,
	})
	// Nil events are ignored rather than persisted as empty rows.
	exporter.ExportCostEvent(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := exporter.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	store, err := export.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	summary, err := store.CostSummary(context.Background(), export.Filter{})
	if err != nil {
		t.Fatalf("CostSummary: %v", err)
	}
	if summary.RequestCount != 2 {
		t.Fatalf("request count = %d, want 2", summary.RequestCount)
	}
	if math.Abs(summary.TotalCostUSD-0.0030) > 1e-12 {
		t.Fatalf("total cost = %v", summary.TotalCostUSD)
	}
	if summary.TotalInputUnits != 420 || summary.TotalOutputUnits != 130 {
		t.Fatalf("units = %v/%v", summary.TotalInputUnits, summary.TotalOutputUnits)
	}

	openai, err := store.CostSummary(context.Background(), export.Filter{Provider: "openai"})
	if err != nil {
		t.Fatalf("CostSummary openai: %v", err)
	}
	if openai.RequestCount != 1 || math.Abs(openai.TotalCostUSD-0.0007) > 1e-12 {
		t.Fatalf("openai summary = %+v", openai)
	}
}

func TestSQLiteExporterShutdownIsIdempotentOnNil(t *testing.T) {
	t.Parallel()

	var exporter *StoreExporter
	if err := exporter.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
	exporter.ExportCostEvent(&CostEvent{Provider: "openai"})
}

func TestSQLiteExporterRejectsBadPath(t *testing.T) {
	t.Parallel()

	if _, err := NewSQLiteExporter(""); err == nil {
		t.Fatal("expected error for empty database path")
	}
}
