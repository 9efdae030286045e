// Package export persists cost events to local storage for offline
// reporting. Events flow through a buffered writer into a sqlite or
// postgres store; the query side powers the aimeter report command.
package export

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Record is one persisted cost event.
type Record struct {
	ID               string
	Timestamp        time.Time
	SpanName         string
	MethodPath       string
	Provider         string
	Model            string
	InputUnits       float64
	OutputUnits      float64
	CachedInputUnits float64
	CostUSD          float64
	DurationMS       int64
	Attributes       string
	CreatedAt        time.Time
}

func normalizeRecord(in *Record) *Record {
	row := *in
	now := time.Now().UTC()

	if row.ID == "" {
		row.ID = newRecordID()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = now
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.Provider == "" {
		row.Provider = "unknown"
	}
	if row.Model == "" {
		row.Model = "unknown"
	}
	if row.Attributes == "" {
		row.Attributes = "{}"
	}
	return &row
}

func newRecordID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(buf)
}
