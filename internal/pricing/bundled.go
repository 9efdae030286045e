package pricing

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed data/pricing.json
var bundledJSON []byte

var (
	bundledOnce  sync.Once
	bundledTable *Table
)

// Bundled returns the rate table compiled into the binary. It is parsed once
// and shared; callers must treat it as read-only.
func Bundled() *Table {
	bundledOnce.Do(func() {
		table, err := ParseTable(bundledJSON)
		if err != nil {
			// The bundled table is produced by the rate-card build step; a
			// parse failure here is a broken build, not a runtime condition.
			panic(fmt.Sprintf("pricing: bundled rate table is invalid: %v", err))
		}
		bundledTable = table
	})
	return bundledTable
}

// ParseTable decodes a rate table document and validates its envelope.
func ParseTable(raw []byte) (*Table, error) {
	var table Table
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("decode rate table: %w", err)
	}
	if len(table.Providers) == 0 {
		return nil, fmt.Errorf("rate table has no providers")
	}
	return &table, nil
}
