package pricing

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

type aliasTarget struct {
	provider string
	model    string
}

var aliases = struct {
	mu      sync.RWMutex
	entries map[string]aliasTarget
}{entries: make(map[string]aliasTarget)}

// SetAlias redirects rate-table lookups for an alias key to a canonical
// (provider, model) pair. The alias may be provider-qualified as
// "<provider>:<alias>"; qualified aliases take precedence over generic ones
// for the same alias string.
func SetAlias(alias, provider, model string) error {
	alias = strings.TrimSpace(alias)
	provider = strings.TrimSpace(provider)
	model = strings.TrimSpace(model)
	if alias == "" {
		return fmt.Errorf("model alias cannot be empty")
	}
	if provider == "" || model == "" {
		return fmt.Errorf("model alias %q needs a target provider and model", alias)
	}

	aliases.mu.Lock()
	aliases.entries[alias] = aliasTarget{provider: provider, model: model}
	aliases.mu.Unlock()
	return nil
}

// ClearAliases removes all registered model aliases.
func ClearAliases() {
	aliases.mu.Lock()
	aliases.entries = make(map[string]aliasTarget)
	aliases.mu.Unlock()
}

func resolveAlias(key string) (aliasTarget, bool) {
	aliases.mu.RLock()
	target, ok := aliases.entries[key]
	aliases.mu.RUnlock()
	return target, ok
}

// trailing ISO date such as -2025-05-14 on dated model snapshots.
var dateSuffix = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}$`)

// Lookup resolves a (provider, model) pair to a rate entry. Tried in order,
// first hit wins:
//  1. provider-qualified alias "<provider>:<model>"
//  2. generic alias "<model>"
//  3. exact row
//  4. row with a trailing ISO date suffix removed
//  5. row with a leading "<namespace>/" prefix removed
//
// Returns nil only when none of these resolve.
func Lookup(provider, model string, table *Table) *Rate {
	if table == nil || provider == "" || model == "" {
		return nil
	}

	if target, ok := resolveAlias(provider + ":" + model); ok {
		if rate := exactRow(target.provider, target.model, table); rate != nil {
			return rate
		}
	}
	if target, ok := resolveAlias(model); ok {
		if rate := exactRow(target.provider, target.model, table); rate != nil {
			return rate
		}
	}

	if rate := exactRow(provider, model, table); rate != nil {
		return rate
	}
	if undated := dateSuffix.ReplaceAllString(model, ""); undated != model {
		if rate := exactRow(provider, undated, table); rate != nil {
			return rate
		}
	}
	if slash := strings.Index(model, "/"); slash > 0 && slash < len(model)-1 {
		if rate := exactRow(provider, model[slash+1:], table); rate != nil {
			return rate
		}
	}
	return nil
}

func exactRow(provider, model string, table *Table) *Rate {
	models, ok := table.Providers[provider]
	if !ok {
		return nil
	}
	rate, ok := models[model]
	if !ok {
		return nil
	}
	return &rate
}
