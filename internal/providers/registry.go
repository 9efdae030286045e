package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Custom describes a caller-registered provider. Either Strategy or
// ExtractUsage must be set; when only the extractor pair is given a full
// strategy is synthesized from it.
type Custom struct {
	Name string

	// Detect reports whether a client object belongs to this provider.
	// Optional; without it the provider is only reachable via explicit
	// tagging or the provider option.
	Detect func(client any) bool

	// Strategy is a complete recognizer/extractor.
	Strategy Strategy

	// ExtractUsage returns the partial usage for a result shape, or nil when
	// the shape is not recognized. Used when Strategy is nil.
	ExtractUsage func(path []string, shape map[string]any, args []any) *Usage

	// ExtractModel resolves the model name for a recognized result. Optional;
	// absent or empty resolves to "unknown".
	ExtractModel func(path []string, shape map[string]any, args []any) string

	// FactoryMethods lists additional sub-client factory method names for
	// this provider.
	FactoryMethods []string
}

type registryEntry struct {
	custom   Custom
	strategy Strategy
}

var registry = struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}{entries: make(map[string]registryEntry)}

// Register adds or replaces a custom provider. Custom providers override
// built-in strategies for the same name when a provider hint is in play.
func Register(custom Custom) error {
	name := strings.TrimSpace(custom.Name)
	if name == "" {
		return fmt.Errorf("custom provider name cannot be empty")
	}
	if custom.Strategy == nil && custom.ExtractUsage == nil {
		return fmt.Errorf("custom provider %q needs a strategy or an extractUsage function", name)
	}

	custom.Name = name
	entry := registryEntry{custom: custom, strategy: custom.Strategy}
	if entry.strategy == nil {
		entry.strategy = synthesizedStrategy{custom: custom}
	}

	registry.mu.Lock()
	registry.entries[name] = entry
	registry.mu.Unlock()
	return nil
}

// ResetRegistry removes all custom providers. Intended for tests.
func ResetRegistry() {
	registry.mu.Lock()
	registry.entries = make(map[string]registryEntry)
	registry.mu.Unlock()
}

func customStrategy(name string) (Strategy, bool) {
	registry.mu.RLock()
	entry, ok := registry.entries[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return entry.strategy, true
}

func registeredFactoryMethod(provider, name string) bool {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	entry, ok := registry.entries[provider]
	if !ok {
		return false
	}
	for _, method := range entry.custom.FactoryMethods {
		if method == name {
			return true
		}
	}
	return false
}

// detectCustom runs registered Detect predicates in sorted-name order so the
// outcome does not depend on map iteration.
func detectCustom(client any) string {
	registry.mu.RLock()
	names := make([]string, 0, len(registry.entries))
	for name := range registry.entries {
		names = append(names, name)
	}
	entries := make(map[string]registryEntry, len(registry.entries))
	for name, entry := range registry.entries {
		entries[name] = entry
	}
	registry.mu.RUnlock()

	sort.Strings(names)
	for _, name := range names {
		entry := entries[name]
		if entry.custom.Detect != nil && entry.custom.Detect(client) {
			return name
		}
	}
	return ""
}

// synthesizedStrategy adapts an ExtractUsage/ExtractModel pair into a full
// Strategy: recognition is "does the extractor return usage".
type synthesizedStrategy struct {
	custom Custom
}

func (s synthesizedStrategy) Provider() string {
	return s.custom.Name
}

func (s synthesizedStrategy) CanHandle(path []string, shape map[string]any) bool {
	if shape == nil {
		return false
	}
	return s.custom.ExtractUsage(path, shape, nil) != nil
}

func (s synthesizedStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
	if shape == nil {
		return nil
	}
	usage := s.custom.ExtractUsage(path, shape, args)
	if usage == nil {
		return nil
	}

	model := usage.Model
	if s.custom.ExtractModel != nil {
		if resolved := s.custom.ExtractModel(path, shape, args); resolved != "" {
			model = resolved
		}
	}
	if model == "" {
		model = "unknown"
	}

	out := *usage
	out.Provider = s.custom.Name
	out.Model = model
	return &out
}
