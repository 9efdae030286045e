package pricing

import (
	"testing"

	"github.com/ongoingai/meter/internal/providers"
)

func lookupTestTable() *Table {
	return &Table{
		Version: "test",
		Providers: map[string]map[string]Rate{
			"openai": {
				"gpt-4o": {Unit: UnitPerMillionTokens, Input: providers.Float(2.5), Output: providers.Float(10)},
			},
			"anthropic": {
				"claude-sonnet-4": {Unit: UnitPerMillionTokens, Input: providers.Float(3), Output: providers.Float(15)},
			},
			"fal": {
				"flux/dev": {Unit: UnitPerImage, Cost: providers.Float(0.025)},
				"veo2":     {Unit: UnitPerSecond, Cost: providers.Float(0.5)},
			},
		},
	}
}

func TestLookupResolutionOrder(t *testing.T) {
	table := lookupTestTable()

	tests := []struct {
		name     string
		provider string
		model    string
		wantNil  bool
		want     *float64
	}{
		{
			name:     "exact row",
			provider: "openai",
			model:    "gpt-4o",
			want:     providers.Float(2.5),
		},
		{
			name:     "date suffix stripped",
			provider: "anthropic",
			model:    "claude-sonnet-4-2025-05-14",
			want:     providers.Float(3),
		},
		{
			name:     "namespace prefix stripped",
			provider: "fal",
			model:    "fal-ai/veo2",
			want:     nil,
		},
		{
			name:     "unknown model",
			provider: "openai",
			model:    "gpt-99",
			wantNil:  true,
		},
		{
			name:     "unknown provider",
			provider: "mistral",
			model:    "gpt-4o",
			wantNil:  true,
		},
		{
			name:     "empty provider",
			provider: "",
			model:    "gpt-4o",
			wantNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate := Lookup(tt.provider, tt.model, table)
			if tt.wantNil {
				if rate != nil {
					t.Fatalf("Lookup(%q, %q) = %+v, want nil", tt.provider, tt.model, rate)
				}
				return
			}
			if rate == nil {
				t.Fatalf("Lookup(%q, %q) = nil, want a rate", tt.provider, tt.model)
			}
			if tt.want != nil {
				if rate.Input == nil || *rate.Input != *tt.want {
					t.Fatalf("Lookup(%q, %q).Input = %v, want %v", tt.provider, tt.model, rate.Input, *tt.want)
				}
			}
		})
	}
}

func TestLookupNamespacePrefix(t *testing.T) {
	table := lookupTestTable()

	rate := Lookup("fal", "fal-ai/veo2", table)
	if rate == nil {
		t.Fatal("Lookup() = nil, want rate resolved via namespace prefix strip")
	}
	if rate.Unit != UnitPerSecond {
		t.Fatalf("Lookup().Unit = %q, want %q", rate.Unit, UnitPerSecond)
	}
}

func TestLookupAliases(t *testing.T) {
	table := lookupTestTable()
	t.Cleanup(ClearAliases)

	if err := SetAlias("my-chat-model", "openai", "gpt-4o"); err != nil {
		t.Fatalf("SetAlias() error: %v", err)
	}
	if err := SetAlias("anthropic:my-chat-model", "anthropic", "claude-sonnet-4"); err != nil {
		t.Fatalf("SetAlias() qualified error: %v", err)
	}

	generic := Lookup("google", "my-chat-model", table)
	if generic == nil || generic.Input == nil || *generic.Input != 2.5 {
		t.Fatalf("generic alias resolved %+v, want openai gpt-4o rate", generic)
	}

	qualified := Lookup("anthropic", "my-chat-model", table)
	if qualified == nil || qualified.Input == nil || *qualified.Input != 3 {
		t.Fatalf("qualified alias resolved %+v, want anthropic claude-sonnet-4 rate", qualified)
	}

	ClearAliases()
	if rate := Lookup("google", "my-chat-model", table); rate != nil {
		t.Fatalf("Lookup after ClearAliases() = %+v, want nil", rate)
	}
}

func TestSetAliasValidation(t *testing.T) {
	tests := []struct {
		name     string
		alias    string
		provider string
		model    string
	}{
		{name: "empty alias", alias: "", provider: "openai", model: "gpt-4o"},
		{name: "missing provider", alias: "x", provider: "", model: "gpt-4o"},
		{name: "missing model", alias: "x", provider: "openai", model: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := SetAlias(tt.alias, tt.provider, tt.model); err == nil {
				t.Fatal("SetAlias() error = nil, want validation error")
			}
		})
	}
}
