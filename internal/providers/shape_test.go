package providers

import (
	"encoding/json"
	"testing"
)

func TestShapeNormalization(t *testing.T) {
	t.Parallel()

	t.Run("map passes through", func(t *testing.T) {
		t.Parallel()
		in := map[string]any{"model": "gpt-4o"}
		if got := Shape(in); got["model"] != "gpt-4o" {
			t.Fatalf("Shape = %v", got)
		}
	})

	t.Run("json bytes parse", func(t *testing.T) {
		t.Parallel()
		got := Shape([]byte(`{"usage":{"input_tokens":3}}`))
		if got == nil || mapField(got, "usage") == nil {
			t.Fatalf("Shape = %v", got)
		}
	})

	t.Run("non objects return nil", func(t *testing.T) {
		t.Parallel()
		for _, in := range []any{nil, "text", 7, 1.5, true, []byte(`[1,2]`), []byte("")} {
			if got := Shape(in); got != nil {
				t.Errorf("Shape(%v) = %v, want nil", in, got)
			}
		}
	})

	t.Run("channels cannot be viewed", func(t *testing.T) {
		t.Parallel()
		if got := Shape(make(chan int)); got != nil {
			t.Fatalf("Shape(chan) = %v, want nil", got)
		}
	})
}

func TestNumberFieldCoercions(t *testing.T) {
	t.Parallel()

	values := map[string]any{
		"f64":  float64(1.5),
		"f32":  float32(2),
		"int":  3,
		"i64":  int64(4),
		"num":  json.Number("5"),
		"bad":  json.Number("not-a-number"),
		"text": "6",
	}

	tests := []struct {
		key    string
		want   float64
		wantOK bool
	}{
		{"f64", 1.5, true},
		{"f32", 2, true},
		{"int", 3, true},
		{"i64", 4, true},
		{"num", 5, true},
		{"bad", 0, false},
		{"text", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		got, ok := numberField(values, tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("numberField(%q) = %v, %v; want %v, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}

	// First present key wins regardless of later candidates.
	if got, ok := numberField(values, "missing", "i64", "int"); !ok || got != 4 {
		t.Errorf("numberField fallback = %v, %v", got, ok)
	}
}
