package pricing

import (
	"math"
	"testing"

	"github.com/ongoingai/meter/internal/providers"
)

func TestCostTokenRates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		usage *providers.Usage
		rate  *Rate
		want  float64
	}{
		{
			name: "per million tokens input and output",
			usage: &providers.Usage{
				InputUnits:  providers.Float(1000),
				OutputUnits: providers.Float(500),
			},
			rate: &Rate{
				Unit:   UnitPerMillionTokens,
				Input:  providers.Float(2.5),
				Output: providers.Float(10),
			},
			want: (1000.0/1e6)*2.5 + (500.0/1e6)*10,
		},
		{
			name: "per thousand characters",
			usage: &providers.Usage{
				InputUnits: providers.Float(2400),
			},
			rate: &Rate{
				Unit:  UnitPerThousandChars,
				Input: providers.Float(0.3),
			},
			want: (2400.0 / 1000) * 0.3,
		},
		{
			name: "cached input discounted separately",
			usage: &providers.Usage{
				InputUnits:       providers.Float(1000),
				CachedInputUnits: providers.Float(4000),
			},
			rate: &Rate{
				Unit:        UnitPerMillionTokens,
				Input:       providers.Float(3),
				CachedInput: providers.Float(0.3),
			},
			want: (1000.0/1e6)*3 + (4000.0/1e6)*0.3,
		},
		{
			name: "per second duration billing",
			usage: &providers.Usage{
				OutputUnits: providers.Float(8),
			},
			rate: &Rate{
				Unit:   UnitPerSecond,
				Output: providers.Float(0.5),
			},
			want: 8 * 0.5,
		},
		{
			name:  "nil usage",
			usage: nil,
			rate:  &Rate{Unit: UnitPerMillionTokens, Input: providers.Float(1)},
			want:  0,
		},
		{
			name:  "nil rate",
			usage: &providers.Usage{InputUnits: providers.Float(100)},
			rate:  nil,
			want:  0,
		},
		{
			name: "negative rate component ignored",
			usage: &providers.Usage{
				InputUnits:  providers.Float(1000),
				OutputUnits: providers.Float(1000),
			},
			rate: &Rate{
				Unit:   UnitPerMillionTokens,
				Input:  providers.Float(-5),
				Output: providers.Float(10),
			},
			want: (1000.0 / 1e6) * 10,
		},
		{
			name: "NaN rate component ignored",
			usage: &providers.Usage{
				InputUnits: providers.Float(1000),
			},
			rate: &Rate{
				Unit:  UnitPerMillionTokens,
				Input: providers.Float(math.NaN()),
			},
			want: 0,
		},
		{
			name: "negative usage reads as zero",
			usage: &providers.Usage{
				InputUnits:  providers.Float(-50),
				OutputUnits: providers.Float(100),
			},
			rate: &Rate{
				Unit:   UnitPerMillionTokens,
				Input:  providers.Float(3),
				Output: providers.Float(15),
			},
			want: (100.0 / 1e6) * 15,
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Cost(tt.usage, tt.rate)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("Cost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCostFlatRates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		usage *providers.Usage
		rate  *Rate
		want  float64
	}{
		{
			name: "per image multiplied by output count",
			usage: &providers.Usage{
				OutputUnits: providers.Float(3),
			},
			rate: &Rate{
				Unit: UnitPerImage,
				Cost: providers.Float(0.04),
			},
			want: 0.12,
		},
		{
			name:  "per image with no output count bills once",
			usage: &providers.Usage{},
			rate: &Rate{
				Unit: UnitPerRequest,
				Cost: providers.Float(0.025),
			},
			want: 0.025,
		},
		{
			name: "flat cost on token unit charged once",
			usage: &providers.Usage{
				OutputUnits: providers.Float(500),
			},
			rate: &Rate{
				Unit: UnitPerMillionTokens,
				Cost: providers.Float(0.01),
			},
			want: 0.01,
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Cost(tt.usage, tt.rate)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("Cost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCostPricesByType(t *testing.T) {
	t.Parallel()

	t.Run("per-type prices replace flat computation", func(t *testing.T) {
		t.Parallel()

		rate := &Rate{
			Unit: UnitPerImage,
			Cost: providers.Float(2),
			PricesByType: map[string]float64{
				"output_images_4k": 0.10,
				"output_images_hd": 0.05,
			},
		}
		usage := &providers.Usage{
			OutputUnits: providers.Float(4),
			UsageByType: map[string]float64{
				"output_images_4k": 4,
			},
		}
		got := Cost(usage, rate)
		want := 4.0 * 0.10
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("Cost() = %v, want %v (per-type only, flat ignored)", got, want)
		}
	})

	t.Run("no key intersection falls back to flat rates", func(t *testing.T) {
		t.Parallel()

		rate := &Rate{
			Unit:   UnitPerMillionTokens,
			Input:  providers.Float(5),
			Output: providers.Float(15),
			PricesByType: map[string]float64{
				"output_images_4k": 0.10,
				"output_images_hd": 0.05,
			},
		}
		usage := &providers.Usage{
			OutputUnits: providers.Float(500),
			UsageByType: map[string]float64{
				"audio_seconds": 12,
			},
		}
		got := Cost(usage, rate)
		want := (500.0 / 1e6) * 15
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("Cost() = %v, want %v (flat fallback)", got, want)
		}
	})

	t.Run("matched key with invalid price still suppresses fallback", func(t *testing.T) {
		t.Parallel()

		badRate := &Rate{
			Unit:   UnitPerMillionTokens,
			Output: providers.Float(15),
			PricesByType: map[string]float64{
				"output_images": -1,
			},
		}
		usage := &providers.Usage{
			OutputUnits: providers.Float(500),
			UsageByType: map[string]float64{
				"output_images": 2,
			},
		}
		if got := Cost(usage, badRate); got != 0 {
			t.Fatalf("Cost() = %v, want 0 (matched per-type key wins even when its price is invalid)", got)
		}
	})
}
