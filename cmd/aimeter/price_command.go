package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ongoingai/meter/internal/config"
	"github.com/ongoingai/meter/internal/pricing"
	"github.com/ongoingai/meter/internal/providers"
)

const defaultPriceFormat = "text"

type priceDocument struct {
	TableVersion string        `json:"table_version"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Unit         string        `json:"unit"`
	InputRate    *float64      `json:"input_rate,omitempty"`
	OutputRate   *float64      `json:"output_rate,omitempty"`
	CachedRate   *float64      `json:"cached_input_rate,omitempty"`
	FlatCost     *float64      `json:"flat_cost,omitempty"`
	Estimate     *costEstimate `json:"estimate,omitempty"`
}

type costEstimate struct {
	InputUnits  float64 `json:"input_units"`
	OutputUnits float64 `json:"output_units"`
	CachedUnits float64 `json:"cached_input_units"`
	CostUSD     float64 `json:"cost_usd"`
}

func runPrice(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("price", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultPriceFormat, "Output format: text or json")
	provider := flagSet.String("provider", "", "Provider id (openai, anthropic, google, ...)")
	model := flagSet.String("model", "", "Model name to look up")
	inputUnits := flagSet.Float64("input", 0, "Input units to estimate (tokens, characters, ...)")
	outputUnits := flagSet.Float64("output", 0, "Output units to estimate")
	cachedUnits := flagSet.Float64("cached", 0, "Cached input units to estimate")
	refresh := flagSet.Bool("refresh", false, "Fetch the latest pricing table before lookup")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "price does not accept positional arguments")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("price", *format, defaultPriceFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	if strings.TrimSpace(*provider) == "" || strings.TrimSpace(*model) == "" {
		fmt.Fprintln(errOut, "price requires -provider and -model")
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		if stage == configStageLoad {
			fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		} else {
			fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		}
		return 1
	}

	manager, err := pricingManager(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to configure pricing: %v\n", err)
		return 1
	}

	table := manager.Current()
	if *refresh {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		table = manager.Refresh(ctx)
		cancel()
	}

	rate := pricing.Lookup(strings.TrimSpace(*provider), strings.TrimSpace(*model), table)
	if rate == nil {
		fmt.Fprintf(errOut, "no rate entry for model %q\n", *model)
		return 1
	}

	doc := priceDocument{
		TableVersion: table.Version,
		Provider:     strings.TrimSpace(*provider),
		Model:        strings.TrimSpace(*model),
		Unit:         string(rate.Unit),
		InputRate:    rate.Input,
		OutputRate:   rate.Output,
		CachedRate:   rate.CachedInput,
		FlatCost:     rate.Cost,
	}
	if *inputUnits > 0 || *outputUnits > 0 || *cachedUnits > 0 {
		usage := &providers.Usage{
			Provider:         strings.TrimSpace(*provider),
			Model:            strings.TrimSpace(*model),
			InputUnits:       providers.Float(*inputUnits),
			OutputUnits:      providers.Float(*outputUnits),
			CachedInputUnits: providers.Float(*cachedUnits),
		}
		doc.Estimate = &costEstimate{
			InputUnits:  *inputUnits,
			OutputUnits: *outputUnits,
			CachedUnits: *cachedUnits,
			CostUSD:     pricing.Cost(usage, rate),
		}
	}

	if err := writePrice(out, normalizedFormat, doc); err != nil {
		fmt.Fprintf(errOut, "failed to write price output: %v\n", err)
		return 1
	}

	return 0
}

func pricingManager(cfg config.Config) (*pricing.Manager, error) {
	manager := pricing.Default()
	manager.SetOffline(cfg.Pricing.Offline)

	if cfg.Pricing.PrimaryURL != "" || cfg.Pricing.FallbackURL != "" {
		if err := manager.SetSources(cfg.Pricing.PrimaryURL, cfg.Pricing.FallbackURL); err != nil {
			return nil, err
		}
	}
	if raw := strings.TrimSpace(cfg.Pricing.RefreshInterval); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse pricing.refresh_interval: %w", err)
		}
		if err := manager.SetRefreshInterval(interval); err != nil {
			return nil, err
		}
	}
	if raw := strings.TrimSpace(cfg.Pricing.FetchTimeout); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse pricing.fetch_timeout: %w", err)
		}
		if err := manager.SetFetchTimeout(timeout); err != nil {
			return nil, err
		}
	}

	return manager, nil
}

func writePrice(out io.Writer, format string, doc priceDocument) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	}

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(writer, "Table version\t%s\n", valueOr(doc.TableVersion, "(unknown)"))
	fmt.Fprintf(writer, "Provider\t%s\n", doc.Provider)
	fmt.Fprintf(writer, "Model\t%s\n", doc.Model)
	fmt.Fprintf(writer, "Unit\t%s\n", valueOr(doc.Unit, "(default)"))
	if doc.InputRate != nil {
		fmt.Fprintf(writer, "Input rate\t%.6f\n", *doc.InputRate)
	}
	if doc.OutputRate != nil {
		fmt.Fprintf(writer, "Output rate\t%.6f\n", *doc.OutputRate)
	}
	if doc.CachedRate != nil {
		fmt.Fprintf(writer, "Cached input rate\t%.6f\n", *doc.CachedRate)
	}
	if doc.FlatCost != nil {
		fmt.Fprintf(writer, "Flat cost\t%.6f\n", *doc.FlatCost)
	}
	if doc.Estimate != nil {
		fmt.Fprintf(writer, "Estimated cost (USD)\t%.6f\n", doc.Estimate.CostUSD)
	}
	return writer.Flush()
}
