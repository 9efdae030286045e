// Package config loads the aimeter CLI configuration from yaml with
// environment variable overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type PricingConfig struct {
	PrimaryURL      string `yaml:"primary_url"`
	FallbackURL     string `yaml:"fallback_url"`
	Offline         bool   `yaml:"offline"`
	RefreshInterval string `yaml:"refresh_interval"`
	FetchTimeout    string `yaml:"fetch_timeout"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Endpoint               string  `yaml:"endpoint"`
	Insecure               bool    `yaml:"insecure"`
	ServiceName            string  `yaml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled"`
	SamplingRatio          float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "aimeter"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./data/meter.db",
		},
		Pricing: PricingConfig{
			RefreshInterval: "24h",
			FetchTimeout:    "5s",
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
			// Reject multi-document configs to keep runtime configuration
			// unambiguous and avoid hidden trailing documents.
			var trailing any
			trailingErr := decoder.Decode(&trailing)
			if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, trailingErr)
			}
			if trailing != nil {
				return Config{}, fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	driver := strings.TrimSpace(cfg.Storage.Driver)
	switch driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required when storage.driver=sqlite")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("storage.dsn is required when storage.driver=postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, postgres (got %q)", cfg.Storage.Driver)
	}

	if err := validatePricing(cfg.Pricing); err != nil {
		return err
	}
	if err := validateOTelConfig(cfg.Observability.OTel); err != nil {
		return err
	}

	switch level := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", cfg.Logging.Level)
	}
	switch format := strings.ToLower(strings.TrimSpace(cfg.Logging.Format)); format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of text, json (got %q)", cfg.Logging.Format)
	}

	return nil
}

func validatePricing(cfg PricingConfig) error {
	for _, source := range []struct {
		name  string
		value string
	}{
		{"pricing.primary_url", cfg.PrimaryURL},
		{"pricing.fallback_url", cfg.FallbackURL},
	} {
		raw := strings.TrimSpace(source.value)
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", source.name, err)
		}
		if parsed.Scheme != "https" {
			return fmt.Errorf("%s must use https (got %q)", source.name, raw)
		}
	}

	if raw := strings.TrimSpace(cfg.RefreshInterval); raw != "" {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("parse pricing.refresh_interval: %w", err)
		}
	}
	if raw := strings.TrimSpace(cfg.FetchTimeout); raw != "" {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("parse pricing.fetch_timeout: %w", err)
		}
	}

	return nil
}

func validateOTelConfig(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("observability.otel.endpoint is required when observability.otel.enabled=true")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return errors.New("observability.otel.service_name is required when observability.otel.enabled=true")
	}
	if !cfg.TracesEnabled && !cfg.MetricsEnabled {
		return errors.New("observability.otel requires traces_enabled and/or metrics_enabled when enabled")
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %f)", cfg.SamplingRatio)
	}
	if cfg.ExportTimeoutMS <= 0 {
		return fmt.Errorf("observability.otel.export_timeout_ms must be > 0 (got %d)", cfg.ExportTimeoutMS)
	}
	if cfg.MetricExportIntervalMS <= 0 {
		return fmt.Errorf("observability.otel.metric_export_interval_ms must be > 0 (got %d)", cfg.MetricExportIntervalMS)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if driver := os.Getenv("AIMETER_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if path := os.Getenv("AIMETER_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if dsn := os.Getenv("AIMETER_STORAGE_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}

	if primary := os.Getenv("AIMETER_PRICING_URL"); primary != "" {
		cfg.Pricing.PrimaryURL = primary
	}
	if fallback := os.Getenv("AIMETER_PRICING_FALLBACK_URL"); fallback != "" {
		cfg.Pricing.FallbackURL = fallback
	}
	if offline := os.Getenv("AIMETER_PRICING_OFFLINE"); offline != "" {
		parsed, err := strconv.ParseBool(offline)
		if err != nil {
			return fmt.Errorf("invalid AIMETER_PRICING_OFFLINE: %w", err)
		}
		cfg.Pricing.Offline = parsed
	}
	if interval := os.Getenv("AIMETER_PRICING_REFRESH_INTERVAL"); interval != "" {
		cfg.Pricing.RefreshInterval = interval
	}

	if enabled := os.Getenv("AIMETER_OTEL_ENABLED"); enabled != "" {
		parsed, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid AIMETER_OTEL_ENABLED: %w", err)
		}
		cfg.Observability.OTel.Enabled = parsed
	}
	if endpoint := os.Getenv("AIMETER_OTEL_ENDPOINT"); endpoint != "" {
		cfg.Observability.OTel.Endpoint = endpoint
	}
	if serviceName := os.Getenv("AIMETER_OTEL_SERVICE_NAME"); serviceName != "" {
		cfg.Observability.OTel.ServiceName = serviceName
	}

	if level := os.Getenv("AIMETER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("AIMETER_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	return nil
}
