package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aimeter.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func sqliteTestConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "meter.db")
	configPath = writeTestConfig(t, `
storage:
  driver: sqlite
  path: `+dbPath+`
pricing:
  offline: true
`)
	return configPath, dbPath
}

func TestNormalizeTextJSONFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "text", raw: "text", want: "text"},
		{name: "json", raw: "json", want: "json"},
		{name: "mixed case", raw: "JSON", want: "json"},
		{name: "padded", raw: "  text  ", want: "text"},
		{name: "empty uses default", raw: "", want: "text"},
		{name: "invalid", raw: "yaml", wantErr: true},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := normalizeTextJSONFormat("report", tt.raw, "text")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeTextJSONFormat: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadAndValidateConfigStages(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		configPath, _ := sqliteTestConfig(t)
		cfg, stage, err := loadAndValidateConfig(configPath)
		if err != nil {
			t.Fatalf("loadAndValidateConfig: %v (stage %q)", err, stage)
		}
		if cfg.Storage.Driver != "sqlite" {
			t.Fatalf("driver = %q", cfg.Storage.Driver)
		}
	})

	t.Run("load failure", func(t *testing.T) {
		t.Parallel()
		path := writeTestConfig(t, "storage: [not a mapping")
		_, stage, err := loadAndValidateConfig(path)
		if err == nil || stage != configStageLoad {
			t.Fatalf("stage = %q, err = %v", stage, err)
		}
	})

	t.Run("validate failure", func(t *testing.T) {
		t.Parallel()
		path := writeTestConfig(t, `
storage:
  driver: mysql
`)
		_, stage, err := loadAndValidateConfig(path)
		if err == nil || stage != configStageValidate {
			t.Fatalf("stage = %q, err = %v", stage, err)
		}
	})
}

func TestRunConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		configPath, _ := sqliteTestConfig(t)
		var out, errOut bytes.Buffer
		if code := runConfig([]string{"validate", "-config", configPath}, &out, &errOut); code != 0 {
			t.Fatalf("exit code = %d, stderr: %s", code, errOut.String())
		}
		if !strings.Contains(out.String(), "is valid") {
			t.Fatalf("stdout = %q", out.String())
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		path := writeTestConfig(t, `
storage:
  driver: sqlite
  path: ""
`)
		var out, errOut bytes.Buffer
		if code := runConfig([]string{"validate", "-config", path}, &out, &errOut); code != 1 {
			t.Fatalf("exit code = %d", code)
		}
		if !strings.Contains(errOut.String(), "config is invalid") {
			t.Fatalf("stderr = %q", errOut.String())
		}
	})

	t.Run("rejects positional arguments", func(t *testing.T) {
		t.Parallel()
		var out, errOut bytes.Buffer
		if code := runConfig([]string{"validate", "extra"}, &out, &errOut); code != 2 {
			t.Fatalf("exit code = %d", code)
		}
	})

	t.Run("unknown subcommand", func(t *testing.T) {
		t.Parallel()
		var out, errOut bytes.Buffer
		if code := runConfig([]string{"frobnicate"}, &out, &errOut); code != 2 {
			t.Fatalf("exit code = %d", code)
		}
	})
}

func TestRunDispatch(t *testing.T) {
	t.Parallel()

	if code := run(nil); code != 2 {
		t.Fatalf("no args exit code = %d, want 2", code)
	}
	if code := run([]string{"unknown"}); code != 2 {
		t.Fatalf("unknown command exit code = %d, want 2", code)
	}
	if code := run([]string{"version"}); code != 0 {
		t.Fatalf("version exit code = %d, want 0", code)
	}
}
