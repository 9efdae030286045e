package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ongoingai/meter/internal/config"
	"github.com/ongoingai/meter/internal/export"
)

const (
	defaultReportFormat = "text"
	reportSchemaVersion = "report.v1"
)

type reportDocument struct {
	SchemaVersion string               `json:"schema_version"`
	GeneratedAt   time.Time            `json:"generated_at"`
	Storage       reportStorageInfo    `json:"storage"`
	Filters       reportFilterInfo     `json:"filters"`
	Summary       reportSummaryInfo    `json:"summary"`
	Providers     []reportProviderInfo `json:"providers"`
	Models        []reportModelInfo    `json:"models"`
	Daily         []reportDailyInfo    `json:"daily"`
}

type reportStorageInfo struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
}

type reportFilterInfo struct {
	Provider string     `json:"provider,omitempty"`
	Model    string     `json:"model,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

type reportSummaryInfo struct {
	TotalRequests    int64   `json:"total_requests"`
	TotalInputUnits  float64 `json:"total_input_units"`
	TotalOutputUnits float64 `json:"total_output_units"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
	TopModel         string  `json:"top_model,omitempty"`
}

type reportProviderInfo struct {
	Provider     string  `json:"provider"`
	RequestCount int64   `json:"request_count"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

type reportModelInfo struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	RequestCount  int64   `json:"request_count"`
	TotalInput    float64 `json:"total_input_units"`
	TotalOutput   float64 `json:"total_output_units"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

type reportDailyInfo struct {
	Day          time.Time `json:"day"`
	Provider     string    `json:"provider"`
	RequestCount int64     `json:"request_count"`
	TotalCostUSD float64   `json:"total_cost_usd"`
}

func runReport(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("report", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultReportFormat, "Output format: text or json")
	fromRaw := flagSet.String("from", "", "Report start time (RFC3339 or YYYY-MM-DD)")
	toRaw := flagSet.String("to", "", "Report end time (RFC3339 or YYYY-MM-DD)")
	provider := flagSet.String("provider", "", "Provider filter")
	model := flagSet.String("model", "", "Model filter")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "report does not accept positional arguments")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("report", *format, defaultReportFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	from, err := parseReportTime(*fromRaw, false)
	if err != nil {
		fmt.Fprintf(errOut, "invalid from: %v\n", err)
		return 2
	}
	to, err := parseReportTime(*toRaw, true)
	if err != nil {
		fmt.Fprintf(errOut, "invalid to: %v\n", err)
		return 2
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		fmt.Fprintln(errOut, "invalid range: to must be greater than or equal to from")
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

	store, err := openExportStore(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize cost event store: %v\n", err)
		return 1
	}
	defer closeStoreWithWarning(store, errOut)

	filter := export.Filter{
		Provider: strings.TrimSpace(*provider),
		Model:    strings.TrimSpace(*model),
		From:     from,
		To:       to,
	}

	report, err := buildReport(context.Background(), store, cfg, filter)
	if err != nil {
		fmt.Fprintf(errOut, "failed to build report: %v\n", err)
		return 1
	}

	if err := writeReport(out, normalizedFormat, report); err != nil {
		fmt.Fprintf(errOut, "failed to write report: %v\n", err)
		return 1
	}

	return 0
}

func parseReportTime(raw string, endOfDay bool) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02",
	}
	for _, layout := range layouts {
		if layout == "2006-01-02" {
			parsed, err := time.ParseInLocation(layout, value, time.UTC)
			if err == nil {
				if endOfDay {
					return parsed.Add(24*time.Hour - time.Nanosecond), nil
				}
				return parsed, nil
			}
			continue
		}
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD")
}

func buildReport(ctx context.Context, store export.Store, cfg config.Config, filter export.Filter) (reportDocument, error) {
	var (
		summary *export.Summary
		models  []export.ModelStats
		series  []export.Point
	)

	var (
		queryErr error
		mu       sync.Mutex
		wg       sync.WaitGroup
	)

	runQuery := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				if queryErr == nil {
					queryErr = err
				}
				mu.Unlock()
			}
		}()
	}

	runQuery(func() error {
		var err error
		summary, err = store.CostSummary(ctx, filter)
		return err
	})
	runQuery(func() error {
		var err error
		models, err = store.ModelStats(ctx, filter)
		return err
	})
	runQuery(func() error {
		var err error
		series, err = store.CostSeries(ctx, filter, "provider", "day")
		return err
	})

	wg.Wait()
	if queryErr != nil {
		return reportDocument{}, queryErr
	}
	if summary == nil {
		summary = &export.Summary{}
	}

	topModel := ""
	topModelRequests := int64(0)
	modelRows := make([]reportModelInfo, 0, len(models))
	for _, item := range models {
		if item.RequestCount > topModelRequests || (item.RequestCount == topModelRequests && strings.TrimSpace(item.Model) < strings.TrimSpace(topModel)) {
			topModelRequests = item.RequestCount
			topModel = item.Model
		}
		modelRows = append(modelRows, reportModelInfo{
			Provider:      item.Provider,
			Model:         item.Model,
			RequestCount:  item.RequestCount,
			TotalInput:    item.TotalInput,
			TotalOutput:   item.TotalOutput,
			TotalCostUSD:  item.TotalCostUSD,
			AvgDurationMS: item.AvgDurationMS,
		})
	}
	sortReportModelRows(modelRows)

	return reportDocument{
		SchemaVersion: reportSchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Storage: reportStorageInfo{
			Driver: cfg.Storage.Driver,
			Path:   cfg.Storage.Path,
		},
		Filters: reportFilterInfo{
			Provider: filter.Provider,
			Model:    filter.Model,
			From:     reportOptionalTime(filter.From),
			To:       reportOptionalTime(filter.To),
		},
		Summary: reportSummaryInfo{
			TotalRequests:    summary.RequestCount,
			TotalInputUnits:  summary.TotalInputUnits,
			TotalOutputUnits: summary.TotalOutputUnits,
			TotalCostUSD:     summary.TotalCostUSD,
			TopModel:         topModel,
		},
		Providers: aggregateProviderRows(series),
		Models:    modelRows,
		Daily:     dailyRows(series),
	}, nil
}

func aggregateProviderRows(series []export.Point) []reportProviderInfo {
	byProvider := make(map[string]*reportProviderInfo)
	for _, point := range series {
		item, ok := byProvider[point.Group]
		if !ok {
			item = &reportProviderInfo{Provider: point.Group}
			byProvider[point.Group] = item
		}
		item.RequestCount += point.RequestCount
		item.TotalCostUSD += point.TotalCostUSD
	}

	rows := make([]reportProviderInfo, 0, len(byProvider))
	for _, item := range byProvider {
		rows = append(rows, *item)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalCostUSD != rows[j].TotalCostUSD {
			return rows[i].TotalCostUSD > rows[j].TotalCostUSD
		}
		if rows[i].RequestCount != rows[j].RequestCount {
			return rows[i].RequestCount > rows[j].RequestCount
		}
		return strings.TrimSpace(rows[i].Provider) < strings.TrimSpace(rows[j].Provider)
	})
	return rows
}

func dailyRows(series []export.Point) []reportDailyInfo {
	rows := make([]reportDailyInfo, 0, len(series))
	for _, point := range series {
		rows = append(rows, reportDailyInfo{
			Day:          point.BucketStart,
			Provider:     point.Group,
			RequestCount: point.RequestCount,
			TotalCostUSD: point.TotalCostUSD,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Day.Equal(rows[j].Day) {
			return rows[i].Day.Before(rows[j].Day)
		}
		return rows[i].Provider < rows[j].Provider
	})
	return rows
}

func sortReportModelRows(rows []reportModelInfo) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RequestCount != rows[j].RequestCount {
			return rows[i].RequestCount > rows[j].RequestCount
		}
		return strings.TrimSpace(rows[i].Model) < strings.TrimSpace(rows[j].Model)
	})
}

func writeReport(out io.Writer, format string, report reportDocument) error {
	switch format {
	case "json":
		return writeReportJSON(out, report)
	default:
		return writeReportText(out, report)
	}
}

func writeReportJSON(out io.Writer, report reportDocument) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func writeReportText(out io.Writer, report reportDocument) error {
	fmt.Fprintln(out, "AI Meter Report")

	metadataWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(metadataWriter, "Schema version\t%s\n", report.SchemaVersion)
	fmt.Fprintf(metadataWriter, "Generated at\t%s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(metadataWriter, "Storage driver\t%s\n", report.Storage.Driver)
	if strings.TrimSpace(report.Storage.Path) != "" {
		fmt.Fprintf(metadataWriter, "Storage path\t%s\n", report.Storage.Path)
	}
	fmt.Fprintf(metadataWriter, "Filter provider\t%s\n", valueOr(report.Filters.Provider, "(all)"))
	fmt.Fprintf(metadataWriter, "Filter model\t%s\n", valueOr(report.Filters.Model, "(all)"))
	fmt.Fprintf(metadataWriter, "Filter from\t%s\n", timePtrOr(report.Filters.From, "(all)"))
	fmt.Fprintf(metadataWriter, "Filter to\t%s\n", timePtrOr(report.Filters.To, "(all)"))
	if err := metadataWriter.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSummary")
	summaryWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(summaryWriter, "Total requests\t%d\n", report.Summary.TotalRequests)
	fmt.Fprintf(summaryWriter, "Total input units\t%.0f\n", report.Summary.TotalInputUnits)
	fmt.Fprintf(summaryWriter, "Total output units\t%.0f\n", report.Summary.TotalOutputUnits)
	fmt.Fprintf(summaryWriter, "Total cost (USD)\t%.6f\n", report.Summary.TotalCostUSD)
	fmt.Fprintf(summaryWriter, "Top model\t%s\n", valueOr(report.Summary.TopModel, "(none)"))
	if err := summaryWriter.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nProviders")
	if len(report.Providers) == 0 {
		fmt.Fprintln(out, "(no provider data)")
	} else {
		providerWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(providerWriter, "PROVIDER\tREQUESTS\tTOTAL_COST_USD")
		for _, row := range report.Providers {
			fmt.Fprintf(providerWriter, "%s\t%d\t%.6f\n", valueOr(row.Provider, "(unknown)"), row.RequestCount, row.TotalCostUSD)
		}
		if err := providerWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nModels")
	if len(report.Models) == 0 {
		fmt.Fprintln(out, "(no model data)")
	} else {
		modelWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(modelWriter, "PROVIDER\tMODEL\tREQUESTS\tINPUT_UNITS\tOUTPUT_UNITS\tTOTAL_COST_USD\tAVG_DURATION_MS")
		for _, row := range report.Models {
			fmt.Fprintf(
				modelWriter,
				"%s\t%s\t%d\t%.0f\t%.0f\t%.6f\t%.2f\n",
				valueOr(row.Provider, "(unknown)"),
				valueOr(row.Model, "(unknown)"),
				row.RequestCount,
				row.TotalInput,
				row.TotalOutput,
				row.TotalCostUSD,
				row.AvgDurationMS,
			)
		}
		if err := modelWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nDaily Cost")
	if len(report.Daily) == 0 {
		fmt.Fprintln(out, "(no daily data)")
		return nil
	}
	dailyWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(dailyWriter, "DAY\tPROVIDER\tREQUESTS\tTOTAL_COST_USD")
	for _, row := range report.Daily {
		fmt.Fprintf(dailyWriter, "%s\t%s\t%d\t%.6f\n", row.Day.Format("2006-01-02"), valueOr(row.Provider, "(unknown)"), row.RequestCount, row.TotalCostUSD)
	}
	return dailyWriter.Flush()
}

func reportOptionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}
