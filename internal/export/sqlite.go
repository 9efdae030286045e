package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ongoingai/meter/migrations"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	Path string
	db   *sql.DB
	// SQLite allows only one writer at a time; serialize writes to avoid
	// SQLITE_BUSY contention when callers invoke WriteRecord/WriteBatch
	// concurrently.
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}

	store := &SQLiteStore{
		Path: path,
		db:   db,
	}

	if err := store.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// sqliteTimeLayout is the stored timestamp format: UTC, fixed width, so
// strftime can parse it and lexicographic comparison matches chronological
// order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

const sqliteInsertRecord = `
INSERT INTO cost_events (
    id,
    timestamp,
    span_name,
    method_path,
    provider,
    model,
    input_units,
    output_units,
    cached_input_units,
    cost_usd,
    duration_ms,
    attributes,
    created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) WriteRecord(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	row := normalizeRecord(record)
	err := retrySQLiteBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, sqliteInsertRecord,
			row.ID,
			formatSQLiteTime(row.Timestamp),
			row.SpanName,
			row.MethodPath,
			row.Provider,
			row.Model,
			row.InputUnits,
			row.OutputUnits,
			row.CachedInputUnits,
			row.CostUSD,
			row.DurationMS,
			row.Attributes,
			formatSQLiteTime(row.CreatedAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("write cost event %q: %w", row.ID, err)
	}

	return nil
}

func (s *SQLiteStore) WriteBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return retrySQLiteBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin sqlite batch transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		stmt, err := tx.PrepareContext(ctx, sqliteInsertRecord)
		if err != nil {
			return fmt.Errorf("prepare sqlite batch insert: %w", err)
		}
		defer stmt.Close()

		for _, record := range records {
			if record == nil {
				continue
			}
			row := normalizeRecord(record)
			if _, err := stmt.ExecContext(
				ctx,
				row.ID,
				formatSQLiteTime(row.Timestamp),
				row.SpanName,
				row.MethodPath,
				row.Provider,
				row.Model,
				row.InputUnits,
				row.OutputUnits,
				row.CachedInputUnits,
				row.CostUSD,
				row.DurationMS,
				row.Attributes,
				formatSQLiteTime(row.CreatedAt),
			); err != nil {
				return fmt.Errorf("write cost event %q in batch: %w", row.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit sqlite batch transaction: %w", err)
		}

		return nil
	})
}

func (s *SQLiteStore) CostSummary(ctx context.Context, filter Filter) (*Summary, error) {
	whereSQL, args := buildFilterWhere(filter)
	row := s.db.QueryRowContext(ctx, `
SELECT
	COALESCE(SUM(cost_usd), 0),
	COALESCE(SUM(input_units), 0),
	COALESCE(SUM(output_units), 0),
	COUNT(*)
FROM cost_events
WHERE `+whereSQL, args...)

	var summary Summary
	if err := row.Scan(&summary.TotalCostUSD, &summary.TotalInputUnits, &summary.TotalOutputUnits, &summary.RequestCount); err != nil {
		return nil, fmt.Errorf("query cost summary: %w", err)
	}

	return &summary, nil
}

func (s *SQLiteStore) CostSeries(ctx context.Context, filter Filter, groupBy, bucket string) ([]Point, error) {
	groupExpr, err := groupExpression(groupBy)
	if err != nil {
		return nil, err
	}
	bucketExpr, err := sqliteBucketExpression(bucket)
	if err != nil {
		return nil, err
	}

	whereSQL, args := buildFilterWhere(filter)
	query := `
SELECT
	` + bucketExpr + ` AS bucket_start,
	` + groupExpr + ` AS group_value,
	COALESCE(SUM(cost_usd), 0),
	COUNT(*)
FROM cost_events
WHERE ` + whereSQL + `
GROUP BY bucket_start, group_value
ORDER BY bucket_start ASC, group_value ASC
`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost series: %w", err)
	}
	defer rows.Close()

	points := make([]Point, 0)
	for rows.Next() {
		var (
			bucketStartRaw sql.NullString
			groupValue     sql.NullString
			point          Point
		)
		if err := rows.Scan(&bucketStartRaw, &groupValue, &point.TotalCostUSD, &point.RequestCount); err != nil {
			return nil, fmt.Errorf("scan cost series row: %w", err)
		}
		if bucketStartRaw.Valid {
			parsedTime, err := parseSQLiteTimestamp(bucketStartRaw.String)
			if err != nil {
				return nil, fmt.Errorf("parse cost series bucket %q: %w", bucketStartRaw.String, err)
			}
			point.BucketStart = parsedTime
		}
		if groupValue.Valid {
			point.Group = groupValue.String
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost series rows: %w", err)
	}

	return points, nil
}

func (s *SQLiteStore) ModelStats(ctx context.Context, filter Filter) ([]ModelStats, error) {
	whereSQL, args := buildFilterWhere(filter)
	query := `
SELECT
	provider,
	model,
	COUNT(*) AS request_count,
	COALESCE(SUM(input_units), 0),
	COALESCE(SUM(output_units), 0),
	COALESCE(SUM(cost_usd), 0),
	COALESCE(AVG(duration_ms), 0)
FROM cost_events
WHERE ` + whereSQL + `
GROUP BY provider, model
ORDER BY request_count DESC, provider ASC, model ASC
`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query model stats: %w", err)
	}
	defer rows.Close()

	stats := make([]ModelStats, 0)
	for rows.Next() {
		var item ModelStats
		if err := rows.Scan(&item.Provider, &item.Model, &item.RequestCount, &item.TotalInput, &item.TotalOutput, &item.TotalCostUSD, &item.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("scan model stats row: %w", err)
		}
		stats = append(stats, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model stats rows: %w", err)
	}

	return stats, nil
}

func (s *SQLiteStore) configure() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("enable sqlite WAL mode: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA synchronous = NORMAL;`); err != nil {
		return fmt.Errorf("set sqlite synchronous mode: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("set sqlite busy timeout: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ensureSchema() error {
	if err := migrations.Apply(context.Background(), s.db, migrations.DriverSQLite); err != nil {
		return fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return nil
}

func buildFilterWhere(filter Filter) (string, []any) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.Model != "" {
		where = append(where, "model = ?")
		args = append(args, filter.Model)
	}
	if !filter.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, formatSQLiteTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, formatSQLiteTime(filter.To))
	}

	if len(where) == 0 {
		return "1=1", args
	}
	return strings.Join(where, " AND "), args
}

func groupExpression(groupBy string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(groupBy)) {
	case "", "none":
		return "''", nil
	case "provider":
		return "provider", nil
	case "model":
		return "model", nil
	default:
		return "", fmt.Errorf("invalid group_by: %q", groupBy)
	}
}

func sqliteBucketExpression(bucket string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(bucket)) {
	case "", "day":
		return "strftime('%Y-%m-%dT00:00:00Z', timestamp)", nil
	case "hour":
		return "strftime('%Y-%m-%dT%H:00:00Z', timestamp)", nil
	case "week":
		return "strftime('%Y-%m-%dT00:00:00Z', datetime(timestamp, '-' || ((CAST(strftime('%w', timestamp) AS INTEGER) + 6) % 7) || ' days'))", nil
	default:
		return "", fmt.Errorf("invalid bucket: %q", bucket)
	}
}

func parseSQLiteTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized sqlite timestamp %q", raw)
}

const (
	sqliteBusyMaxRetries     = 12
	sqliteBusyInitialBackoff = 5 * time.Millisecond
	sqliteBusyMaxBackoff     = 250 * time.Millisecond
)

// retrySQLiteBusy retries transient lock contention so queued records are
// not dropped during concurrent writes.
func retrySQLiteBusy(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		err   error
		timer *time.Timer
	)
	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	defer stopTimer()

	for retries := 0; ; retries++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusyError(err) || retries >= sqliteBusyMaxRetries {
			return err
		}

		wait := sqliteBusyInitialBackoff << retries
		if wait > sqliteBusyMaxBackoff {
			wait = sqliteBusyMaxBackoff
		}

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			stopTimer()
			timer.Reset(wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "sqlite_busy") || strings.Contains(value, "database is locked")
}
