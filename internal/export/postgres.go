package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ongoingai/meter/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	DSN string
	db  *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	store := &PostgresStore{
		DSN: dsn,
		db:  db,
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

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const postgresInsertRecord = `
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
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (s *PostgresStore) WriteRecord(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}

	row := normalizeRecord(record)
	_, err := s.db.ExecContext(ctx, postgresInsertRecord,
		row.ID,
		row.Timestamp,
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
		row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write cost event %q: %w", row.ID, err)
	}

	return nil
}

func (s *PostgresStore) WriteBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin postgres batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, postgresInsertRecord)
	if err != nil {
		return fmt.Errorf("prepare postgres batch insert: %w", err)
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
			row.Timestamp,
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
			row.CreatedAt,
		); err != nil {
			return fmt.Errorf("write cost event %q in batch: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit postgres batch transaction: %w", err)
	}

	return nil
}

func (s *PostgresStore) CostSummary(ctx context.Context, filter Filter) (*Summary, error) {
	whereSQL, args := buildPostgresFilterWhere(filter)
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

func (s *PostgresStore) CostSeries(ctx context.Context, filter Filter, groupBy, bucket string) ([]Point, error) {
	groupExpr, err := groupExpression(groupBy)
	if err != nil {
		return nil, err
	}
	bucketExpr, err := postgresBucketExpression(bucket)
	if err != nil {
		return nil, err
	}

	whereSQL, args := buildPostgresFilterWhere(filter)
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
			bucketStart sql.NullTime
			groupValue  sql.NullString
			point       Point
		)
		if err := rows.Scan(&bucketStart, &groupValue, &point.TotalCostUSD, &point.RequestCount); err != nil {
			return nil, fmt.Errorf("scan cost series row: %w", err)
		}
		if bucketStart.Valid {
			point.BucketStart = bucketStart.Time.UTC()
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

func (s *PostgresStore) ModelStats(ctx context.Context, filter Filter) ([]ModelStats, error) {
	whereSQL, args := buildPostgresFilterWhere(filter)
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

func (s *PostgresStore) configure() error {
	s.db.SetMaxOpenConns(8)
	s.db.SetMaxIdleConns(4)
	s.db.SetConnMaxLifetime(30 * time.Minute)
	return nil
}

func (s *PostgresStore) ensureSchema() error {
	if err := migrations.Apply(context.Background(), s.db, migrations.DriverPostgres); err != nil {
		return fmt.Errorf("ensure postgres schema: %w", err)
	}
	return nil
}

func buildPostgresFilterWhere(filter Filter) (string, []any) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.Provider != "" {
		args = append(args, filter.Provider)
		where = append(where, fmt.Sprintf("provider = $%d", len(args)))
	}
	if filter.Model != "" {
		args = append(args, filter.Model)
		where = append(where, fmt.Sprintf("model = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		where = append(where, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	if len(where) == 0 {
		return "1=1", args
	}
	return strings.Join(where, " AND "), args
}

func postgresBucketExpression(bucket string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(bucket)) {
	case "", "day":
		return "date_trunc('day', timestamp)", nil
	case "hour":
		return "date_trunc('hour', timestamp)", nil
	case "week":
		return "date_trunc('week', timestamp)", nil
	default:
		return "", fmt.Errorf("invalid bucket: %q", bucket)
	}
}
