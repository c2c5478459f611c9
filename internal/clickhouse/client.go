package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
)

// Client is the search analytics sink. Writes are fire-and-forget from the
// caller's point of view; nothing on the search path waits on ClickHouse.
type Client struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewClient(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	logger.Info("clickhouse client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		conn:   conn,
		logger: logger,
	}, nil
}

const insertEvent = `
	INSERT INTO %s (
		event_type, query_hash, query, vendor, stage,
		use_keywords, duration_ms, total_hits, timestamp, trace_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (c *Client) WriteSearchEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	return c.writeEvent(ctx, "search_events", "search_event", event)
}

func (c *Client) WriteQueryPerformance(ctx context.Context, event *models.AnalyticsEvent) error {
	return c.writeEvent(ctx, "query_performance", "query_performance", event)
}

func (c *Client) writeEvent(ctx context.Context, table, op string, event *models.AnalyticsEvent) error {
	start := time.Now()
	err := c.conn.Exec(ctx, fmt.Sprintf(insertEvent, table),
		event.EventType,
		event.QueryHash,
		event.Query,
		event.Vendor,
		event.Stage,
		event.UseKeywords,
		event.DurationMs,
		event.TotalHits,
		event.Timestamp,
		event.TraceID,
	)
	if err != nil {
		observability.CHQueryDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("ch insert %s: %w", table, err)
	}
	observability.CHQueryDuration.WithLabelValues(op, "success").Observe(time.Since(start).Seconds())
	return nil
}

// TopQueries ranks normalized queries searched since the given time.
func (c *Client) TopQueries(ctx context.Context, since time.Time, limit int) ([]models.QueryCount, error) {
	ctx, span := observability.StartSpan(ctx, "ch.top_queries",
		attribute.Int("limit", limit),
	)
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	start := time.Now()

	query := `
		SELECT
			query,
			count() AS cnt
		FROM search_events
		WHERE timestamp >= ? AND query != ''
		GROUP BY query
		ORDER BY cnt DESC, query ASC
		LIMIT ?
	`

	rows, err := c.conn.Query(ctx, query, since, limit)
	if err != nil {
		observability.CHQueryDuration.WithLabelValues("top_queries", "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("ch top queries: %w", err)
	}
	defer rows.Close()

	out := make([]models.QueryCount, 0, limit)
	for rows.Next() {
		var (
			q   string
			cnt uint64
		)
		if err := rows.Scan(&q, &cnt); err != nil {
			return nil, fmt.Errorf("scanning top query row: %w", err)
		}
		out = append(out, models.QueryCount{Query: q, Count: int64(cnt)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top query rows: %w", err)
	}

	observability.CHQueryDuration.WithLabelValues("top_queries", "success").Observe(time.Since(start).Seconds())
	return out, nil
}

// RecordChanges appends applied mirror changes to the changelog table.
func (c *Client) RecordChanges(ctx context.Context, events []models.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO catalog_changelog (
			event_id, part_number, operation, source, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("preparing changelog batch: %w", err)
	}
	for _, e := range events {
		if err := batch.Append(e.ID, e.PartNumber, string(e.Type), e.Source, e.Timestamp); err != nil {
			return fmt.Errorf("appending changelog row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending changelog batch: %w", err)
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) EnsureTables(ctx context.Context) error {
	eventColumns := `(
			event_type String,
			query_hash String,
			query String,
			vendor String,
			stage LowCardinality(String),
			use_keywords Bool,
			duration_ms Float64,
			total_hits Int64,
			timestamp DateTime,
			trace_id String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, query_hash)`

	tables := []string{
		`CREATE TABLE IF NOT EXISTS search_events ` + eventColumns,
		`CREATE TABLE IF NOT EXISTS query_performance ` + eventColumns,
		`CREATE TABLE IF NOT EXISTS catalog_changelog (
			event_id String,
			part_number String,
			operation LowCardinality(String),
			source String,
			timestamp DateTime
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, part_number)`,
	}

	for _, ddl := range tables {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	c.logger.Info("clickhouse tables ensured")
	return nil
}
