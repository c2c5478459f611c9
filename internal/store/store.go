package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
)

var ErrNotFound = errors.New("product not found in mirror")

// DB is the relational product mirror. It speaks Postgres through lib/pq
// and SQLite through modernc.org/sqlite.
type DB struct {
	conn         *sql.DB
	dialect      dialect
	queryTimeout time.Duration
	logger       *zap.Logger
}

func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(d.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s mirror: %w", cfg.Driver, err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging %s mirror: %w", cfg.Driver, err)
	}

	return &DB{conn: conn, dialect: d, queryTimeout: cfg.QueryTimeout, logger: logger}, nil
}

// New wraps an already opened connection.
func New(conn *sql.DB, driver string, queryTimeout time.Duration, logger *zap.Logger) (*DB, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &DB{conn: conn, dialect: d, queryTimeout: queryTimeout, logger: logger}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) HealthCheck(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
  part_number TEXT PRIMARY KEY,
  vendor_part_number TEXT,
  description TEXT NOT NULL DEFAULT '',
  vendor_name TEXT,
  category TEXT,
  subcategory TEXT,
  upc TEXT,
  unit_price NUMERIC(14,4),
  currency TEXT,
  availability TEXT,
  image_urls TEXT,
  updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_products_description ON products(description)`,
		`CREATE INDEX IF NOT EXISTS idx_products_vendor_name ON products(vendor_name)`,
		`CREATE INDEX IF NOT EXISTS idx_products_vendor_part_number ON products(vendor_part_number)`,
	}
	for _, stmt := range stmts {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating mirror schema: %w", err)
		}
	}
	return nil
}

const selectColumns = `part_number, COALESCE(vendor_part_number, ''), COALESCE(description, ''),
COALESCE(vendor_name, ''), COALESCE(category, ''), COALESCE(subcategory, ''), COALESCE(upc, ''),
unit_price, COALESCE(currency, ''), COALESCE(availability, ''), COALESCE(image_urls, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (models.ProductRecord, error) {
	var (
		rec          models.ProductRecord
		availability string
		imageURLs    string
	)
	err := s.Scan(
		&rec.PartNumber, &rec.VendorPartNumber, &rec.Description,
		&rec.VendorName, &rec.Category, &rec.Subcategory, &rec.UPC,
		&rec.UnitPrice, &rec.Currency, &availability, &imageURLs,
	)
	if err != nil {
		return rec, err
	}

	rec.Origin = models.OriginLocal
	rec.Availability = models.UnknownAvailability()
	if availability != "" {
		if err := json.Unmarshal([]byte(availability), &rec.Availability); err != nil {
			return rec, fmt.Errorf("decoding availability for %s: %w", rec.PartNumber, err)
		}
	}
	if imageURLs != "" {
		if err := json.Unmarshal([]byte(imageURLs), &rec.ImageURLs); err != nil {
			return rec, fmt.Errorf("decoding image urls for %s: %w", rec.PartNumber, err)
		}
	}
	return rec, nil
}

func (d *DB) GetByPartNumber(ctx context.Context, partNumber string) (*models.ProductRecord, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	query := `SELECT ` + selectColumns + ` FROM products WHERE UPPER(part_number) = UPPER(` + d.dialect.placeholder(1) + `)`
	rec, err := scanProduct(d.conn.QueryRowContext(ctx, query, strings.TrimSpace(partNumber)))
	if errors.Is(err, sql.ErrNoRows) {
		observeLocal("get", "not_found", start)
		return nil, ErrNotFound
	}
	if err != nil {
		observeLocal("get", "error", start)
		return nil, fmt.Errorf("loading product %s: %w", partNumber, err)
	}
	observeLocal("get", "success", start)
	return &rec, nil
}

func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.queryTimeout)
}

func observeLocal(op, status string, start time.Time) {
	observability.LocalQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}
