package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shubhsaxena/catalog-search/internal/models"
)

func (d *DB) upsertQuery() string {
	cols := []string{
		"part_number", "vendor_part_number", "description", "vendor_name", "category",
		"subcategory", "upc", "unit_price", "currency", "availability", "image_urls", "updated_at",
	}
	phs := make([]string, len(cols))
	sets := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		phs[i] = d.dialect.placeholder(i + 1)
		if c != "part_number" {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	return fmt.Sprintf(`INSERT INTO products (%s) VALUES (%s) ON CONFLICT (part_number) DO UPDATE SET %s`,
		strings.Join(cols, ", "), strings.Join(phs, ", "), strings.Join(sets, ", "))
}

// UpsertProducts writes recs in one transaction. Records without a part
// number are skipped.
func (d *DB) UpsertProducts(ctx context.Context, recs []models.ProductRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, d.upsertQuery())
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	written := 0
	for _, rec := range recs {
		pn := strings.TrimSpace(rec.PartNumber)
		if pn == "" {
			continue
		}
		availability, err := json.Marshal(rec.Availability)
		if err != nil {
			return 0, fmt.Errorf("encoding availability for %s: %w", pn, err)
		}
		var images any
		if len(rec.ImageURLs) > 0 {
			b, err := json.Marshal(rec.ImageURLs)
			if err != nil {
				return 0, fmt.Errorf("encoding image urls for %s: %w", pn, err)
			}
			images = string(b)
		}

		if _, err := stmt.ExecContext(ctx,
			pn, rec.VendorPartNumber, rec.Description, rec.VendorName, rec.Category,
			rec.Subcategory, rec.UPC, rec.UnitPrice, rec.Currency, string(availability), images, now,
		); err != nil {
			observeLocal("upsert", "error", start)
			return 0, fmt.Errorf("upserting %s: %w", pn, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		observeLocal("upsert", "error", start)
		return 0, fmt.Errorf("committing upsert: %w", err)
	}
	observeLocal("upsert", "success", start)
	return written, nil
}

func (d *DB) DeleteProducts(ctx context.Context, partNumbers []string) (int, error) {
	if len(partNumbers) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM products WHERE part_number = `+d.dialect.placeholder(1))
	if err != nil {
		return 0, fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	deleted := 0
	for _, pn := range partNumbers {
		res, err := stmt.ExecContext(ctx, strings.TrimSpace(pn))
		if err != nil {
			observeLocal("delete", "error", start)
			return 0, fmt.Errorf("deleting %s: %w", pn, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		observeLocal("delete", "error", start)
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	observeLocal("delete", "success", start)
	return deleted, nil
}
