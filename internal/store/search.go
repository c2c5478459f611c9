package store

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
)

// Filter selects mirror rows. Query tokens of three or more characters must
// each match at least one searchable column.
type Filter struct {
	Query    string
	Vendor   string
	Category string
	Limit    int
	Offset   int
}

var searchColumns = []string{
	"description", "vendor_name", "category", "subcategory", "part_number", "vendor_part_number",
}

const defaultLimit = 20

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func queryTokens(q string) []string {
	var out []string
	for _, tok := range strings.Fields(q) {
		if utf8.RuneCountInString(tok) > 2 {
			out = append(out, tok)
		}
	}
	return out
}

// buildWhere returns the WHERE clause body and its arguments. ok is false
// when the query has no usable token.
func (d *DB) buildWhere(f Filter) (string, []any, bool) {
	toks := queryTokens(f.Query)
	if len(toks) == 0 {
		return "", nil, false
	}

	var (
		groups []string
		args   []any
	)
	next := func(v string) string {
		args = append(args, likePattern(v))
		return d.dialect.placeholder(len(args))
	}

	for _, tok := range toks {
		conds := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			conds[i] = d.dialect.containsCond(col, next(tok))
		}
		groups = append(groups, "("+strings.Join(conds, " OR ")+")")
	}
	if v := strings.TrimSpace(f.Vendor); v != "" {
		groups = append(groups, d.dialect.containsCond("vendor_name", next(v)))
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		groups = append(groups, "("+d.dialect.containsCond("category", next(c))+" OR "+
			d.dialect.containsCond("subcategory", next(c))+")")
	}
	return strings.Join(groups, " AND "), args, true
}

// Search returns one page of matching products ordered by description and
// the number of matches before pagination.
func (d *DB) Search(ctx context.Context, f Filter) ([]models.ProductRecord, int, error) {
	ctx, span := observability.StartSpan(ctx, "store.search",
		attribute.String("query", f.Query),
	)
	defer span.End()

	where, args, ok := d.buildWhere(f)
	if !ok {
		return []models.ProductRecord{}, 0, nil
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	var total int
	countQuery := `SELECT COUNT(*) FROM products WHERE ` + where
	if err := d.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		observeLocal("search", "error", start)
		return nil, 0, fmt.Errorf("counting mirror matches: %w", err)
	}
	if total == 0 {
		observeLocal("search", "success", start)
		return []models.ProductRecord{}, 0, nil
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	pageArgs := append(append([]any{}, args...), limit, offset)
	pageQuery := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY description ASC, part_number ASC LIMIT %s OFFSET %s`,
		selectColumns, where, d.dialect.placeholder(len(args)+1), d.dialect.placeholder(len(args)+2))

	rows, err := d.conn.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		observeLocal("search", "error", start)
		return nil, 0, fmt.Errorf("querying mirror: %w", err)
	}
	defer rows.Close()

	out := make([]models.ProductRecord, 0, limit)
	for rows.Next() {
		rec, err := scanProduct(rows)
		if err != nil {
			observeLocal("search", "error", start)
			return nil, 0, fmt.Errorf("scanning mirror row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		observeLocal("search", "error", start)
		return nil, 0, fmt.Errorf("iterating mirror rows: %w", err)
	}

	observeLocal("search", "success", start)
	d.logger.Debug("mirror search",
		zap.String("query", f.Query),
		zap.Int("total", total),
		zap.Int("returned", len(out)),
	)
	return out, total, nil
}
