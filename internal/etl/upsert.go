package etl

import (
	"context"
	"fmt"
	"strings"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/db"
)

// UpsertSpec describes how one record set maps onto its target table.
type UpsertSpec struct {
	Table   string
	Columns []string
	Key     []string
	// Touch, when set, is refreshed to CURRENT_TIMESTAMP on update.
	Touch string
}

var UpsertSpecs = map[string]UpsertSpec{
	CustomerAnalytics: {
		Table:   CustomerAnalytics,
		Columns: []string{"customer_id", "total_orders", "total_amount", "avg_order_value", "last_order_date", "region"},
		Key:     []string{"customer_id"},
		Touch:   "updated_at",
	},
	ProductSalesSummary: {
		Table:   ProductSalesSummary,
		Columns: []string{"product_id", "category", "total_quantity", "total_revenue", "order_count", "date"},
		Key:     []string{"product_id", "date"},
		Touch:   "updated_at",
	},
	DailySalesSummary: {
		Table:   DailySalesSummary,
		Columns: []string{"date", "total_orders", "total_revenue", "unique_customers", "region"},
		Key:     []string{"date", "region"},
		Touch:   "updated_at",
	},
}

// maxParams stays under the PostgreSQL bind parameter limit.
const maxParams = 65535

// BuildUpsert renders a multi-row INSERT ... ON CONFLICT DO UPDATE for rows records.
func BuildUpsert(d db.Dialect, s UpsertSpec, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", s.Table, strings.Join(s.Columns, ", "))

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range s.Columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}

	keys := make(map[string]bool, len(s.Key))
	for _, k := range s.Key {
		keys[k] = true
	}
	var sets []string
	for _, c := range s.Columns {
		if !keys[c] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	if s.Touch != "" {
		sets = append(sets, s.Touch+" = CURRENT_TIMESTAMP")
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(s.Key, ", "), strings.Join(sets, ", "))
	return b.String()
}

// Args flattens records in column order. A missing column is a data error.
func (s UpsertSpec) Args(records []Record) ([]any, error) {
	args := make([]any, 0, len(records)*len(s.Columns))
	for i, rec := range records {
		for _, c := range s.Columns {
			v, ok := rec[c]
			if !ok {
				return nil, apperr.Data(fmt.Sprintf("%s record %d missing field %s", s.Table, i, c), nil)
			}
			args = append(args, bindValue(v))
		}
	}
	return args, nil
}

// Upsert writes records in as few statements as the parameter limit allows.
func Upsert(ctx context.Context, tx execer, d db.Dialect, s UpsertSpec, records []Record) (int, error) {
	per := maxParams / len(s.Columns)
	for start := 0; start < len(records); start += per {
		chunk := records[start:min(start+per, len(records))]
		args, err := s.Args(chunk)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, BuildUpsert(d, s, len(chunk)), args...); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", s.Table, err)
		}
	}
	return len(records), nil
}
