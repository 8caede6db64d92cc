package etl

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryRecords runs q and returns every row as a Record keyed by column name.
func queryRecords(ctx context.Context, db Querier, q string, args ...any) ([]Record, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c.Name()] = normalize(vals[i], c.DatabaseTypeName())
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// normalize turns driver values into JSON scalars.
func normalize(v any, dbType string) any {
	dbType = strings.ToUpper(dbType)
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		if dbType == "DATE" {
			return t.Format(DateLayout)
		}
		return t.Format(time.RFC3339)
	case []byte:
		return normalize(string(t), dbType)
	case string:
		if dbType == "NUMERIC" || dbType == "DECIMAL" {
			if _, err := strconv.ParseFloat(t, 64); err == nil {
				return json.Number(t)
			}
		}
		return t
	case int64, int32, int, float64, float32, bool:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// bindValue converts a decoded artifact value into a driver argument.
func bindValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
