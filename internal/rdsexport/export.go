package rdsexport

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/config"
	"workshop-functions/internal/db"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/objectstore"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// UserRow is the Parquet layout for the users table.
type UserRow struct {
	ID   int64  `parquet:"name=id, type=INT64"`
	Name string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Age  *int32 `parquet:"name=age, type=INT32, repetitiontype=OPTIONAL"`
}

type ExportResult struct {
	Message     string `json:"message"`
	S3Location  string `json:"s3_location"`
	RecordCount int    `json:"record_count"`
}

type Exporter struct {
	open   db.Opener
	store  *objectstore.Store
	table  string
	format string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

func NewExporter(cfg *config.RDS, open db.Opener, store *objectstore.Store, logger *zap.Logger) (*Exporter, error) {
	if !identifier.MatchString(cfg.Table) {
		return nil, apperr.Config(fmt.Sprintf("invalid table name %q", cfg.Table), nil)
	}
	if cfg.Format != FormatCSV && cfg.Format != FormatParquet {
		return nil, apperr.Config(fmt.Sprintf("unsupported export format %q", cfg.Format), nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		open:   open,
		store:  store,
		table:  cfg.Table,
		format: cfg.Format,
		prefix: cfg.Prefix,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Key returns <prefix><table>_<YYYYMMDD_HHMMSS>.<format>.
func (e *Exporter) Key(at time.Time) string {
	return fmt.Sprintf("%s%s_%s.%s", e.prefix, e.table, at.Format("20060102_150405"), e.format)
}

func (e *Exporter) Export(ctx context.Context) (*ExportResult, error) {
	log := logging.ForInvocation(ctx, e.logger)

	cols, rows, err := e.fetch(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("retrieved records", zap.String("table", e.table), zap.Int("count", len(rows)))

	var (
		body        []byte
		contentType string
	)
	switch e.format {
	case FormatParquet:
		body, err = encodeParquet(cols, rows)
		contentType = objectstore.ContentTypeBinary
	default:
		body, err = encodeCSV(cols, rows)
		contentType = objectstore.ContentTypeCSV
	}
	if err != nil {
		return nil, err
	}

	key := e.Key(e.now())
	if err := e.store.Put(ctx, key, contentType, body); err != nil {
		return nil, err
	}
	loc := fmt.Sprintf("s3://%s/%s", e.store.Bucket(), key)
	log.Info("export uploaded", zap.String("location", loc), zap.Int("bytes", len(body)))

	return &ExportResult{
		Message:     fmt.Sprintf("exported %d rows from %s", len(rows), e.table),
		S3Location:  loc,
		RecordCount: len(rows),
	}, nil
}

func (e *Exporter) fetch(ctx context.Context) ([]string, [][]any, error) {
	pool, err := e.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer pool.Close()

	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+e.table)
	if err != nil {
		return nil, nil, db.QueryError(fmt.Sprintf("select from %s", e.table), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", e.table, err)
		}
		out = append(out, vals)
	}
	return cols, out, rows.Err()
}

func encodeCSV(cols []string, rows [][]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	rec := make([]string, len(cols))
	for _, row := range rows {
		for i, v := range row {
			rec[i] = cell(v)
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

// encodeParquet maps id, name and age columns onto UserRow.
func encodeParquet(cols []string, rows [][]any) ([]byte, error) {
	idx := map[string]int{}
	for i, c := range cols {
		idx[c] = i
	}
	for _, want := range []string{"id", "name"} {
		if _, ok := idx[want]; !ok {
			return nil, apperr.Data(fmt.Sprintf("parquet export needs column %q", want), nil)
		}
	}

	tmpDir := os.TempDir()
	localPath := filepath.Join(tmpDir, "export_"+uuid.NewString()+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return nil, fmt.Errorf("parquet file writer: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(UserRow), 1)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024

	for _, row := range rows {
		r, err := userRow(row, idx)
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
		if err := pw.Write(r); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("parquet write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read parquet tmp: %w", err)
	}
	return data, nil
}

func userRow(row []any, idx map[string]int) (UserRow, error) {
	id, err := toInt64(row[idx["id"]])
	if err != nil {
		return UserRow{}, apperr.Data("id column", err)
	}
	r := UserRow{ID: id, Name: cell(row[idx["name"]])}
	if i, ok := idx["age"]; ok && row[i] != nil {
		age, err := toInt64(row[i])
		if err != nil {
			return UserRow{}, apperr.Data("age column", err)
		}
		a := int32(age)
		r.Age = &a
	}
	return r, nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case []byte:
		return strconv.ParseInt(string(t), 10, 64)
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
