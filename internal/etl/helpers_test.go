package etl

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"workshop-functions/internal/db"
)

func sqliteScript(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "sqlite", name))
	require.NoError(t, err)
	return string(b)
}

func sqliteScripts(t *testing.T) Scripts {
	return Scripts{
		CreateSource: sqliteScript(t, "create_source_tables.sql"),
		SampleData:   sqliteScript(t, "insert_source_sample_data.sql"),
		CreateTarget: sqliteScript(t, "create_target_tables.sql"),
		CreateViews:  sqliteScript(t, "create_target_views.sql"),
		CountTables:  sqliteScript(t, "count_tables.sql"),
		CountViews:   sqliteScript(t, "count_views.sql"),
	}
}

// sqliteQueries repeats the date as a string once per placeholder.
func sqliteQueries(t *testing.T) []Query {
	args := func(n int) func(time.Time) []any {
		return func(d time.Time) []any {
			out := make([]any, n)
			for i := range out {
				out[i] = d.Format(DateLayout)
			}
			return out
		}
	}
	return []Query{
		{Set: CustomerAnalytics, SQL: sqliteScript(t, "customer_analytics.sql"), Args: args(2)},
		{Set: ProductSalesSummary, SQL: sqliteScript(t, "product_sales.sql"), Args: args(2)},
		{Set: DailySalesSummary, SQL: sqliteScript(t, "daily_sales.sql"), Args: args(1)},
	}
}

// sqliteOpener opens a new handle to the same database file on every call,
// so each invocation owns and closes its pool like the Postgres path does.
func sqliteOpener(t *testing.T, name string) (db.Opener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	return func(ctx context.Context) (*db.Pool, error) {
		h, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		return db.NewPool(h, db.SQLite, nil), nil
	}, path
}

func queryFile(t *testing.T, path, q string) []Record {
	t.Helper()
	h, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer h.Close()
	recs, err := queryRecords(context.Background(), h, q)
	require.NoError(t, err)
	return recs
}

type memS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	getFails int
	gets     int
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string][]byte{}}
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.gets <= m.getFails {
		return nil, errors.New("SlowDown")
	}
	b, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}
