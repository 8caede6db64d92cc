package etl

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/config"
	"workshop-functions/internal/db"
	"workshop-functions/internal/metrics"
	"workshop-functions/internal/objectstore"
	"workshop-functions/internal/retry"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(`
-- comment line
CREATE TABLE a (id INT);

INSERT INTO a VALUES (1);
  ;
`)
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "INSERT INTO a VALUES (1)"}, stmts)
}

func TestEmbeddedScriptsPresent(t *testing.T) {
	s := DefaultScripts()
	assert.Len(t, SplitStatements(s.CreateSource), 6)
	assert.Len(t, SplitStatements(s.CreateViews), 2)
	assert.Len(t, DefaultQueries(), 3)
}

func TestBuildUpsert(t *testing.T) {
	got := BuildUpsert(db.Postgres, UpsertSpecs[DailySalesSummary], 2)
	assert.Equal(t,
		"INSERT INTO daily_sales_summary (date, total_orders, total_revenue, unique_customers, region) "+
			"VALUES ($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10) "+
			"ON CONFLICT (date, region) DO UPDATE SET total_orders = EXCLUDED.total_orders, "+
			"total_revenue = EXCLUDED.total_revenue, unique_customers = EXCLUDED.unique_customers, "+
			"updated_at = CURRENT_TIMESTAMP",
		got)
}

func TestArtifactKeyAndDates(t *testing.T) {
	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "etl-data/2024-01-15/transformed_data.json", ArtifactKey("etl-data/", d))
	assert.Equal(t, "2024-01-15/transformed_data.json", ArtifactKey("", d))

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	// 2024-01-15 20:00 UTC is already 2024-01-16 in Tokyo.
	now := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-14", Yesterday(now, time.UTC).Format(DateLayout))
	assert.Equal(t, "2024-01-15", Yesterday(now, tokyo).Format(DateLayout))
}

func newSeededSource(t *testing.T) db.Opener {
	t.Helper()
	open, _ := sqliteOpener(t, "source")
	_, err := NewInitializer(open, nil, sqliteScripts(t), nil).InitSource(context.Background())
	require.NoError(t, err)
	return open
}

func newExtractor(t *testing.T, open db.Opener, s3 *memS3, opts ...ExtractorOption) *Extractor {
	t.Helper()
	cfg := &config.Extract{Bucket: "etl-bucket", Prefix: "etl-data/", Timezone: "UTC"}
	opts = append([]ExtractorOption{
		WithQueries(sqliteQueries(t)),
		WithClock(func() time.Time { return time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC) }),
	}, opts...)
	e, err := NewExtractor(cfg, open, objectstore.New(s3, "etl-bucket"), nil, opts...)
	require.NoError(t, err)
	return e
}

func TestExtractWritesArtifact(t *testing.T) {
	s3 := newMemS3()
	e := newExtractor(t, newSeededSource(t), s3)

	res, err := e.Run(context.Background(), ExtractEvent{})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", res.ProcessedDate)
	assert.Equal(t, "etl-data/2024-01-15/transformed_data.json", res.Key)
	assert.Equal(t, map[string]int{CustomerAnalytics: 2, ProductSalesSummary: 2, DailySalesSummary: 2}, res.Counts)
	assert.Equal(t, 6, res.RecordsProcessed)

	body, ok := s3.objects["etl-bucket/etl-data/2024-01-15/transformed_data.json"]
	require.True(t, ok)
	artifact, err := DecodeArtifact(body)
	require.NoError(t, err)

	first := artifact[CustomerAnalytics][0]
	assert.Equal(t, json.Number("1"), first["customer_id"])
	assert.Equal(t, json.Number("2"), first["total_orders"])
	assert.Equal(t, "2024-01-15", first["last_order_date"])
	assert.Equal(t, "Kanto", first["region"])

	for _, rec := range artifact[ProductSalesSummary] {
		assert.Equal(t, "2024-01-15", rec["date"])
	}
}

func TestExtractTargetDateOverride(t *testing.T) {
	s3 := newMemS3()
	e := newExtractor(t, newSeededSource(t), s3)

	res, err := e.Run(context.Background(), ExtractEvent{TargetDate: "2024-01-14"})
	require.NoError(t, err)
	assert.Equal(t, "etl-data/2024-01-14/transformed_data.json", res.Key)
	assert.Equal(t, 1, res.Counts[CustomerAnalytics])

	_, err = e.Run(context.Background(), ExtractEvent{TargetDate: "14/01/2024"})
	assert.Equal(t, apperr.KindData, apperr.KindOf(err))
}

func TestExtractFailureWritesNothing(t *testing.T) {
	s3 := newMemS3()
	queries := sqliteQueries(t)
	queries[2].SQL = "SELECT * FROM no_such_table"
	e := newExtractor(t, newSeededSource(t), s3, WithQueries(queries))

	_, err := e.Run(context.Background(), ExtractEvent{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "extract daily_sales_summary")
	assert.Empty(t, s3.objects)
}

func newTarget(t *testing.T) (db.Opener, string) {
	t.Helper()
	open, path := sqliteOpener(t, "target")
	_, err := NewInitializer(nil, open, sqliteScripts(t), nil).InitTarget(context.Background())
	require.NoError(t, err)
	return open, path
}

type sleeps struct{ got []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.got = append(s.got, d)
	return nil
}

func newLoader(open db.Opener, s3 *memS3, sl *sleeps) *Loader {
	return NewLoader(open, s3, retry.Policy{Attempts: 3, Base: time.Second, Sleep: sl.sleep}, nil, nil)
}

func s3Event(bucket, key string) events.S3Event {
	return events.S3Event{Records: []events.S3EventRecord{{
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: bucket},
			Object: events.S3Object{Key: key},
		},
	}}}
}

const goodArtifact = `{
  "customer_analytics": [
    {"customer_id": 1, "total_orders": 2, "total_amount": 6260.0, "avg_order_value": 3130.0, "last_order_date": "2024-01-15", "region": "Kanto"},
    {"customer_id": 2, "total_orders": 1, "total_amount": 450, "avg_order_value": 450, "last_order_date": "2024-01-15", "region": "Kansai"}
  ],
  "product_sales_summary": [
    {"product_id": 1, "category": "Electronics", "total_quantity": 1, "total_revenue": 2980, "order_count": 1, "date": "2024-01-15"}
  ],
  "daily_sales_summary": [
    {"date": "2024-01-15", "total_orders": 1, "total_revenue": 3280, "unique_customers": 1, "region": "Kanto"},
    {"date": "2024-01-15", "total_orders": 1, "total_revenue": 450, "unique_customers": 1, "region": "Kansai"}
  ]
}`

const customersQuery = `SELECT customer_id, total_orders, total_amount, avg_order_value, last_order_date, region
FROM customer_analytics ORDER BY customer_id`

const dailyQuery = `SELECT date, region, total_orders, total_revenue FROM daily_sales_summary ORDER BY region`

func TestLoadIsIdempotent(t *testing.T) {
	open, path := newTarget(t)
	s3 := newMemS3()
	s3.objects["etl-bucket/etl-data/2024-01-15/transformed_data.json"] = []byte(goodArtifact)
	ev := s3Event("etl-bucket", "etl-data/2024-01-15/transformed_data.json")
	l := newLoader(open, s3, &sleeps{})

	res, err := l.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 5, res.RecordsProcessed)
	assert.Equal(t, map[string]int{CustomerAnalytics: 2, ProductSalesSummary: 1, DailySalesSummary: 2}, res.Results)

	once := queryFile(t, path, customersQuery)
	onceDaily := queryFile(t, path, dailyQuery)

	_, err = l.Handle(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, once, queryFile(t, path, customersQuery))
	assert.Equal(t, onceDaily, queryFile(t, path, dailyQuery))
	assert.Len(t, once, 2)
}

func TestLoadIsAtomic(t *testing.T) {
	open, path := newTarget(t)
	s3 := newMemS3()
	s3.objects["b/good.json"] = []byte(goodArtifact)
	l := newLoader(open, s3, &sleeps{})

	_, err := l.Handle(context.Background(), s3Event("b", "good.json"))
	require.NoError(t, err)
	before := queryFile(t, path, customersQuery)

	// customer rows change, then the product set is missing "category".
	s3.objects["b/bad.json"] = []byte(`{
  "customer_analytics": [
    {"customer_id": 1, "total_orders": 99, "total_amount": 1, "avg_order_value": 1, "last_order_date": "2024-01-16", "region": "Kanto"},
    {"customer_id": 7, "total_orders": 1, "total_amount": 1, "avg_order_value": 1, "last_order_date": "2024-01-16", "region": "Tohoku"}
  ],
  "product_sales_summary": [
    {"product_id": 1, "total_quantity": 1, "total_revenue": 1, "order_count": 1, "date": "2024-01-16"}
  ]
}`)
	_, err = l.Handle(context.Background(), s3Event("b", "bad.json"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindData, apperr.KindOf(err))

	assert.Equal(t, before, queryFile(t, path, customersQuery))
}

func TestLoadRetriesRead(t *testing.T) {
	open, _ := newTarget(t)
	s3 := newMemS3()
	s3.objects["b/a.json"] = []byte(goodArtifact)
	s3.getFails = 2
	sl := &sleeps{}

	_, err := newLoader(open, s3, sl).Handle(context.Background(), s3Event("b", "a.json"))
	require.NoError(t, err)
	assert.Equal(t, 3, s3.gets)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.got)

	var total time.Duration
	for _, d := range sl.got {
		total += d
	}
	assert.GreaterOrEqual(t, total, 3*time.Second)
}

func TestLoadGivesUpAfterThreeReads(t *testing.T) {
	open, path := newTarget(t)
	s3 := newMemS3()
	s3.objects["b/a.json"] = []byte(goodArtifact)
	s3.getFails = 3
	sl := &sleeps{}

	_, err := newLoader(open, s3, sl).Handle(context.Background(), s3Event("b", "a.json"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
	assert.Equal(t, 3, s3.gets)
	assert.Len(t, sl.got, 2)
	assert.Empty(t, queryFile(t, path, customersQuery))
}

func TestLoadDecodesObjectKey(t *testing.T) {
	open, _ := newTarget(t)
	s3 := newMemS3()
	s3.objects["b/etl data/2024-01-15/transformed_data.json"] = []byte(goodArtifact)

	res, err := newLoader(open, s3, &sleeps{}).Handle(context.Background(),
		s3Event("b", "etl+data/2024-01-15/transformed_data.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Objects)
}

func TestLoadSkipsEmptySets(t *testing.T) {
	open, _ := newTarget(t)
	s3 := newMemS3()
	s3.objects["b/e.json"] = []byte(`{"customer_analytics": [], "daily_sales_summary": []}`)

	res, err := newLoader(open, s3, &sleeps{}).Handle(context.Background(), s3Event("b", "e.json"))
	require.NoError(t, err)
	assert.Zero(t, res.RecordsProcessed)
	assert.Empty(t, res.Results)
}

func TestExtractThenLoad(t *testing.T) {
	s3 := newMemS3()
	ex, err := newExtractor(t, newSeededSource(t), s3).Run(context.Background(), ExtractEvent{})
	require.NoError(t, err)

	open, path := newTarget(t)
	res, err := newLoader(open, s3, &sleeps{}).Handle(context.Background(), s3Event(ex.Bucket, ex.Key))
	require.NoError(t, err)
	assert.Equal(t, ex.RecordsProcessed, res.RecordsProcessed)

	rows := queryFile(t, path, customersQuery)
	require.Len(t, rows, 2)
	assert.Equal(t, 6260.0, rows[0]["total_amount"])
}

func TestInitializerIsRerunnable(t *testing.T) {
	src, srcPath := sqliteOpener(t, "source")
	tgt, _ := sqliteOpener(t, "target")
	initializer := NewInitializer(src, tgt, sqliteScripts(t), nil)

	first, err := initializer.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, first.SourceDB.SampleDataInserted)
	assert.Equal(t, 4, first.SourceDB.TablesCreated)
	assert.Equal(t, 3, first.TargetDB.TablesCreated)
	assert.Equal(t, 2, first.TargetDB.ViewsCreated)

	second, err := initializer.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, second.SourceDB.SampleDataInserted)
	assert.Equal(t, 2, second.TargetDB.ViewsCreated)

	rows := queryFile(t, srcPath, "SELECT COUNT(*) AS n FROM customers")
	assert.Equal(t, int64(3), rows[0]["n"])
}

type fakeCloudWatch struct{ data []cwtypes.MetricDatum }

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.data = append(f.data, in.MetricData...)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestLoadRecordsTimingAndPerSetCounts(t *testing.T) {
	open, _ := newTarget(t)
	s3 := newMemS3()
	s3.objects["b/a.json"] = []byte(goodArtifact)
	cw := &fakeCloudWatch{}
	rec := metrics.NewRecorder(cw, "ETL", nil, nil)

	l := NewLoader(open, s3, retry.Policy{Attempts: 3, Base: time.Second, Sleep: (&sleeps{}).sleep}, rec, nil)
	_, err := l.Handle(context.Background(), s3Event("b", "a.json"))
	require.NoError(t, err)
	rec.Flush(context.Background())

	perSet := map[string]float64{}
	var names []string
	for _, d := range cw.data {
		names = append(names, aws.ToString(d.MetricName))
		if aws.ToString(d.MetricName) != metrics.RecordsLoaded {
			continue
		}
		require.Len(t, d.Dimensions, 1)
		assert.Equal(t, metrics.RecordSetDimension, aws.ToString(d.Dimensions[0].Name))
		perSet[aws.ToString(d.Dimensions[0].Value)] = aws.ToFloat64(d.Value)
	}
	assert.Contains(t, names, metrics.S3ReadTime)
	assert.Contains(t, names, metrics.DataLoadTime)
	assert.Equal(t, map[string]float64{
		CustomerAnalytics:   2,
		ProductSalesSummary: 1,
		DailySalesSummary:   2,
	}, perSet)
}

func TestLoadLogsEachReadRetry(t *testing.T) {
	open, _ := newTarget(t)
	s3 := newMemS3()
	s3.objects["b/a.json"] = []byte(goodArtifact)
	s3.getFails = 2
	core, logs := observer.New(zap.WarnLevel)

	l := NewLoader(open, s3, retry.Policy{Attempts: 3, Base: time.Second, Sleep: (&sleeps{}).sleep}, nil, zap.New(core))
	_, err := l.Handle(context.Background(), s3Event("b", "a.json"))
	require.NoError(t, err)

	retries := logs.FilterMessage("s3 read attempt failed, retrying").All()
	require.Len(t, retries, 2)
	assert.Equal(t, int64(1), retries[0].ContextMap()["attempt"])
	assert.Equal(t, time.Second, retries[0].ContextMap()["delay"])
	assert.Equal(t, 2*time.Second, retries[1].ContextMap()["delay"])
}
