package etl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/config"
	"workshop-functions/internal/db"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/metrics"
	"workshop-functions/internal/objectstore"
)

// Query produces one record set. Args receives the target date.
type Query struct {
	Set  string
	SQL  string
	Args func(date time.Time) []any
}

func singleDateArg(date time.Time) []any {
	return []any{time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)}
}

// DefaultQueries are the PostgreSQL queries shipped with the function.
func DefaultQueries() []Query {
	return []Query{
		{Set: CustomerAnalytics, SQL: MustSQL("customer_analytics.sql"), Args: singleDateArg},
		{Set: ProductSalesSummary, SQL: MustSQL("product_sales.sql"), Args: singleDateArg},
		{Set: DailySalesSummary, SQL: MustSQL("daily_sales.sql"), Args: singleDateArg},
	}
}

// ExtractEvent covers scheduled events and manual invokes. TargetDate is YYYY-MM-DD.
type ExtractEvent struct {
	TargetDate string `json:"target_date,omitempty"`
}

type ExtractResult struct {
	ProcessedDate    string         `json:"processed_date"`
	Bucket           string         `json:"bucket"`
	Key              string         `json:"s3_key"`
	Counts           map[string]int `json:"counts"`
	RecordsProcessed int            `json:"records_processed"`
}

type Extractor struct {
	open    db.Opener
	store   *objectstore.Store
	prefix  string
	loc     *time.Location
	queries []Query
	metrics *metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

type ExtractorOption func(*Extractor)

func WithQueries(q []Query) ExtractorOption       { return func(e *Extractor) { e.queries = q } }
func WithClock(now func() time.Time) ExtractorOption { return func(e *Extractor) { e.now = now } }
func WithExtractMetrics(m *metrics.Recorder) ExtractorOption {
	return func(e *Extractor) { e.metrics = m }
}

func NewExtractor(cfg *config.Extract, open db.Opener, store *objectstore.Store, logger *zap.Logger, opts ...ExtractorOption) (*Extractor, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, apperr.Config("load timezone", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		open:    open,
		store:   store,
		prefix:  cfg.Prefix,
		loc:     loc,
		queries: DefaultQueries(),
		logger:  logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// TargetDate resolves the processing date: the event override, else yesterday.
func (e *Extractor) TargetDate(ev ExtractEvent) (time.Time, error) {
	if ev.TargetDate != "" {
		d, err := ParseDate(ev.TargetDate, e.loc)
		if err != nil {
			return time.Time{}, apperr.Data("invalid target_date", err)
		}
		return d, nil
	}
	return Yesterday(e.now(), e.loc), nil
}

// Run extracts every record set for the target date and writes the artifact last.
// Nothing is written when any query fails.
func (e *Extractor) Run(ctx context.Context, ev ExtractEvent) (*ExtractResult, error) {
	log := logging.ForInvocation(ctx, e.logger)

	date, err := e.TargetDate(ev)
	if err != nil {
		return nil, err
	}
	log.Info("processing data", zap.String("date", date.Format(DateLayout)))

	pool, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			log.Warn("close pool", zap.Error(err))
		}
	}()

	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	artifact := make(Artifact, len(e.queries))
	for _, q := range e.queries {
		recs, err := queryRecords(ctx, conn, q.SQL, q.Args(date)...)
		if err != nil {
			return nil, db.QueryError(fmt.Sprintf("extract %s", q.Set), err)
		}
		artifact[q.Set] = recs
		log.Info("extracted records", zap.String("set", q.Set), zap.Int("count", len(recs)))
	}
	e.metrics.Duration(metrics.ExtractionTime, time.Since(start))
	e.metrics.Count(metrics.RecordsExtracted, artifact.Count())

	key := ArtifactKey(e.prefix, date)
	if err := e.store.PutJSON(ctx, key, artifact); err != nil {
		return nil, err
	}
	log.Info("artifact written", zap.String("bucket", e.store.Bucket()), zap.String("key", key), zap.Int("records", artifact.Count()))

	return &ExtractResult{
		ProcessedDate:    date.Format(DateLayout),
		Bucket:           e.store.Bucket(),
		Key:              key,
		Counts:           artifact.Counts(),
		RecordsProcessed: artifact.Count(),
	}, nil
}
