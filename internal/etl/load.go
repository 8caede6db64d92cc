package etl

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/db"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/metrics"
	"workshop-functions/internal/objectstore"
	"workshop-functions/internal/retry"
)

type LoadResult struct {
	Objects          int            `json:"objects"`
	RecordsProcessed int            `json:"records_processed"`
	Results          map[string]int `json:"results"`
}

type Loader struct {
	open    db.Opener
	s3      objectstore.Client
	policy  retry.Policy
	metrics *metrics.Recorder
	logger  *zap.Logger
}

func NewLoader(open db.Opener, s3 objectstore.Client, policy retry.Policy, m *metrics.Recorder, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{open: open, s3: s3, policy: policy, metrics: m, logger: logger}
}

// Handle loads every artifact named in the notification. The first failure is
// returned so the platform can retry the event.
func (l *Loader) Handle(ctx context.Context, ev events.S3Event) (*LoadResult, error) {
	log := logging.ForInvocation(ctx, l.logger)
	res := &LoadResult{Results: map[string]int{}}

	for _, rec := range ev.Records {
		bucket := rec.S3.Bucket.Name
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return res, apperr.Data(fmt.Sprintf("decode object key %q", rec.S3.Object.Key), err)
		}
		log.Info("processing object", zap.String("bucket", bucket), zap.String("key", key))

		artifact, err := l.Read(ctx, bucket, key)
		if err != nil {
			return res, err
		}

		start := time.Now()
		counts, err := l.Apply(ctx, artifact)
		if err != nil {
			log.Error("load failed", zap.String("key", key), zap.Error(err))
			return res, err
		}
		l.metrics.Duration(metrics.DataLoadTime, time.Since(start))

		res.Objects++
		for _, set := range RecordSets {
			n, ok := counts[set]
			if !ok {
				continue
			}
			res.Results[set] += n
			res.RecordsProcessed += n
			l.metrics.CountFor(metrics.RecordsLoaded, n, metrics.RecordSetDimension, set)
		}
		log.Info("load completed", zap.String("key", key), zap.Any("results", counts))
	}
	return res, nil
}

// Read fetches and decodes an artifact, retrying the whole read per policy.
func (l *Loader) Read(ctx context.Context, bucket, key string) (Artifact, error) {
	store := objectstore.New(l.s3, bucket)
	log := logging.ForInvocation(ctx, l.logger)

	policy := l.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("s3 read attempt failed, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
	}

	var artifact Artifact
	start := time.Now()
	err := retry.Do(ctx, policy, func(int) error {
		body, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		a, err := DecodeArtifact(body)
		if err != nil {
			return err
		}
		artifact = a
		return nil
	})
	if err != nil {
		log.Error("failed to read s3 object", zap.String("key", key), zap.Int("attempts", policy.Attempts), zap.Error(err))
		l.metrics.Count(metrics.S3ReadError, 1)
		return nil, err
	}
	l.metrics.Duration(metrics.S3ReadTime, time.Since(start))
	return artifact, nil
}

// DecodeArtifact keeps numbers as json.Number so integers are not widened to float.
func DecodeArtifact(body []byte) (Artifact, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var a Artifact
	if err := dec.Decode(&a); err != nil {
		return nil, apperr.Data("decode artifact", err)
	}
	return a, nil
}

// Apply upserts every non-empty record set inside one transaction.
func (l *Loader) Apply(ctx context.Context, artifact Artifact) (map[string]int, error) {
	pool, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	counts := map[string]int{}
	err = pool.WithTx(ctx, func(tx *sql.Tx) error {
		return ApplyTx(ctx, tx, pool.Dialect(), artifact, counts)
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ApplyTx writes the record sets in RecordSets order and fills counts.
func ApplyTx(ctx context.Context, tx execer, d db.Dialect, artifact Artifact, counts map[string]int) error {
	for _, set := range RecordSets {
		records := artifact[set]
		if len(records) == 0 {
			continue
		}
		n, err := Upsert(ctx, tx, d, UpsertSpecs[set], records)
		if err != nil {
			return err
		}
		counts[set] = n
	}
	return nil
}
