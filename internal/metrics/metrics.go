// Package metrics buffers CloudWatch datums during an invocation and sends them once.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

const (
	ExtractionTime   = "ExtractionTime"
	RecordsExtracted = "RecordsExtracted"
	S3ReadError      = "S3ReadError"
	S3ReadTime       = "S3ReadTime"
	RecordsLoaded    = "RecordsLoaded"
	DataLoadTime     = "DataLoadTime"
)

// RecordSetDimension tags per-set counts.
const RecordSetDimension = "RecordSet"

// CloudWatch PutMetricData accepts at most this many datums per call.
const maxDatums = 1000

type Client interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Client = (*cloudwatch.Client)(nil)

// Recorder is a no-op when the namespace or client is empty.
type Recorder struct {
	client     Client
	namespace  string
	dimensions []types.Dimension
	logger     *zap.Logger

	mu    sync.Mutex
	datum []types.MetricDatum
}

func NewRecorder(client Client, namespace string, logger *zap.Logger, dims map[string]string) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{client: client, namespace: namespace, logger: logger}
	for name, value := range dims {
		r.dimensions = append(r.dimensions, types.Dimension{Name: aws.String(name), Value: aws.String(value)})
	}
	return r
}

func (r *Recorder) enabled() bool {
	return r != nil && r.client != nil && r.namespace != ""
}

func (r *Recorder) add(name string, value float64, unit types.StandardUnit, extra ...types.Dimension) {
	if !r.enabled() {
		return
	}
	dims := r.dimensions
	if len(extra) > 0 {
		dims = append(append(make([]types.Dimension, 0, len(r.dimensions)+len(extra)), r.dimensions...), extra...)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datum = append(r.datum, types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dims,
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
	})
}

func (r *Recorder) Count(name string, n int) {
	r.add(name, float64(n), types.StandardUnitCount)
}

// CountFor records n with one extra dimension on top of the recorder's own.
func (r *Recorder) CountFor(name string, n int, dimension, value string) {
	r.add(name, float64(n), types.StandardUnitCount,
		types.Dimension{Name: aws.String(dimension), Value: aws.String(value)})
}

func (r *Recorder) Duration(name string, d time.Duration) {
	r.add(name, d.Seconds(), types.StandardUnitSeconds)
}

func (r *Recorder) Pending() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.datum)
}

// Flush sends buffered datums. Failures are logged and never fail the invocation.
func (r *Recorder) Flush(ctx context.Context) {
	if !r.enabled() {
		return
	}
	r.mu.Lock()
	pending := r.datum
	r.datum = nil
	r.mu.Unlock()

	for start := 0; start < len(pending); start += maxDatums {
		end := min(start+maxDatums, len(pending))
		_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(r.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			r.logger.Warn("failed to send metrics", zap.Error(err), zap.Int("datums", end-start))
		}
	}
}
