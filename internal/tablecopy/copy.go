// Package tablecopy copies every item of one DynamoDB table into another and
// moves table contents to and from JSON files.
package tablecopy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
)

// BatchSize is the BatchWriteItem request limit.
const BatchSize = 25

type Client interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

type Item = map[string]ddbtypes.AttributeValue

type Result struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Scanned     int    `json:"scanned"`
	Written     int    `json:"written"`
	Pages       int    `json:"pages"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

type Copier struct {
	client Client
	logger *zap.Logger

	// PageSize sets Scan Limit when positive.
	PageSize int32
	DryRun   bool
	// ResendRounds bounds how often unprocessed items are resent per chunk.
	ResendRounds int
	Backoff      time.Duration
	sleep        func(time.Duration)
}

func NewCopier(client Client, logger *zap.Logger) *Copier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Copier{
		client:       client,
		logger:       logger,
		ResendRounds: 5,
		Backoff:      100 * time.Millisecond,
		sleep:        time.Sleep,
	}
}

// Copy scans source page by page and writes each page into destination.
// Any error aborts the run; there is no checkpoint, reruns overwrite.
func (c *Copier) Copy(ctx context.Context, source, destination string) (Result, error) {
	res := Result{Source: source, Destination: destination, DryRun: c.DryRun}
	if source == "" || destination == "" {
		return res, apperr.Config("source and destination tables are required", nil)
	}

	err := c.ScanAll(ctx, source, func(items []Item) error {
		res.Pages++
		res.Scanned += len(items)
		if c.DryRun {
			return nil
		}
		n, err := c.WriteAll(ctx, destination, items)
		res.Written += n
		return err
	})
	if err != nil {
		return res, err
	}

	c.logger.Info("table copy finished",
		zap.String("source", source),
		zap.String("destination", destination),
		zap.Int("scanned", res.Scanned),
		zap.Int("written", res.Written),
		zap.Int("pages", res.Pages),
	)
	return res, nil
}

// ScanAll calls fn once per Scan page until LastEvaluatedKey comes back empty.
func (c *Copier) ScanAll(ctx context.Context, table string, fn func(items []Item) error) error {
	var startKey Item
	for {
		in := &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: startKey,
		}
		if c.PageSize > 0 {
			in.Limit = aws.Int32(c.PageSize)
		}

		out, err := c.client.Scan(ctx, in)
		if err != nil {
			return apperr.Connectivity(fmt.Sprintf("dynamodb scan %s", table), err)
		}
		if err := fn(out.Items); err != nil {
			return err
		}

		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// WriteAll puts items in chunks of BatchSize and returns how many were accepted.
func (c *Copier) WriteAll(ctx context.Context, table string, items []Item) (int, error) {
	written := 0
	for start := 0; start < len(items); start += BatchSize {
		end := min(start+BatchSize, len(items))
		if err := c.writeChunk(ctx, table, items[start:end]); err != nil {
			return written, err
		}
		written += end - start
	}
	return written, nil
}

func (c *Copier) writeChunk(ctx context.Context, table string, chunk []Item) error {
	reqs := make([]ddbtypes.WriteRequest, 0, len(chunk))
	for _, it := range chunk {
		reqs = append(reqs, ddbtypes.WriteRequest{PutRequest: &ddbtypes.PutRequest{Item: it}})
	}
	pending := map[string][]ddbtypes.WriteRequest{table: reqs}

	for round := 0; ; round++ {
		out, err := c.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return apperr.Connectivity(fmt.Sprintf("dynamodb batch write %s", table), err)
		}
		left := out.UnprocessedItems[table]
		if len(left) == 0 {
			return nil
		}
		if round >= c.ResendRounds {
			return apperr.Transient(fmt.Sprintf("%d items still unprocessed after %d resends", len(left), round), nil)
		}
		c.logger.Warn("resending unprocessed items", zap.String("table", table), zap.Int("count", len(left)), zap.Int("round", round+1))
		c.sleep(c.Backoff * time.Duration(1<<round))
		pending = map[string][]ddbtypes.WriteRequest{table: left}
	}
}
