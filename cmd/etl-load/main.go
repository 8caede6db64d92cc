package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"workshop-functions/internal/config"
	"workshop-functions/internal/db"
	"workshop-functions/internal/etl"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/metrics"
	"workshop-functions/internal/retry"
	"workshop-functions/internal/secrets"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadLoad()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, zap.String("function", "etl-load"), zap.String("env", cfg.Environment))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}

	reader := secrets.NewReader(ssm.NewFromConfig(awsCfg))
	s3c := s3.NewFromConfig(awsCfg)
	cw := cloudwatch.NewFromConfig(awsCfg)

	// Loader.Read logs each retry with the invocation's request id.
	policy := retry.Policy{Attempts: cfg.MaxAttempts, Base: cfg.BaseDelay}

	// Errors are returned so the S3 notification is retried by the platform.
	handler := func(ctx context.Context, ev events.S3Event) (*etl.LoadResult, error) {
		rec := metrics.NewRecorder(cw, cfg.MetricsNamespace, logger, map[string]string{"Service": "etl-load"})
		defer rec.Flush(ctx)

		l := etl.NewLoader(db.PostgresOpener(reader, cfg.Target, logger), s3c, policy, rec, logger)
		return l.Handle(ctx, ev)
	}
	lambda.Start(handler)
}
