package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"workshop-functions/internal/config"
	"workshop-functions/internal/db"
	"workshop-functions/internal/etl"
	"workshop-functions/internal/handlers"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/metrics"
	"workshop-functions/internal/objectstore"
	"workshop-functions/internal/secrets"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadExtract()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, zap.String("function", "etl-extract"), zap.String("env", cfg.Environment))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}

	reader := secrets.NewReader(ssm.NewFromConfig(awsCfg))
	store := objectstore.New(s3.NewFromConfig(awsCfg), cfg.Bucket)
	cw := cloudwatch.NewFromConfig(awsCfg)

	handler := func(ctx context.Context, ev etl.ExtractEvent) (handlers.Result, error) {
		rec := metrics.NewRecorder(cw, cfg.MetricsNamespace, logger, map[string]string{"Service": "etl-extract"})
		defer rec.Flush(ctx)

		ex, err := etl.NewExtractor(cfg, db.PostgresOpener(reader, cfg.Source, logger), store, logger,
			etl.WithExtractMetrics(rec))
		if err != nil {
			return handlers.ErrorResult(err), nil
		}
		res, err := ex.Run(ctx, ev)
		if err != nil {
			logging.ForInvocation(ctx, logger).Error("extract failed", zap.Error(err))
			return handlers.ErrorResult(err), nil
		}
		return handlers.NewResult(200, res), nil
	}
	lambda.Start(handler)
}
