package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"workshop-functions/internal/config"
	"workshop-functions/internal/db"
	"workshop-functions/internal/handlers"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/rdsexport"
	"workshop-functions/internal/secrets"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadRDS()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, zap.String("function", "rds-check"), zap.String("env", cfg.Environment))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}
	open := db.PostgresOpener(secrets.NewReader(ssm.NewFromConfig(awsCfg)), cfg.DB, logger)
	checker := rdsexport.NewChecker(open, rdsexport.PostgresStatements, logger)

	lambda.Start(func(ctx context.Context) (handlers.Result, error) {
		res, err := checker.Check(ctx)
		if err != nil {
			logging.ForInvocation(ctx, logger).Error("database check failed", zap.Error(err))
			return handlers.ErrorResult(err), nil
		}
		return handlers.NewResult(200, res), nil
	})
}
