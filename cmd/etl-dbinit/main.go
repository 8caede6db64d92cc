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
	"workshop-functions/internal/etl"
	"workshop-functions/internal/handlers"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/secrets"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadDBInit()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, zap.String("function", "etl-dbinit"), zap.String("env", cfg.Environment))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}
	reader := secrets.NewReader(ssm.NewFromConfig(awsCfg))

	initializer := etl.NewInitializer(
		db.PostgresOpener(reader, cfg.Source, logger),
		db.PostgresOpener(reader, cfg.Target, logger),
		etl.DefaultScripts(),
		logger,
	)

	lambda.Start(func(ctx context.Context) (handlers.Result, error) {
		res, err := initializer.Run(ctx)
		if err != nil {
			logging.ForInvocation(ctx, logger).Error("database initialization failed", zap.Error(err))
			return handlers.ErrorResult(err), nil
		}
		return handlers.NewResult(200, res), nil
	})
}
