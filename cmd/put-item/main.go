package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"workshop-functions/internal/config"
	"workshop-functions/internal/db"
	"workshop-functions/internal/kvstore"
	"workshop-functions/internal/logging"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadPutItem()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, zap.String("function", "put-item"), zap.String("env", cfg.Environment))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}

	h := kvstore.NewHandler(ddb, cfg.TableName, logger)
	lambda.Start(h.Handle)
}
