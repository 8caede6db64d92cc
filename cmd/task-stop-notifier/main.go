package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"workshop-functions/internal/config"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/notify"
	"workshop-functions/internal/secrets"
	"workshop-functions/internal/webhook"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadNotifier()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, zap.String("function", "task-stop-notifier"), zap.String("env", cfg.Environment))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}

	url, err := webhook.ResolveURL(ctx, cfg.Webhook, secrets.NewReader(ssm.NewFromConfig(awsCfg)))
	if err != nil {
		logger.Fatal("resolve webhook url", zap.Error(err))
	}

	history := notify.NewLogHistory(cloudwatchlogs.NewFromConfig(awsCfg), cfg.LogGroupName)
	n := notify.NewNotifier(cfg, history, webhook.New(url, webhook.WithLogger(logger)), logger)
	lambda.Start(n.Handle)
}
