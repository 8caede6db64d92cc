// Command table-copy copies every item from one DynamoDB table to another,
// exports/imports a table as a JSON file, or seeds sample data.
//
//	table-copy -source users -destination users-copy [-page-size 100] [-dry-run]
//	table-copy -source users -export users.json
//	table-copy -destination users -import users.json
//	table-copy -destination users -seed 100
//
// SOURCE_TABLE and DESTINATION_TABLE may come from the environment or a .env file.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"workshop-functions/internal/db"
	"workshop-functions/internal/logging"
	"workshop-functions/internal/tablecopy"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		log.Fatalf("table-copy: %v", err)
	}

	logger, err := logging.New(opts.LogLevel, zap.String("run_id", uuid.NewString()))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	ddb, err := db.NewDynamoClient(ctx, loadOpts...)
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}

	c := tablecopy.NewCopier(ddb, logger)
	c.PageSize = int32(opts.PageSize)
	c.DryRun = opts.DryRun

	if err := run(ctx, c, opts); err != nil {
		logger.Error("table-copy failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, c *tablecopy.Copier, opts options) error {
	switch {
	case opts.Seed > 0:
		n, err := c.Seed(ctx, opts.Destination, opts.Seed)
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d items into %s\n", n, opts.Destination)
		return nil
	case opts.ExportFile != "":
		return exportTable(ctx, c, opts.Source, opts.ExportFile)
	case opts.ImportFile != "":
		return importTable(ctx, c, opts.Destination, opts.ImportFile)
	default:
		res, err := c.Copy(ctx, opts.Source, opts.Destination)
		if err != nil {
			return err
		}
		fmt.Println(tablecopy.MarshalResult(res))
		return nil
	}
}

func exportTable(ctx context.Context, c *tablecopy.Copier, table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	n, err := c.Export(ctx, table, f)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d items from %s to %s\n", n, table, path)
	return f.Close()
}

func importTable(ctx context.Context, c *tablecopy.Copier, table, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n, err := c.Import(ctx, table, f)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d items from %s into %s\n", n, path, table)
	return nil
}
