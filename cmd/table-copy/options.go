package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

type options struct {
	Source      string
	Destination string
	PageSize    int
	DryRun      bool
	ExportFile  string
	ImportFile  string
	Seed        int
	Region      string
	LogLevel    string
}

// parseOptions loads envFiles (".env" when none are given) before reading
// SOURCE_TABLE and DESTINATION_TABLE, so precedence is flag, process
// environment, then file. A missing env file is not an error.
func parseOptions(args []string, envFiles ...string) (options, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return options{}, fmt.Errorf("load env file: %w", err)
	}

	var o options
	set := flag.NewFlagSet("table-copy", flag.ContinueOnError)
	set.StringVar(&o.Source, "source", os.Getenv("SOURCE_TABLE"), "source table name")
	set.StringVar(&o.Destination, "destination", os.Getenv("DESTINATION_TABLE"), "destination table name")
	set.IntVar(&o.PageSize, "page-size", 0, "scan page size (0 lets DynamoDB decide)")
	set.BoolVar(&o.DryRun, "dry-run", false, "scan only, write nothing")
	set.StringVar(&o.ExportFile, "export", "", "write source items to this JSON file instead of copying")
	set.StringVar(&o.ImportFile, "import", "", "put items from this JSON file into destination")
	set.IntVar(&o.Seed, "seed", 0, "write N sample users (PROFILE + ORDER items) into destination")
	set.StringVar(&o.Region, "region", "", "AWS region (defaults to the shared config)")
	set.StringVar(&o.LogLevel, "log-level", "info", "log level")

	if err := set.Parse(args); err != nil {
		return options{}, err
	}
	if o.PageSize < 0 {
		return options{}, fmt.Errorf("-page-size must not be negative")
	}
	return o, nil
}
