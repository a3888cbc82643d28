package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "catalog-indexer",
		Usage: "Ingest domain events from Kafka, materialize catalog items, and fan out indexing events",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the ingestion pipelines",
				Flags:  runFlags(),
				Action: run,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
