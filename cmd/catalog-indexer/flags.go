package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// runFlags returns all CLI flags for the run command
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "bootstrap-servers",
			Aliases: []string{"b"},
			Usage:   "Kafka broker addresses",
			EnvVars: []string{"KAFKA_BOOTSTRAP_SERVERS"},
			Value:   "localhost:9092",
		},
		&cli.StringFlag{
			Name:    "input-topic",
			Usage:   "Input topic for the generic event pipeline",
			EnvVars: []string{"TOPIC_INPUT"},
			Value:   "domain-events",
		},
		&cli.StringFlag{
			Name:    "output-topic",
			Usage:   "Output topic for validated events",
			EnvVars: []string{"TOPIC_OUTPUT"},
			Value:   "validated-events",
		},
		&cli.StringFlag{
			Name:    "dlt-topic",
			Usage:   "Dead-letter topic for the generic event pipeline",
			EnvVars: []string{"TOPIC_DLT"},
			Value:   "domain-events-dlt",
		},
		&cli.StringFlag{
			Name:    "group-id",
			Usage:   "Consumer group id for the generic event pipeline",
			EnvVars: []string{"KAFKA_GROUP_ID"},
			Value:   "event-pipeline",
		},
		&cli.StringFlag{
			Name:    "catalog-input-topic",
			Usage:   "Input topic for catalog events",
			EnvVars: []string{"TOPIC_CATALOG_INPUT"},
			Value:   "catalog-events",
		},
		&cli.StringFlag{
			Name:    "catalog-output-topic",
			Usage:   "Output topic for materialized item events",
			EnvVars: []string{"TOPIC_CATALOG_OUTPUT"},
			Value:   "catalog-items",
		},
		&cli.StringFlag{
			Name:    "catalog-dlt-topic",
			Usage:   "Dead-letter topic for the catalog pipeline",
			EnvVars: []string{"TOPIC_CATALOG_DLT"},
			Value:   "catalog-events-dlt",
		},
		&cli.StringFlag{
			Name:    "catalog-group-id",
			Usage:   "Consumer group id for the catalog pipeline",
			EnvVars: []string{"KAFKA_CATALOG_GROUP_ID"},
			Value:   "catalog-indexer",
		},
		&cli.IntFlag{
			Name:    "partitions",
			Usage:   "Partition count for topics created at startup",
			EnvVars: []string{"KAFKA_TOPIC_PARTITIONS"},
			Value:   3,
		},
		&cli.IntFlag{
			Name:    "replication-factor",
			Usage:   "Replication factor for topics created at startup",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
			Value:   1,
		},
		&cli.DurationFlag{
			Name:    "publish-timeout",
			Usage:   "How long to wait for a downstream publish confirmation",
			EnvVars: []string{"PUBLISH_TIMEOUT"},
			Value:   30 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "offset-commit-interval",
			Usage:   "Offset manager commit interval",
			EnvVars: []string{"KAFKA_OFFSET_COMMIT_INTERVAL"},
			Value:   5 * time.Second,
		},
		&cli.Int64Flag{
			Name:    "key-spread",
			Usage:   "Modulus for synthesized partition keys on keyless records; should track the output topic's partition count",
			EnvVars: []string{"KEY_SPREAD"},
			Value:   3,
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Listen address for the Prometheus metrics server",
			EnvVars: []string{"METRICS_ADDR"},
			Value:   ":9090",
		},
	}
}
