package kafka

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default consumer tuning values.
const (
	DefaultOffsetCommitInterval = 5 * time.Second
	DefaultPartitionBuffer      = 64
	DefaultFlushTimeout         = 15 * time.Second
)

// ConsumerConfig holds the configuration for a Consumer.
type ConsumerConfig struct {
	Topic                string        `env:"KAFKA_TOPIC"`                                            // Topic to consume from
	DLQTopic             string        `env:"KAFKA_DLQ_TOPIC"`                                        // Dead-letter topic for failed records
	BootstrapServers     string        `env:"KAFKA_BOOTSTRAP_SERVERS"      envDefault:"localhost:9092"` // Broker addresses
	GroupID              string        `env:"KAFKA_GROUP_ID"`                                         // Consumer group id
	AutoOffsetReset      string        `env:"KAFKA_AUTO_OFFSET_RESET"      envDefault:"earliest"`     // "earliest" or "latest"
	OffsetCommitInterval time.Duration `env:"KAFKA_OFFSET_COMMIT_INTERVAL" envDefault:"5s"`           // Offset manager commit interval
	PartitionBuffer      int           `env:"KAFKA_PARTITION_BUFFER"       envDefault:"64"`           // Per-partition worker channel capacity
	FlushTimeout         time.Duration `env:"KAFKA_FLUSH_TIMEOUT"          envDefault:"15s"`          // Producer flush timeout on close
	IsDLQConsumer        bool          `env:"KAFKA_IS_DLQ_CONSUMER"        envDefault:"false"`        // If true, failures are not re-routed to the DLQ
}

// LoadConsumerConfig loads consumer configuration from environment variables.
func LoadConsumerConfig() (ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := env.Parse(&cfg); err != nil {
		return ConsumerConfig{}, fmt.Errorf("failed to parse consumer config: %w", err)
	}
	return cfg, nil
}

// WithDefaults returns a copy of the config with zero-valued tuning fields
// filled in. The original config is not mutated.
func (c ConsumerConfig) WithDefaults() ConsumerConfig {
	if c.OffsetCommitInterval <= 0 {
		c.OffsetCommitInterval = DefaultOffsetCommitInterval
	}
	if c.PartitionBuffer <= 0 {
		c.PartitionBuffer = DefaultPartitionBuffer
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	return c
}

// Validate checks the fields without defaults.
func (c ConsumerConfig) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("consumer topic cannot be empty")
	}
	if c.GroupID == "" {
		return fmt.Errorf("consumer group id cannot be empty")
	}
	if c.BootstrapServers == "" {
		return fmt.Errorf("bootstrap servers cannot be empty")
	}
	if !c.IsDLQConsumer && c.DLQTopic == "" {
		return fmt.Errorf("dead-letter topic cannot be empty on a non-DLQ consumer")
	}
	return nil
}
