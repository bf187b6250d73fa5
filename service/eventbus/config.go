package eventbus

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// KafkaConfig tunes the kafka-backed bus.
type KafkaConfig struct {
	Brokers               []string
	GroupID               string
	Topic                 string
	ProducerRetries       int
	ProducerCompression   string // none/snappy/lz4/zstd
	ConsumerInitialOffset string // newest/oldest
	Version               sarama.KafkaVersion
}

func (c *KafkaConfig) norm() {
	if c.Topic == "" {
		c.Topic = "teamchat.events"
	}
	if c.GroupID == "" {
		c.GroupID = "teamchat-dispatch"
	}
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 5
	}
	if c.Version == (sarama.KafkaVersion{}) {
		c.Version = sarama.V2_8_0_0
	}
}

// buildSaramaConfig keys partitioning off the message key. Events for one
// conversation share a key, land on one partition and stay ordered.
func buildSaramaConfig(c KafkaConfig) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = c.Version

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	switch strings.ToLower(c.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	switch strings.ToLower(c.ConsumerInitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}
