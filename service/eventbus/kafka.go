package eventbus

import (
	"context"
	"sync"

	"teamchat/logger"
	"teamchat/module/messaging/dispatch"
	"teamchat/tools/safe"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KafkaBus publishes events keyed by their partition key and consumes
// them through a consumer group. One claim is processed by one goroutine,
// so per-partition order carries straight through to the dispatcher.
type KafkaBus struct {
	conf     KafkaConfig
	client   sarama.Client
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	handler  Handler

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewKafkaBus(conf KafkaConfig, handler Handler) (*KafkaBus, error) {
	conf.norm()
	if len(conf.Brokers) == 0 {
		return nil, errors.New("kafka brokers is empty")
	}

	cfg := buildSaramaConfig(conf)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "sarama config validate")
	}

	client, err := sarama.NewClient(conf.Brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka client")
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "kafka producer")
	}

	b := &KafkaBus{conf: conf, client: client, producer: producer, handler: handler}
	if handler != nil {
		group, err := sarama.NewConsumerGroupFromClient(conf.GroupID, client)
		if err != nil {
			_ = producer.Close()
			_ = client.Close()
			return nil, errors.Wrap(err, "kafka consumer group")
		}
		b.group = group
		ctx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel
		safe.Go("eventbus-kafka-errors", func() {
			for err := range group.Errors() {
				logger.Error("kafka consumer group error", zap.Error(err))
			}
		})
		safe.Go("eventbus-kafka-consume", func() {
			for {
				if err := group.Consume(ctx, []string{conf.Topic}, &groupHandler{handler: handler}); err != nil {
					logger.Error("kafka consume", zap.Error(err))
				}
				if ctx.Err() != nil {
					return
				}
			}
		})
	}
	return b, nil
}

func (b *KafkaBus) Publish(_ context.Context, ev dispatch.Event) error {
	raw, err := ev.Encode()
	if err != nil {
		return err
	}
	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.conf.Topic,
		Key:   sarama.StringEncoder(ev.PartitionKey()),
		Value: sarama.ByteEncoder(raw),
	})
	return errors.Wrap(err, "kafka publish")
}

func (b *KafkaBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		if b.group != nil {
			err = b.group.Close()
		}
		_ = b.producer.Close()
		_ = b.client.Close()
	})
	return err
}

type groupHandler struct {
	handler Handler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		ev, err := dispatch.DecodeEvent(msg.Value)
		if err != nil {
			logger.Errorf("[eventbus] drop undecodable event topic=%s offset=%d: %v", msg.Topic, msg.Offset, err)
			session.MarkMessage(msg, "")
			continue
		}
		h.handler(session.Context(), ev)
		session.MarkMessage(msg, "")
	}
	return nil
}
