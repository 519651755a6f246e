package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/config"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
)

// Producer publishes warning and fault events, keyed by panel id
type Producer struct {
	log      *zap.Logger
	producer sarama.SyncProducer
	topic    string
}

// NewProducer connects a synchronous producer to the configured brokers
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(producer, cfg.EventsTopic, logger), nil
}

func newProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Producer {
	return &Producer{
		log:      logger.Named("kafka-producer"),
		producer: producer,
		topic:    topic,
	}
}

// Name identifies the sink in logs
func (p *Producer) Name() string { return "kafka" }

// WriteCycle publishes every event raised in the cycle
func (p *Producer) WriteCycle(_ context.Context, result models.CycleResult) error {
	var errs []error
	for _, event := range result.Events {
		value, err := json.Marshal(event)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode event %s: %w", event.ID, err))
			continue
		}
		partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(strconv.Itoa(event.PanelID)),
			Value: sarama.ByteEncoder(value),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publish event %s: %w", event.ID, err))
			continue
		}
		p.log.Debug("event published",
			zap.String("kind", string(event.Kind)),
			zap.Int("panel", event.PanelID),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset))
	}
	return errors.Join(errs...)
}

// Close closes the underlying producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
