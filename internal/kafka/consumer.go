package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/config"
)

// AckCommand asks for the warnings of a panel at a timestamp to be removed
type AckCommand struct {
	Timestamp float64
	Panel     int
}

// AckHandler applies an acknowledgement command
type AckHandler func(cmd AckCommand)

// Consumer reads acknowledgement commands from Kafka
type Consumer struct {
	id       string
	log      *zap.Logger
	config   config.KafkaConfig
	consumer sarama.ConsumerGroup
	handler  AckHandler
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(id string, cfg config.KafkaConfig, handler AckHandler, logger *zap.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.MaxWaitTime = 250 * time.Millisecond

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return &Consumer{
		id:       id,
		log:      logger.Named("kafka-consumer").With(zap.String("consumer", id)),
		config:   cfg,
		consumer: client,
		handler:  handler,
	}, nil
}

// Consume starts consuming messages from Kafka until ctx is cancelled
func (c *Consumer) Consume(ctx context.Context) error {
	// Setup error handling
	go func() {
		for err := range c.consumer.Errors() {
			c.log.Error("consumer group error", zap.Error(err))
		}
	}()

	handler := &consumerGroupHandler{consumer: c, ctx: ctx}

	for {
		if err := c.consumer.Consume(ctx, []string{c.config.AckTopic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

type ackMessage struct {
	Timestamp *float64 `json:"timestamp"`
	Panel     *float64 `json:"panel"`
}

// DecodeAck parses an acknowledgement command payload
func DecodeAck(data []byte) (AckCommand, error) {
	var msg ackMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return AckCommand{}, fmt.Errorf("decode acknowledgement: %w", err)
	}
	if msg.Timestamp == nil || msg.Panel == nil {
		return AckCommand{}, errors.New("acknowledgement needs timestamp and panel")
	}
	panel := int(*msg.Panel)
	if float64(panel) != *msg.Panel {
		return AckCommand{}, fmt.Errorf("panel must be an integer, got %v", *msg.Panel)
	}
	return AckCommand{Timestamp: *msg.Timestamp, Panel: panel}, nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ctx      context.Context
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}
		h.consumer.handle(message)
		session.MarkMessage(message, "")
	}
	return nil
}

func (c *Consumer) handle(message *sarama.ConsumerMessage) {
	cmd, err := DecodeAck(message.Value)
	if err != nil {
		c.log.Warn("dropping acknowledgement",
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(err))
		return
	}
	c.handler(cmd)
}
