// Package kafka publishes game events for downstream analytics. Publishing
// is fire and forget: a broker outage degrades the audit trail, never a
// player's request.
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/domain"
)

// Producer publishes game events to a Kafka topic
type Producer struct {
	config   *config.KafkaConfig
	producer sarama.AsyncProducer
	logger   *slog.Logger
}

// NewProducer creates a new Kafka game-event producer
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	p := &Producer{
		config:   cfg,
		producer: producer,
		logger:   logger,
	}

	// Drain delivery errors; failed events are logged and dropped.
	go func() {
		for err := range producer.Errors() {
			p.logger.Warn("failed to deliver game event", "error", err.Err)
		}
	}()

	return p, nil
}

// Publish enqueues a game event. Serialization failures are logged, not
// returned; callers never block on the event pipeline.
func (p *Producer) Publish(event domain.GameEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal game event", "error", err)
		return
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.config.Topic,
		// Key by player so one player's events stay ordered per partition.
		Key:   sarama.StringEncoder(strconv.FormatInt(event.PlayerID, 10)),
		Value: sarama.ByteEncoder(payload),
	}
}

// Close flushes pending events and shuts the producer down
func (p *Producer) Close() error {
	return p.producer.Close()
}
