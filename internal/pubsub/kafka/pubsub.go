package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/kafka"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/pubsub"
)

type PubSub struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	logger   *logger.Logger
}

// NewPubSub creates a kafka-backed outbox transport
func NewPubSub(cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	producer, err := kafka.NewProducer(cfg, log)
	if err != nil {
		return nil, err
	}

	consumer, err := kafka.NewConsumer(cfg, log)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}

	return &PubSub{
		producer: producer,
		consumer: consumer,
		logger:   log,
	}, nil
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return p.producer.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.consumer.Subscribe(ctx, topic)
}

func (p *PubSub) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.Errorw("failed to close kafka producer", "error", err)
	}
	return p.consumer.Close()
}
