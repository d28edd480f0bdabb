package mq

import (
	"context"
	"fmt"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler processes one delivery body. A returned error dead-letters the message.
type MessageHandler func(ctx context.Context, body []byte) error

type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Consumer reads a queue one delivery at a time so per-queue order is kept.
type Consumer struct {
	channel  consumeChannel
	queue    string
	prefetch int
	handler  MessageHandler
	logger   *zap.Logger
}

func NewConsumer(conn *Connection, queue string, prefetch int, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	return newConsumer(ch, queue, prefetch, handler, logger)
}

func newConsumer(ch consumeChannel, queue string, prefetch int, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	dlq := queue + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", dlq, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &Consumer{
		channel:  ch,
		queue:    queue,
		prefetch: prefetch,
		handler:  handler,
		logger:   logging.OrNop(logger),
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started", zap.String("queue", c.queue), zap.Int("prefetch", c.prefetch))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consume %s: delivery channel closed", c.queue)
			}
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg amqp.Delivery) {
	log := logging.WithRequestID(c.logger, msg.MessageId)
	if err := c.handler(ctx, msg.Body); err != nil {
		log.Warn("message rejected", zap.String("queue", c.queue), zap.Error(err))
		if nackErr := msg.Nack(false, false); nackErr != nil {
			log.Error("failed to nack message", zap.Error(nackErr))
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		log.Error("failed to ack message", zap.Error(ackErr))
	}
}

func (c *Consumer) Close() error {
	return c.channel.Close()
}
