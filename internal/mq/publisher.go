package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/trip"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type publishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher emits trip.scored events on a topic exchange.
type Publisher struct {
	channel    publishChannel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

func NewPublisher(conn *Connection, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return newPublisher(ch, exchange, routingKey, logger)
}

func newPublisher(ch publishChannel, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logging.OrNop(logger),
	}, nil
}

func (p *Publisher) PublishTripScored(ctx context.Context, event trip.TripScored) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal trip scored event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Timestamp:    event.OccurredAt,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish trip scored event: %w", err)
	}

	p.logger.Debug("published trip scored event",
		zap.String("event_id", event.EventID),
		zap.Int64("user_id", event.UserID),
		zap.Int64("trip_id", event.TripID),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}
