package mq

import (
	"fmt"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var dialFn = amqp.Dial

// Connection wraps the broker connection shared by publisher and consumer.
type Connection struct {
	conn   *amqp.Connection
	logger *zap.Logger
}

func Dial(url string, logger *zap.Logger) (*Connection, error) {
	logger = logging.OrNop(logger)
	conn, err := dialFn(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	logger.Info("rabbitmq connection established")
	return &Connection{conn: conn, logger: logger}, nil
}

func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

func (c *Connection) Close() error {
	if err := c.conn.Close(); err != nil {
		c.logger.Error("failed to close rabbitmq connection", zap.Error(err))
		return err
	}
	c.logger.Info("rabbitmq connection closed")
	return nil
}
