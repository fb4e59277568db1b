package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig describes the RabbitMQ topic exchange sink.
type AMQPConfig struct {
	URL      string
	Exchange string
	Durable  bool
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a topic exchange using the routing key
// "tracker.<event>".
type AMQPPublisher struct {
	*forwarder
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// NewAMQPPublisher dials RabbitMQ and declares the exchange.
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "danni.swarm"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ exchange 失败: %w", err)
	}
	p := newAMQPPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string) *AMQPPublisher {
	p := &AMQPPublisher{ch: ch, exchange: exchange}
	p.forwarder = newForwarder("rabbitmq", 0, 0, p.publish)
	return p
}

func routingKey(e Event) string {
	return "tracker." + string(e.Kind)
}

func (p *AMQPPublisher) publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey(e), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   e.ID,
		Timestamp:   time.UnixMilli(e.Timestamp),
		Body:        body,
	})
}

// Close flushes pending events and closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.forwarder.close()
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
