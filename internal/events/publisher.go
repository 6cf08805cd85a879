// Package events 向 RabbitMQ 发布领域事件；未配置或连接失败时退化为 noop。
package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// 路由键
const (
	UserSignup      = "user.signup"
	RelayConnect    = "relay.connect"
	RelayDisconnect = "relay.disconnect"
)

// Envelope 是所有事件的统一外层结构。
type Envelope struct {
	Type         string    `json:"type"`
	Username     string    `json:"username"`
	RoomID       string    `json:"room_id,omitempty"`
	ConnectionID string    `json:"connection_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func NewEnvelope(eventType, username string) Envelope {
	return Envelope{Type: eventType, Username: username, OccurredAt: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher 连接 amqpURL 并声明 topic exchange，任一步失败都返回 noop 实现。
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		log.Info().Msg("amqp disabled, using noop publisher")
		return Noop()
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn().Err(err).Msg("amqp dial failed, using noop publisher")
		return Noop()
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("amqp channel failed, using noop publisher")
		_ = conn.Close()
		return Noop()
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Str("exchange", exchange).Msg("amqp exchange declare failed, using noop publisher")
		_ = ch.Close()
		_ = conn.Close()
		return Noop()
	}

	log.Info().Str("exchange", exchange).Msg("amqp publisher connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		log.Warn().Err(err).Str("routing_key", routingKey).Msg("amqp publish failed")
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct{}

// Noop 返回丢弃所有事件的 Publisher。
func Noop() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	log.Debug().Str("routing_key", routingKey).Msg("noop publish")
	return nil
}

func (noopPublisher) Close() error { return nil }

// Mode 用于启动日志。
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}
