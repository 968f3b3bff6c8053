// Package mq relays domain events to an external message broker.
package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/solodesign/apiserver/config"
)

// Message is a broker-agnostic delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes one delivery. A returned error requeues it.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by each broker client.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ binds a backend to the configured channel.
type MQ struct {
	backend Backend
	name    string
	channel string
}

func New(name string, backend Backend, channel string) *MQ {
	return &MQ{backend: backend, name: name, channel: channel}
}

// Open connects to the backend selected by EVENTS_BACKEND. It returns nil
// without error when forwarding is disabled.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	switch strings.ToLower(cfg.Events.Backend) {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return New("rabbitmq", client, cfg.Events.Channel), nil
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return New("pubsub", client, cfg.Events.Channel), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

func (m *MQ) Name() string {
	return m.name
}

func (m *MQ) Channel() string {
	return m.channel
}

// Publish sends data to the bound channel.
func (m *MQ) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, m.channel, data, attrs)
}

// Subscribe blocks consuming the bound channel until ctx ends.
func (m *MQ) Subscribe(ctx context.Context, handler Handler) error {
	return m.backend.Subscribe(ctx, m.channel, handler)
}

func (m *MQ) Close() error {
	return m.backend.Close()
}
