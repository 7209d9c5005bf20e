package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the JetStream connection.
type NATSConfig struct {
	URL      string
	Stream   string
	Subjects []string
}

// Connect opens a NATS connection and makes sure the stream exists.
func Connect(cfg NATSConfig) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Printf("[NATS] connected to %s", cfg.URL)

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		log.Printf("[NATS] stream %s not found, creating it for %v", cfg.Stream, cfg.Subjects)
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: cfg.Subjects,
			Storage:  nats.FileStorage,
		}); err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to create NATS stream %s: %w", cfg.Stream, err)
		}
	}
	return nc, js, nil
}

// NATSPublisher publishes to JetStream subjects named after the topic.
type NATSPublisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

func NewNATSPublisher(nc *nats.Conn, js nats.JetStreamContext) *NATSPublisher {
	return &NATSPublisher{nc: nc, js: js}
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	ack, err := p.js.Publish(topic, payload, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	log.Printf("[NATS] published to %s (stream=%s seq=%d)", topic, ack.Stream, ack.Sequence)
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
