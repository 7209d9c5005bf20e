package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/metrics"
	"github.com/rpattn/entitysync/internal/transport"
)

// DefaultTopic is used by schemas that name no topic.
const DefaultTopic = "sincronizacion-tablas"

// Publisher builds and sends outbound messages.
type Publisher struct {
	builder *Builder
	events  transport.EventPublisher
	metrics *metrics.Recorder
}

func NewPublisher(builder *Builder, events transport.EventPublisher, recorder *metrics.Recorder) *Publisher {
	return &Publisher{builder: builder, events: events, metrics: recorder}
}

// PublishRecord sends record to the schema's topic.
func (p *Publisher) PublishRecord(ctx context.Context, es domain.EntitySchema, record domain.Record) error {
	err := p.publish(ctx, es, record)
	p.metrics.Published(es.Name, err)
	return err
}

func (p *Publisher) publish(ctx context.Context, es domain.EntitySchema, record domain.Record) error {
	message, err := p.builder.BuildMessage(ctx, es, record)
	if err != nil {
		return fmt.Errorf("failed to build %s message for %d: %w", es.Name, record.ID, err)
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s message for %d: %w", es.Name, record.ID, err)
	}

	topic := es.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	if err := p.events.Publish(ctx, topic, payload); err != nil {
		return err
	}
	log.Printf("[PUBLISH] %s %d sent to %s (%d bytes)", es.Name, record.ID, topic, len(payload))
	return nil
}
