package transport

import (
	"context"
	"log"
	"sync"
)

// EventPublisher delivers outbound messages to a named topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Message is one published payload.
type Message struct {
	Topic   string
	Payload []byte
}

// MemoryPublisher keeps published messages in memory. It is used in tests and
// when no broker is configured.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWith makes every later Publish return err. Nil clears it.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MemoryPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// Messages returns a copy of everything published so far.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

func (p *MemoryPublisher) Close() error { return nil }

// LogPublisher only logs what would be published.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	log.Printf("[PUBLISH] %s <- %s", topic, payload)
	return nil
}

func (LogPublisher) Close() error { return nil }
