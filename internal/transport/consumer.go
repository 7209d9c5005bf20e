package transport

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
)

// DeliveryHandler processes one pushed delivery and answers with an HTTP-style
// status. Anything below 500 is acknowledged, the rest is redelivered.
type DeliveryHandler func(ctx context.Context, body []byte) int

// Settle maps a handler status to an acknowledgement decision.
func Settle(status int) (ack bool) {
	return status < http.StatusInternalServerError
}

// Subscribe attaches handler to subject through a durable JetStream consumer.
func Subscribe(js nats.JetStreamContext, subject, durable string, handler DeliveryHandler) (*nats.Subscription, error) {
	sub, err := js.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 55*time.Second)
		defer cancel()

		status := handler(ctx, msg.Data)
		if Settle(status) {
			if err := msg.Ack(); err != nil {
				log.Printf("[NATS] ERROR: ack failed on %s: %v", msg.Subject, err)
			}
			return
		}
		if err := msg.Nak(); err != nil {
			log.Printf("[NATS] ERROR: nak failed on %s: %v", msg.Subject, err)
		}
	}, nats.Durable(durable), nats.AckWait(60*time.Second), nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s with durable consumer %s: %w", subject, durable, err)
	}
	log.Printf("[NATS] subscribed to %s (durable=%s)", subject, durable)
	return sub, nil
}
