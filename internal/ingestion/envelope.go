package ingestion

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
)

// Envelope is the push-delivery wrapper around one message.
type Envelope struct {
	Message      EnvelopeMessage `json:"message"`
	Subscription string          `json:"subscription,omitempty"`
}

type EnvelopeMessage struct {
	MessageID   string            `json:"messageId"`
	AltID       string            `json:"message_id,omitempty"`
	Data        string            `json:"data"`
	PublishTime string            `json:"publishTime,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// ID returns the message identifier in either spelling.
func (m EnvelopeMessage) ID() string {
	if id := strings.TrimSpace(m.MessageID); id != "" {
		return id
	}
	return strings.TrimSpace(m.AltID)
}

// NewEnvelope wraps payload the way the transport delivers it.
func NewEnvelope(messageID string, payload []byte) ([]byte, error) {
	return json.Marshal(Envelope{Message: EnvelopeMessage{
		MessageID: messageID,
		Data:      base64.StdEncoding.EncodeToString(payload),
	}})
}

func parseEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: invalid envelope: %v", domain.ErrMalformedValue, err)
	}
	return envelope, nil
}

// decodePayload base64-decodes the message data into a JSON object.
func decodePayload(envelope Envelope) (map[string]any, error) {
	data := strings.TrimSpace(envelope.Message.Data)
	if data == "" {
		return nil, fmt.Errorf("%w: envelope has no data", domain.ErrMalformedValue)
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: data is not base64: %v", domain.ErrMalformedValue, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("%w: data is not a JSON object: %v", domain.ErrMalformedValue, err)
	}
	return payload, nil
}
