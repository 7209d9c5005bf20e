package ingestion

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/metrics"
)

// Schemas resolves the entity type of a decoded message.
type Schemas interface {
	Get(entityType string) (domain.EntitySchema, error)
	ByTable(table string) (string, error)
	DetectByKey(message map[string]any) (string, bool)
}

// Processor maps a message onto a value set.
type Processor interface {
	Process(ctx context.Context, es domain.EntitySchema, message map[string]any) (domain.ValueSet, error)
}

// Upserter stores a value set.
type Upserter interface {
	Upsert(ctx context.Context, es domain.EntitySchema, vs domain.ValueSet) (domain.UpsertResult, error)
}

// RetryTracker counts failed deliveries.
type RetryTracker interface {
	RecordFailure(ctx context.Context, messageID string, cause error, entityType string) (domain.RetryDecision, error)
	RecordSuccess(ctx context.Context, messageID string) error
	MarkQuarantined(ctx context.Context, messageID string) error
}

// Quarantiner stores messages that will not be retried.
type Quarantiner interface {
	Quarantine(ctx context.Context, messageID string, raw []byte, entityType string, cause error, retryCount int) (domain.DeadLetterEntry, error)
}

// Result is the outcome of one delivery. Status follows the transport contract:
// 200 acknowledges, 500 asks for redelivery.
type Result struct {
	Status      int            `json:"status"`
	Message     string         `json:"message"`
	MessageID   string         `json:"message_id,omitempty"`
	EntityType  string         `json:"entity_type,omitempty"`
	Outcome     domain.Outcome `json:"outcome,omitempty"`
	RecordID    int64          `json:"record_id,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
	Quarantined bool           `json:"quarantined,omitempty"`
}

// Service runs inbound deliveries through mapping, upsert and retry tracking.
type Service struct {
	schemas   Schemas
	processor Processor
	upserter  Upserter
	retries   RetryTracker
	dlq       Quarantiner
	metrics   *metrics.Recorder
}

func NewService(schemas Schemas, processor Processor, upserter Upserter, retries RetryTracker, dlq Quarantiner, recorder *metrics.Recorder) *Service {
	return &Service{
		schemas:   schemas,
		processor: processor,
		upserter:  upserter,
		retries:   retries,
		dlq:       dlq,
		metrics:   recorder,
	}
}

// Handle processes one raw envelope and always answers with an acknowledgement
// decision. Panics in mapping or upsert go through the retry path; the outer
// recover only covers the tracking calls themselves.
func (s *Service) Handle(ctx context.Context, raw []byte) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[INGEST] ERROR: panic while handling message: %v", rec)
			result = Result{Status: http.StatusInternalServerError, Message: fmt.Sprintf("panic: %v", rec)}
		}
		s.metrics.MessageHandled(result.EntityType, result.Status)
	}()

	envelope, err := parseEnvelope(raw)
	if err != nil {
		log.Printf("[INGEST] ERROR: %v, acknowledging untrackable message", err)
		return Result{Status: http.StatusOK, Message: err.Error()}
	}
	messageID := envelope.Message.ID()

	entityType, upserted, err := s.process(ctx, envelope)
	if err == nil {
		if messageID != "" {
			if err := s.retries.RecordSuccess(ctx, messageID); err != nil {
				log.Printf("[RETRY] WARN: %v", err)
			}
		}
		return Result{
			Status:     http.StatusOK,
			Message:    upserted.Message,
			MessageID:  messageID,
			EntityType: entityType,
			Outcome:    upserted.Outcome,
			RecordID:   upserted.Record.ID,
		}
	}

	return s.fail(ctx, messageID, entityType, raw, err)
}

func (s *Service) fail(ctx context.Context, messageID, entityType string, raw []byte, cause error) Result {
	result := Result{MessageID: messageID, EntityType: entityType, Message: cause.Error()}
	if messageID == "" {
		log.Printf("[INGEST] ERROR: %v (no messageId, acknowledging to stop redelivery)", cause)
		result.Status = http.StatusOK
		return result
	}

	decision, err := s.retries.RecordFailure(ctx, messageID, cause, entityType)
	if err != nil {
		log.Printf("[RETRY] ERROR: %v", err)
		result.Status = http.StatusInternalServerError
		return result
	}
	result.Attempt = decision.AttemptCount

	if !decision.ShouldQuarantine && !domain.IsTerminal(cause) {
		log.Printf("[INGEST] WARN: message %s failed (attempt %d): %v", messageID, decision.AttemptCount, cause)
		result.Status = http.StatusInternalServerError
		return result
	}

	if _, err := s.dlq.Quarantine(ctx, messageID, raw, entityType, cause, decision.AttemptCount); err != nil {
		log.Printf("[DLQ] ERROR: failed to quarantine %s: %v", messageID, err)
		result.Status = http.StatusInternalServerError
		return result
	}
	if err := s.retries.MarkQuarantined(ctx, messageID); err != nil {
		log.Printf("[RETRY] WARN: %v", err)
	}
	result.Status = http.StatusOK
	result.Quarantined = true
	return result
}

// Deliver adapts Handle to a transport subscription.
func (s *Service) Deliver(ctx context.Context, body []byte) int {
	return s.Handle(ctx, body).Status
}

// Replay processes a stored envelope again without touching retry tracking.
func (s *Service) Replay(ctx context.Context, raw []byte) error {
	envelope, err := parseEnvelope(raw)
	if err != nil {
		return err
	}
	_, _, err = s.process(ctx, envelope)
	return err
}

func (s *Service) process(ctx context.Context, envelope Envelope) (string, domain.UpsertResult, error) {
	payload, err := decodePayload(envelope)
	if err != nil {
		return "", domain.UpsertResult{}, err
	}

	entityType, err := s.resolveEntityType(payload)
	if err != nil {
		return "", domain.UpsertResult{}, err
	}
	es, err := s.schemas.Get(entityType)
	if err != nil {
		return entityType, domain.UpsertResult{}, err
	}

	var vs domain.ValueSet
	if err := guard("process", func() (err error) {
		vs, err = s.processor.Process(ctx, es, payload)
		return err
	}); err != nil {
		return entityType, domain.UpsertResult{}, err
	}
	var result domain.UpsertResult
	if err := guard("upsert", func() (err error) {
		result, err = s.upserter.Upsert(ctx, es, vs)
		return err
	}); err != nil {
		return entityType, domain.UpsertResult{}, err
	}
	s.metrics.UpsertOutcome(entityType, string(result.Outcome))
	log.Printf("[INGEST] %s %s (record %d): %s", entityType, result.Outcome, result.Record.ID, result.Message)
	return entityType, result, nil
}

// guard turns a panic in fn into a transformation failure so the message is
// counted and eventually quarantined like any other failure.
func guard(stage string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[INGEST] ERROR: panic during %s: %v\n%s", stage, rec, debug.Stack())
			err = fmt.Errorf("%w: panic during %s: %v", domain.ErrTransformationFailure, stage, rec)
		}
	}()
	return fn()
}

// resolveEntityType checks Tabla through the table map, then an explicit
// EntityType, then the detection keys.
func (s *Service) resolveEntityType(payload map[string]any) (string, error) {
	if table := strings.TrimSpace(domain.AsString(payload["Tabla"])); table != "" {
		return s.schemas.ByTable(table)
	}
	for _, key := range []string{"EntityType", "entity_type"} {
		if explicit := strings.TrimSpace(domain.AsString(payload[key])); explicit != "" {
			return explicit, nil
		}
	}
	if detected, ok := s.schemas.DetectByKey(payload); ok {
		return detected, nil
	}
	return "", fmt.Errorf("%w: no se pudo determinar el tipo de entidad", domain.ErrUnknownEntity)
}
