package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetterState is the lifecycle state of a quarantined message.
type DeadLetterState string

const (
	DeadLetterFailed            DeadLetterState = "failed"
	DeadLetterReprocessing      DeadLetterState = "reprocessing"
	DeadLetterResolved          DeadLetterState = "resolved"
	DeadLetterPermanentlyFailed DeadLetterState = "permanently_failed"
)

// ParseDeadLetterState validates a state name.
func ParseDeadLetterState(value string) (DeadLetterState, bool) {
	switch state := DeadLetterState(value); state {
	case DeadLetterFailed, DeadLetterReprocessing, DeadLetterResolved, DeadLetterPermanentlyFailed:
		return state, true
	}
	return "", false
}

// CanReprocess reports whether a manual replay may start from this state.
func (s DeadLetterState) CanReprocess() bool {
	return s == DeadLetterFailed || s == DeadLetterPermanentlyFailed
}

// DeadLetterEntry is a quarantined inbound message. MessageID is unique.
type DeadLetterEntry struct {
	ID                uuid.UUID       `json:"id"`
	MessageID         string          `json:"message_id"`
	RawPayload        []byte          `json:"raw_payload"`
	EntityType        string          `json:"entity_type"`
	ErrorMessage      string          `json:"error_message"`
	ErrorTrace        string          `json:"error_trace"`
	RetryCount        int             `json:"retry_count"`
	State             DeadLetterState `json:"state"`
	FirstAttemptAt    time.Time       `json:"first_attempt_at"`
	LastAttemptAt     time.Time       `json:"last_attempt_at"`
	ResolvedBy        string          `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
	ResolutionNote    string          `json:"resolution_note,omitempty"`
	RelatedCollection string          `json:"related_collection,omitempty"`
	RelatedRecordID   *int64          `json:"related_record_id,omitempty"`
}

// NewDeadLetterEntry creates a failed entry for a message.
func NewDeadLetterEntry(messageID string, raw []byte, entityType, errMessage, trace string, retryCount int) DeadLetterEntry {
	now := time.Now().UTC()
	return DeadLetterEntry{
		ID:             uuid.New(),
		MessageID:      messageID,
		RawPayload:     append([]byte(nil), raw...),
		EntityType:     entityType,
		ErrorMessage:   errMessage,
		ErrorTrace:     trace,
		RetryCount:     retryCount,
		State:          DeadLetterFailed,
		FirstAttemptAt: now,
		LastAttemptAt:  now,
	}
}

// WithResolution returns a copy closed in the given state.
func (e DeadLetterEntry) WithResolution(state DeadLetterState, by, note string, at time.Time) DeadLetterEntry {
	e.State = state
	e.ResolvedBy = by
	e.ResolutionNote = note
	resolved := at
	e.ResolvedAt = &resolved
	return e
}

// DeadLetterFilter narrows dead-letter listings.
type DeadLetterFilter struct {
	State      DeadLetterState
	EntityType string
	Limit      int
}
