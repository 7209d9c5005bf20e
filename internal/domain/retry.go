package domain

import "time"

// RetryState is the lifecycle state of a retry tracker entry.
type RetryState string

const (
	RetryStateRetrying   RetryState = "retrying"
	RetryStateMovedToDLQ RetryState = "moved_to_dlq"
	RetryStateSuccess    RetryState = "success"
)

// RetryRecord counts delivery failures of one inbound message.
type RetryRecord struct {
	MessageID      string     `json:"message_id"`
	RetryCount     int        `json:"retry_count"`
	LastError      string     `json:"last_error"`
	EntityType     string     `json:"entity_type"`
	State          RetryState `json:"state"`
	FirstAttemptAt time.Time  `json:"first_attempt_at"`
	LastAttemptAt  time.Time  `json:"last_attempt_at"`
}

// RetryDecision is returned for every recorded failure.
type RetryDecision struct {
	AttemptCount     int  `json:"attempt_count"`
	ShouldQuarantine bool `json:"should_quarantine"`
}

// RetryStats summarises the tracker.
type RetryStats struct {
	TotalRetrying           int `json:"total_retrying"`
	TotalMovedToDLQ         int `json:"total_moved_to_dlq"`
	TotalSuccessWithRetries int `json:"total_success_with_retries"`
}
