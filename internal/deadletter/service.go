package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/metrics"
	"github.com/rpattn/entitysync/internal/repository"

	"github.com/google/uuid"
)

// ReprocessSuccessNote is stored on entries resolved by a successful replay.
const ReprocessSuccessNote = "Reprocesado manualmente con éxito"

// Replayer processes a raw inbound envelope again, outside retry tracking.
type Replayer interface {
	Replay(ctx context.Context, raw []byte) error
}

// Service manages quarantined messages.
type Service struct {
	repo     repository.DeadLetterRepository
	replayer Replayer
	metrics  *metrics.Recorder
	now      func() time.Time
}

func NewService(repo repository.DeadLetterRepository, recorder *metrics.Recorder) *Service {
	return &Service{repo: repo, metrics: recorder, now: time.Now}
}

// SetReplayer connects the ingestion pipeline used by Reprocess.
func (s *Service) SetReplayer(replayer Replayer) {
	s.replayer = replayer
}

// Quarantine stores a message that exhausted its retries or failed terminally.
// Quarantining the same message id again refreshes the existing entry.
func (s *Service) Quarantine(ctx context.Context, messageID string, raw []byte, entityType string, cause error, retryCount int) (domain.DeadLetterEntry, error) {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	entry := domain.NewDeadLetterEntry(messageID, raw, entityType, message, errorTrace(cause), retryCount)
	stored, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		return domain.DeadLetterEntry{}, err
	}
	s.metrics.Quarantined(entityType)
	log.Printf("[DLQ] ERROR: message %s (%s) quarantined after %d attempts: %s", messageID, entityType, retryCount, message)
	return stored, nil
}

// errorTrace lists the wrapped error chain, outermost first.
func errorTrace(err error) string {
	var lines []string
	for current := err; current != nil; current = errors.Unwrap(current) {
		lines = append(lines, fmt.Sprintf("%T: %s", current, current.Error()))
	}
	return strings.Join(lines, "\n")
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.DeadLetterEntry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	return s.repo.List(ctx, filter)
}

// Reprocess replays one entry. Only failed and permanently failed entries can be
// replayed. On failure the entry returns to failed with the new error appended.
func (s *Service) Reprocess(ctx context.Context, id uuid.UUID, by string) (domain.DeadLetterEntry, error) {
	if s.replayer == nil {
		return domain.DeadLetterEntry{}, fmt.Errorf("dead-letter replay is not configured")
	}
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.DeadLetterEntry{}, err
	}
	if !entry.State.CanReprocess() {
		return entry, fmt.Errorf("%w: cannot reprocess a message in state %s", domain.ErrInvalidState, entry.State)
	}

	entry.State = domain.DeadLetterReprocessing
	if entry, err = s.repo.Update(ctx, entry); err != nil {
		return domain.DeadLetterEntry{}, err
	}
	log.Printf("[DLQ] reprocessing message %s", entry.MessageID)

	replayErr := s.replayer.Replay(ctx, entry.RawPayload)
	now := s.now().UTC()
	if replayErr == nil {
		resolved, err := s.repo.Update(ctx, entry.WithResolution(domain.DeadLetterResolved, by, ReprocessSuccessNote, now))
		if err != nil {
			return domain.DeadLetterEntry{}, err
		}
		log.Printf("[DLQ] message %s reprocessed successfully", entry.MessageID)
		return resolved, nil
	}

	entry.State = domain.DeadLetterFailed
	entry.ErrorMessage = fmt.Sprintf("%s\n\n[Reintento manual falló: %s]", entry.ErrorMessage, replayErr.Error())
	entry.LastAttemptAt = now
	failed, err := s.repo.Update(ctx, entry)
	if err != nil {
		return domain.DeadLetterEntry{}, err
	}
	log.Printf("[DLQ] ERROR: manual replay of %s failed: %v", entry.MessageID, replayErr)
	return failed, fmt.Errorf("reprocess of %s failed: %w", entry.MessageID, replayErr)
}

// MarkResolved closes an entry that was fixed by hand.
func (s *Service) MarkResolved(ctx context.Context, id uuid.UUID, by, note string) (domain.DeadLetterEntry, error) {
	return s.close(ctx, id, domain.DeadLetterResolved, by, note)
}

// MarkPermanentlyFailed closes an entry that cannot be fixed.
func (s *Service) MarkPermanentlyFailed(ctx context.Context, id uuid.UUID, by, note string) (domain.DeadLetterEntry, error) {
	return s.close(ctx, id, domain.DeadLetterPermanentlyFailed, by, note)
}

func (s *Service) close(ctx context.Context, id uuid.UUID, state domain.DeadLetterState, by, note string) (domain.DeadLetterEntry, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return domain.DeadLetterEntry{}, domain.ErrResolutionNoteRequired
	}
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.DeadLetterEntry{}, err
	}
	if entry.State == domain.DeadLetterReprocessing {
		return entry, fmt.Errorf("%w: message %s is being reprocessed", domain.ErrInvalidState, entry.MessageID)
	}
	updated, err := s.repo.Update(ctx, entry.WithResolution(state, by, note, s.now().UTC()))
	if err != nil {
		return domain.DeadLetterEntry{}, err
	}
	log.Printf("[DLQ] message %s marked %s by %s", entry.MessageID, state, by)
	return updated, nil
}
