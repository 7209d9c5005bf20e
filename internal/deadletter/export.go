package deadletter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rpattn/entitysync/internal/domain"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "DeadLetters"

var exportHeader = []any{
	"ID", "Message ID", "Entity", "State", "Retries", "Error",
	"First attempt", "Last attempt", "Resolved by", "Resolved at", "Note", "Payload",
}

// Export writes the entries matching filter as an xlsx workbook.
func (s *Service) Export(ctx context.Context, filter domain.DeadLetterFilter, w io.Writer) (int, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return 0, fmt.Errorf("failed to prepare workbook: %w", err)
	}

	stream, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return 0, fmt.Errorf("failed to open sheet writer: %w", err)
	}
	if err := stream.SetRow("A1", exportHeader); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}
	for i, entry := range entries {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := stream.SetRow(cell, exportRow(entry)); err != nil {
			return 0, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := stream.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return len(entries), nil
}

func exportRow(entry domain.DeadLetterEntry) []any {
	resolvedAt := ""
	if entry.ResolvedAt != nil {
		resolvedAt = entry.ResolvedAt.Format(time.RFC3339)
	}
	return []any{
		entry.ID.String(),
		entry.MessageID,
		entry.EntityType,
		string(entry.State),
		entry.RetryCount,
		entry.ErrorMessage,
		entry.FirstAttemptAt.Format(time.RFC3339),
		entry.LastAttemptAt.Format(time.RFC3339),
		entry.ResolvedBy,
		resolvedAt,
		entry.ResolutionNote,
		string(entry.RawPayload),
	}
}
