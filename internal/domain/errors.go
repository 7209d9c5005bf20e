package domain

import "errors"

// Sync error classes. Wrap them with fmt.Errorf("...: %w", ErrX) to add detail.
var (
	ErrMissingRequiredField  = errors.New("missing required field")
	ErrMalformedValue        = errors.New("malformed value")
	ErrDependencyNotReady    = errors.New("dependency not ready")
	ErrUnknownEntity         = errors.New("unknown entity type")
	ErrUnknownExtension      = errors.New("unknown extension")
	ErrTransformationFailure = errors.New("transformation failed")
	ErrCyclicComponent       = errors.New("cyclic component reference")
	ErrMissingComponent      = errors.New("missing component")

	ErrRecordNotFound         = errors.New("record not found")
	ErrResolutionNoteRequired = errors.New("resolution note required")
	ErrInvalidState           = errors.New("invalid state transition")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrMissingRequiredField, "missing_required_field"},
	{ErrMalformedValue, "malformed_value"},
	{ErrDependencyNotReady, "dependency_not_ready"},
	{ErrUnknownEntity, "unknown_entity"},
	{ErrUnknownExtension, "unknown_extension"},
	{ErrTransformationFailure, "transformation_failure"},
	{ErrCyclicComponent, "cyclic_component"},
	{ErrMissingComponent, "missing_component"},
	{ErrRecordNotFound, "record_not_found"},
}

// ErrorKind classifies an error for metrics labels and log lines.
func ErrorKind(err error) string {
	if err == nil {
		return "none"
	}
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return "internal"
}

// IsTerminal reports errors that no amount of redelivery can fix. They are
// quarantined on first sight instead of consuming the retry budget.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrCyclicComponent)
}
