package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExtraction marks an absent upstream contour, keypoint, or mask.
	ErrExtraction = errors.New("extraction failure")
	// ErrInsufficientData marks a contour or edge too short to process.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrConfigurationMismatch marks query/reference disagreement that aborts a run.
	ErrConfigurationMismatch = errors.New("configuration mismatch")
	// ErrIndexBuild marks a nearest-neighbour index that could not be built.
	ErrIndexBuild = errors.New("index build failure")
	// ErrNoReferenceData marks a database with nothing to match against.
	ErrNoReferenceData = errors.New("no reference data")
	// ErrWorker marks a failure raised while computing a single item.
	ErrWorker         = errors.New("worker failure")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTransient      = errors.New("transient failure")
	ErrWorkspaceInUse = errors.New("workspace in use")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must abort the whole run instead of being
// recorded against a single item.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConfigurationMismatch), errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrValidation), errors.Is(err, ErrWorkspaceInUse),
		errors.Is(err, ErrNoReferenceData):
		return true
	default:
		return false
	}
}

// Reason returns a compact single-line failure reason suitable for
// persisting next to a failed item.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
