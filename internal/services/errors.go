package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputNotFound        = errors.New("input not found")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrSegmentCountMismatch = errors.New("segment count mismatch")
	ErrMissingTranslation   = errors.New("missing translation for segment")
	ErrReconciliation       = errors.New("reconciliation failure")
	ErrEncodeMux            = errors.New("encode/mux failure")
	ErrDecode               = errors.New("decode error")
	ErrValidation           = errors.New("validation error")
	ErrOutputLocked         = errors.New("output locked")
	ErrExternalTool         = errors.New("external tool error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must abort a pipeline run. Segment-level markers
// (missing translation, reconciliation) are recovered locally and never fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingTranslation) || errors.Is(err, ErrReconciliation) {
		return false
	}
	return true
}

// Kind returns a short label for the first marker found in err's chain, used
// by the CLI and structured logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputNotFound):
		return "input_not_found"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrSegmentCountMismatch):
		return "segment_count_mismatch"
	case errors.Is(err, ErrMissingTranslation):
		return "missing_translation"
	case errors.Is(err, ErrReconciliation):
		return "reconciliation_failure"
	case errors.Is(err, ErrEncodeMux):
		return "encode_mux_failure"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrOutputLocked):
		return "output_locked"
	case errors.Is(err, ErrExternalTool):
		return "external_tool_error"
	default:
		return "unknown"
	}
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
