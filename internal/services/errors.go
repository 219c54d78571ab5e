package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap tags a failure with one of the markers above so ErrorDetails and the
// job record can classify it. A nil marker means ErrTransient; err, when
// given, stays reachable through errors.Is and errors.As.
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

// Details summarizes a wrapped error for job records and warnings.
type Details struct {
	Kind string
	Hint string
}

// ErrorDetails classifies err by its marker and suggests a next step.
func ErrorDetails(err error) Details {
	switch {
	case err == nil:
		return Details{}
	case errors.Is(err, ErrValidation):
		return Details{Kind: "validation", Hint: "check the submitted source descriptor"}
	case errors.Is(err, ErrConfiguration):
		return Details{Kind: "configuration", Hint: "run 'handout config validate' and check credentials"}
	case errors.Is(err, ErrNotFound):
		return Details{Kind: "not_found", Hint: "verify the source exists and is reachable"}
	case errors.Is(err, ErrExternalTool):
		return Details{Kind: "external_tool", Hint: "check ffmpeg/ghostscript installation with 'handout status'"}
	case errors.Is(err, ErrTimeout):
		return Details{Kind: "timeout", Hint: "retry the job; the remote service may be slow"}
	case errors.Is(err, ErrTransient):
		return Details{Kind: "transient", Hint: "retry the job"}
	default:
		return Details{Kind: "unknown", Hint: "check logs for details"}
	}
}

// buildDetail joins the non-blank parts as "stage: operation: message".
func buildDetail(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "service failure"
	}
	return strings.Join(kept, ": ")
}
