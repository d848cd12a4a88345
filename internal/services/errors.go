package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedGraph marks an unresolved or inconsistent dependency graph.
	// Fatal: the run aborts before any unit is dispatched.
	ErrMalformedGraph = errors.New("malformed graph")
	// ErrGenerationIncomplete marks a collaborator response missing one or
	// more required artifacts. Recoverable, counted against the defect budget.
	ErrGenerationIncomplete = errors.New("generation incomplete")
	// ErrCompile marks a compilation defect in a generated artifact set.
	ErrCompile = errors.New("compile failure")
	// ErrBehavior marks a differential test mismatch between the original and
	// generated implementations.
	ErrBehavior = errors.New("behavioral mismatch")
	// ErrRunner marks a validation-infrastructure problem (timeout, missing
	// toolchain). Retried without feedback under a separate budget.
	ErrRunner = errors.New("runner error")
	// ErrChainBlocked marks a unit whose dependency terminally failed.
	ErrChainBlocked = errors.New("chain blocked")
	// ErrConfiguration marks unusable configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrRunner
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsDefect reports whether an error should feed diagnostic feedback into the
// next generation attempt.
func IsDefect(err error) bool {
	return errors.Is(err, ErrCompile) ||
		errors.Is(err, ErrBehavior) ||
		errors.Is(err, ErrGenerationIncomplete)
}

// IsInfrastructure reports whether an error reflects validation or
// collaborator infrastructure rather than a defect in the artifact.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrRunner)
}

// Details captures the structured parts of a wrapped error for logging.
type ErrorDetails struct {
	Marker  string
	Message string
	Cause   error
}

// Details extracts structured error information from a wrapped error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	d := ErrorDetails{Message: strings.TrimSpace(err.Error()), Cause: err}
	for _, marker := range []error{
		ErrMalformedGraph,
		ErrGenerationIncomplete,
		ErrCompile,
		ErrBehavior,
		ErrRunner,
		ErrChainBlocked,
		ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			d.Marker = marker.Error()
			break
		}
	}
	return d
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
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
