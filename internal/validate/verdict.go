package validate

import "strings"

// Verdict is the outcome of validating one artifact set.
type Verdict string

const (
	// VerdictPass means the artifact compiled and behaved identically to the
	// original implementation.
	VerdictPass Verdict = "pass"
	// VerdictCompileFailure means the artifact did not compile.
	VerdictCompileFailure Verdict = "compile_failure"
	// VerdictBehavioralMismatch means the differential test found diverging
	// behavior between the original and the artifact.
	VerdictBehavioralMismatch Verdict = "behavioral_mismatch"
	// VerdictRunnerError means validation infrastructure failed before a
	// judgment about the artifact could be made.
	VerdictRunnerError Verdict = "runner_error"
)

var verdictSet = map[Verdict]struct{}{
	VerdictPass:               {},
	VerdictCompileFailure:     {},
	VerdictBehavioralMismatch: {},
	VerdictRunnerError:        {},
}

// ParseVerdict converts a string into a known Verdict.
func ParseVerdict(value string) (Verdict, bool) {
	normalized := Verdict(strings.ToLower(strings.TrimSpace(value)))
	_, ok := verdictSet[normalized]
	return normalized, ok
}

// IsDefect reports whether the verdict describes a flaw in the artifact.
func (v Verdict) IsDefect() bool {
	return v == VerdictCompileFailure || v == VerdictBehavioralMismatch
}

// Result pairs a verdict with the diagnostic detail that feeds the next
// generation attempt.
type Result struct {
	Verdict Verdict
	Detail  string
}
