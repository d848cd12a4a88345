package checkpoint

import (
	"strings"
	"time"
)

// Status represents the persisted lifecycle of a processing unit.
type Status string

const (
	StatusUnstarted  Status = "unstarted"
	StatusGenerating Status = "generating"
	StatusValidating Status = "validating"
	StatusVerified   Status = "verified"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusUnstarted,
	StatusGenerating,
	StatusValidating,
	StatusVerified,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var inFlightStatuses = map[Status]struct{}{
	StatusGenerating: {},
	StatusValidating: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsInFlight reports whether a status reflects work that was in progress when
// it was written. In-flight statuses found on startup mean the previous run
// stopped without reaching a checkpoint boundary.
func IsInFlight(status Status) bool {
	_, ok := inFlightStatuses[status]
	return ok
}

// IsTerminal reports whether the status can no longer change within a run.
func IsTerminal(status Status) bool {
	return status == StatusVerified || status == StatusFailed
}

// Record is a unit checkpoint persisted in SQLite.
type Record struct {
	UnitID       string
	Status       Status
	Attempt      int
	InfraAttempt int
	Verdict      string
	Feedback     string
	Fingerprint  string
	ErrorMessage string
	RunID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary aggregates checkpoint counts per lifecycle state.
type Summary struct {
	Total      int
	Unstarted  int
	Generating int
	Validating int
	Verified   int
	Failed     int
}

// Remaining reports how many units still need work.
func (s Summary) Remaining() int {
	return s.Total - s.Verified - s.Failed
}
