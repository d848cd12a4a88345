package task

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"portforge/internal/config"
)

// Backoff computes retry delays. Delays grow geometrically from the initial
// value and are capped; jitter is derived from a seed hash so a given
// (unit, attempt) pair always waits the same amount of time.
type Backoff struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// BackoffFromConfig builds a Backoff from the retry settings.
func BackoffFromConfig(cfg config.Retry) Backoff {
	return Backoff{
		Initial: time.Duration(cfg.BackoffInitialMS) * time.Millisecond,
		Factor:  cfg.BackoffFactor,
		Max:     time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(seed string, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Initial <= 0 {
		return 0
	}
	factor := b.Factor
	if factor <= 0 {
		factor = 1
	}

	base := float64(b.Initial) * math.Pow(factor, float64(attempt-1))
	if b.Max > 0 {
		base = math.Min(base, float64(b.Max))
	}

	// Jitter after capping, in [0.5, 1.5) of the base delay.
	base *= 0.5 + jitterUnit(fmt.Sprintf("%s:%d", seed, attempt))
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func jitterUnit(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(sum[:8])
	return float64(u) / float64(^uint64(0))
}
