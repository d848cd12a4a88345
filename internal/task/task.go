package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"portforge/internal/artifact"
	"portforge/internal/checkpoint"
	"portforge/internal/config"
	"portforge/internal/generate"
	"portforge/internal/logging"
	"portforge/internal/services"
	"portforge/internal/symbolgraph"
	"portforge/internal/validate"
)

// Validator judges the artifact set currently applied to the workspace.
type Validator interface {
	Validate(ctx context.Context, unit *symbolgraph.Unit) (validate.Result, error)
}

// Task ports one processing unit.
type Task struct {
	unit         *symbolgraph.Unit
	store        *checkpoint.Store
	collaborator generate.Collaborator
	validator    Validator
	retry        config.Retry
	backoff      Backoff
	runID        string
	verifiedDeps []string
	logger       *slog.Logger
	sleep        func(context.Context, time.Duration) error
}

// Options configures a Task.
type Options struct {
	Unit         *symbolgraph.Unit
	Store        *checkpoint.Store
	Collaborator generate.Collaborator
	Validator    Validator
	Retry        config.Retry
	RunID        string
	VerifiedDeps []string
	Logger       *slog.Logger
	// Sleep overrides retry waits (useful for tests).
	Sleep func(context.Context, time.Duration) error
}

// New constructs a Task.
func New(opts Options) *Task {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Task{
		unit:         opts.Unit,
		store:        opts.Store,
		collaborator: opts.Collaborator,
		validator:    opts.Validator,
		retry:        opts.Retry,
		backoff:      BackoffFromConfig(opts.Retry),
		runID:        opts.RunID,
		verifiedDeps: opts.VerifiedDeps,
		logger:       logger,
		sleep:        sleep,
	}
}

// Outcome is the terminal state a task reached.
type Outcome struct {
	UnitID       string
	Status       checkpoint.Status
	Attempts     int
	InfraRetries int
	Verdict      validate.Verdict
	Detail       string
}

// Run executes the porting lifecycle for the unit. It returns a ctx error if
// interrupted at a checkpoint boundary; every other path yields an Outcome
// whose status has been persisted.
func (t *Task) Run(ctx context.Context) (Outcome, error) {
	ctx = services.WithUnitID(services.WithRunID(ctx, t.runID), t.unit.ID)
	logger := logging.WithContext(ctx, t.logger)

	record, err := t.loadRecord(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if record.Status == checkpoint.StatusVerified {
		logger.Debug("unit already verified")
		return outcomeFrom(record), nil
	}
	// A failed unit with defect budget left resumes from its recorded
	// attempt count rather than restarting at zero.
	if record.Status == checkpoint.StatusFailed && record.Attempt >= t.retry.MaxAttempts {
		logger.Debug("unit already failed terminally",
			logging.Int("attempts", record.Attempt))
		return outcomeFrom(record), nil
	}
	// A record rewound from an in-flight status still carries the attempt
	// number it was interrupted on; hand it back so that attempt re-runs.
	if record.Status == checkpoint.StatusUnstarted && record.Attempt > 0 {
		record.Attempt--
	}

	var prevSet artifact.Set
	for record.Attempt < t.retry.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		record.Attempt++
		attemptCtx := services.WithAttempt(services.WithRequestID(ctx, uuid.NewString()), record.Attempt)
		attemptLogger := logging.WithContext(attemptCtx, t.logger)

		record.Status = checkpoint.StatusGenerating
		record.RunID = t.runID
		if err := t.store.Upsert(attemptCtx, record); err != nil {
			return Outcome{}, err
		}
		attemptLogger.Info("generating artifact set")

		set, genErr := t.generateWithInfraRetry(attemptCtx, record)
		if genErr != nil {
			if attemptCtx.Err() != nil {
				return Outcome{}, attemptCtx.Err()
			}
			outcome, err := t.handleFailure(attemptCtx, record, genErr, "")
			if err != nil || outcome != nil {
				return deref(outcome), err
			}
			continue
		}

		if record.Attempt > 1 {
			if summary := describeRevision(prevSet, set); summary != "" {
				attemptLogger.Debug("artifact revision", logging.String("changes", summary))
			}
		}
		prevSet = set

		snapshot, err := artifact.TakeSnapshot(set.Paths())
		if err != nil {
			return Outcome{}, fmt.Errorf("snapshot workspace: %w", err)
		}
		if err := artifact.Apply(set); err != nil {
			return Outcome{}, fmt.Errorf("apply artifact set: %w", err)
		}

		record.Status = checkpoint.StatusValidating
		if err := t.store.Upsert(attemptCtx, record); err != nil {
			return Outcome{}, err
		}
		attemptLogger.Info("validating artifact set")

		result, valErr := t.validateWithInfraRetry(attemptCtx, record)
		if valErr != nil {
			_ = snapshot.Restore()
			if attemptCtx.Err() != nil {
				return Outcome{}, attemptCtx.Err()
			}
			outcome, err := t.handleFailure(attemptCtx, record, valErr, string(result.Verdict))
			if err != nil || outcome != nil {
				return deref(outcome), err
			}
			continue
		}

		record.Status = checkpoint.StatusVerified
		record.Verdict = string(validate.VerdictPass)
		record.Fingerprint = set.Fingerprint()
		record.Feedback = ""
		record.ErrorMessage = ""
		if err := t.store.Upsert(attemptCtx, record); err != nil {
			return Outcome{}, err
		}
		attemptLogger.Info("unit verified",
			logging.String(logging.FieldVerdict, string(validate.VerdictPass)),
			logging.Int("attempts", record.Attempt))
		return outcomeFrom(record), nil
	}

	// Defect budget exhausted without a passing attempt.
	record.Status = checkpoint.StatusFailed
	if record.ErrorMessage == "" {
		record.ErrorMessage = fmt.Sprintf("no passing attempt within %d attempts", t.retry.MaxAttempts)
	}
	if err := t.store.Upsert(ctx, record); err != nil {
		return Outcome{}, err
	}
	logger.Warn("unit failed terminally",
		logging.Int("attempts", record.Attempt),
		logging.String(logging.FieldErrorHint, record.ErrorMessage))
	return outcomeFrom(record), nil
}

func (t *Task) loadRecord(ctx context.Context) (*checkpoint.Record, error) {
	record, err := t.store.Get(ctx, t.unit.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &checkpoint.Record{
			UnitID: t.unit.ID,
			Status: checkpoint.StatusUnstarted,
		}
	}
	return record, nil
}

// generateWithInfraRetry calls the collaborator, retrying infrastructure
// failures under the infra budget. Defect errors pass through untouched.
func (t *Task) generateWithInfraRetry(ctx context.Context, record *checkpoint.Record) (artifact.Set, error) {
	req := generate.Request{
		Unit:         t.unit,
		Attempt:      record.Attempt,
		Feedback:     record.Feedback,
		VerifiedDeps: t.verifiedDeps,
	}
	for {
		set, err := t.collaborator.Generate(ctx, req)
		if err == nil {
			return set, nil
		}
		if !services.IsInfrastructure(err) {
			return artifact.Set{}, err
		}
		if retryErr := t.waitInfraRetry(ctx, record, err); retryErr != nil {
			return artifact.Set{}, retryErr
		}
	}
}

// validateWithInfraRetry runs validation, retrying runner errors under the
// infra budget. Defect verdicts are returned as errors with the verdict
// attached for feedback rendering.
func (t *Task) validateWithInfraRetry(ctx context.Context, record *checkpoint.Record) (validate.Result, error) {
	for {
		result, err := t.validator.Validate(ctx, t.unit)
		if err != nil {
			return result, err
		}
		switch {
		case result.Verdict == validate.VerdictPass:
			return result, nil
		case result.Verdict.IsDefect():
			return result, validate.ToError(result)
		default:
			infraErr := validate.ToError(result)
			if retryErr := t.waitInfraRetry(ctx, record, infraErr); retryErr != nil {
				return result, retryErr
			}
		}
	}
}

// waitInfraRetry consumes one infrastructure retry and sleeps the backoff
// delay. The updated infra counter is persisted so a crash mid-retry does not
// reset the budget.
func (t *Task) waitInfraRetry(ctx context.Context, record *checkpoint.Record, cause error) error {
	record.InfraAttempt++
	if record.InfraAttempt > t.retry.MaxInfraAttempts {
		return cause
	}
	if err := t.store.Upsert(ctx, record); err != nil {
		return err
	}

	delay := t.backoff.Delay(t.unit.ID+":infra", record.InfraAttempt)
	logging.WithContext(ctx, t.logger).Warn("infrastructure failure, retrying",
		logging.Int("infra_attempt", record.InfraAttempt),
		logging.Duration("delay", delay),
		logging.Error(cause))
	return t.sleep(ctx, delay)
}

// handleFailure classifies a failed attempt. Defects record feedback and
// leave the loop to try again; anything else terminally fails the unit. The
// returned outcome is non-nil when the unit reached a terminal state.
func (t *Task) handleFailure(ctx context.Context, record *checkpoint.Record, cause error, verdict string) (*Outcome, error) {
	details := services.Details(cause)
	record.Verdict = verdict
	record.ErrorMessage = details.Message

	if services.IsDefect(cause) {
		record.Feedback = renderFeedback(cause, verdict)
		if record.Attempt >= t.retry.MaxAttempts {
			record.Status = checkpoint.StatusFailed
			if err := t.store.Upsert(ctx, record); err != nil {
				return nil, err
			}
			logging.WithContext(ctx, t.logger).Warn("defect budget exhausted",
				logging.String(logging.FieldVerdict, verdict),
				logging.String(logging.FieldErrorHint, details.Message))
			outcome := outcomeFrom(record)
			return &outcome, nil
		}
		if err := t.store.Upsert(ctx, record); err != nil {
			return nil, err
		}
		logging.WithContext(ctx, t.logger).Info("attempt failed, feedback recorded",
			logging.String(logging.FieldVerdict, verdict),
			logging.String(logging.FieldErrorHint, details.Marker))

		delay := t.backoff.Delay(t.unit.ID, record.Attempt)
		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// Infrastructure budget exhausted (or a non-retryable failure): the unit
	// fails without consuming further defect attempts.
	record.Status = checkpoint.StatusFailed
	if err := t.store.Upsert(ctx, record); err != nil {
		return nil, err
	}
	logging.WithContext(ctx, t.logger).Error("unit failed on infrastructure",
		logging.Error(cause))
	outcome := outcomeFrom(record)
	return &outcome, nil
}

func renderFeedback(cause error, verdict string) string {
	details := services.Details(cause)
	var b strings.Builder
	switch validate.Verdict(verdict) {
	case validate.VerdictCompileFailure:
		b.WriteString("The generated code failed to compile.\n")
	case validate.VerdictBehavioralMismatch:
		b.WriteString("The generated code compiled but behaved differently from the C implementation.\n")
	default:
		b.WriteString("The generation response was incomplete.\n")
	}
	b.WriteString(details.Message)
	return b.String()
}

func outcomeFrom(record *checkpoint.Record) Outcome {
	verdict, _ := validate.ParseVerdict(record.Verdict)
	return Outcome{
		UnitID:       record.UnitID,
		Status:       record.Status,
		Attempts:     record.Attempt,
		InfraRetries: record.InfraAttempt,
		Verdict:      verdict,
		Detail:       record.ErrorMessage,
	}
}

func deref(outcome *Outcome) Outcome {
	if outcome == nil {
		return Outcome{}
	}
	return *outcome
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
