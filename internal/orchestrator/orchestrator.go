package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"portforge/internal/checkpoint"
	"portforge/internal/config"
	"portforge/internal/generate"
	"portforge/internal/logging"
	"portforge/internal/services"
	"portforge/internal/symbolgraph"
	"portforge/internal/task"
	"portforge/internal/validate"
)

// Orchestrator drives porting tasks over the symbol graph and enforces
// single-instance execution through a lock file.
type Orchestrator struct {
	cfg          *config.Config
	graph        *symbolgraph.Graph
	store        *checkpoint.Store
	collaborator generate.Collaborator
	validator    task.Validator
	logger       *slog.Logger
	sleep        func(context.Context, time.Duration) error

	lockPath string
	lock     *flock.Flock
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSleep overrides retry waits inside tasks (useful for tests).
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// New constructs an Orchestrator.
func New(
	cfg *config.Config,
	graph *symbolgraph.Graph,
	store *checkpoint.Store,
	collaborator generate.Collaborator,
	validator task.Validator,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg == nil || graph == nil || store == nil || collaborator == nil || validator == nil {
		return nil, errors.New("orchestrator requires config, graph, store, collaborator, and validator")
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "portforge.lock")
	o := &Orchestrator{
		cfg:          cfg,
		graph:        graph,
		store:        store,
		collaborator: collaborator,
		validator:    validator,
		logger:       logging.NewNop(),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// UnitFailure describes one terminally failed unit with its last verdict
// and diagnostic detail.
type UnitFailure struct {
	UnitID  string
	Verdict validate.Verdict
	Detail  string
}

// BlockedUnit names a unit that was never dispatched together with the
// failed dependency that blocked it.
type BlockedUnit struct {
	UnitID    string
	BlockedBy string
}

// RunSummary reports the outcome of a run across the whole graph.
// Failures appear in the order they completed; blocked units are sorted
// by unit ID.
type RunSummary struct {
	RunID        string
	Total        int
	Verified     int
	Failed       int
	Blocked      int
	Skipped      int
	Interrupted  bool
	Duration     time.Duration
	Failures     []UnitFailure
	BlockedUnits []BlockedUnit
}

type unitResult struct {
	unitID  string
	outcome task.Outcome
	err     error
}

// Run processes every unit whose dependencies can be verified. It resumes
// from the checkpoint store, rewinding any checkpoints a previous run left
// in flight. Cancellation is honoured between tasks; in-flight tasks stop
// at their next checkpoint boundary.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	locked, err := o.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another portforge run holds %s", o.lockPath)
	}
	defer func() {
		if unlockErr := o.lock.Unlock(); unlockErr != nil {
			o.logger.Warn("failed to release run lock", logging.Error(unlockErr))
		}
	}()

	runID := ulid.Make().String()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)
	started := time.Now()

	rewound, err := o.store.RollbackInFlight(ctx)
	if err != nil {
		return nil, err
	}
	if len(rewound) > 0 {
		logger.Info("rewound in-flight checkpoints from a previous run",
			logging.Int("units", len(rewound)),
			logging.Any("unit_ids", rewound),
		)
	}

	records, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sched := newSchedule(o.graph, records, o.cfg.Retry.MaxAttempts)

	logger.Info("run starting",
		logging.Int("units", o.graph.Len()),
		logging.Int("already_verified", sched.count(stateVerified)),
		logging.Int("concurrency", o.cfg.Orchestrator.Concurrency),
	)

	summary := o.dispatch(ctx, logger, runID, sched)
	summary.Duration = time.Since(started)

	logger.Info("run finished",
		logging.Int("verified", summary.Verified),
		logging.Int("failed", summary.Failed),
		logging.Int("blocked", summary.Blocked),
		logging.Int("skipped", summary.Skipped),
		logging.Bool("interrupted", summary.Interrupted),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, logger *slog.Logger, runID string, sched *schedule) *RunSummary {
	limit := o.cfg.Orchestrator.Concurrency
	if limit < 1 {
		limit = 1
	}

	var group errgroup.Group
	results := make(chan unitResult, o.graph.Len())
	running := 0
	summary := &RunSummary{RunID: runID, Total: o.graph.Len()}

	for {
		if ctx.Err() == nil {
			for running < limit {
				unitID, ok := sched.next()
				if !ok {
					break
				}
				unit, found := o.graph.Unit(unitID)
				if !found {
					sched.state[unitID] = stateFailed
					continue
				}
				deps := sched.verifiedDeps(unitID)
				running++
				group.Go(func() error {
					outcome, err := o.runTask(ctx, runID, unit, deps)
					results <- unitResult{unitID: unit.ID, outcome: outcome, err: err}
					return nil
				})
			}
		}
		if running == 0 {
			break
		}
		res := <-results
		running--
		o.applyResult(ctx, logger, sched, summary, res)
	}
	_ = group.Wait()

	o.summarize(ctx, sched, summary)
	return summary
}

func (o *Orchestrator) runTask(ctx context.Context, runID string, unit *symbolgraph.Unit, verifiedDeps []string) (task.Outcome, error) {
	t := task.New(task.Options{
		Unit:         unit,
		Store:        o.store,
		Collaborator: o.collaborator,
		Validator:    o.validator,
		Retry:        o.cfg.Retry,
		RunID:        runID,
		VerifiedDeps: verifiedDeps,
		Logger:       o.logger,
		Sleep:        o.sleep,
	})
	return t.Run(ctx)
}

func (o *Orchestrator) applyResult(ctx context.Context, logger *slog.Logger, sched *schedule, summary *RunSummary, res unitResult) {
	unitLogger := logger.With(logging.String(logging.FieldUnitID, res.unitID))
	if res.err != nil {
		// Context cancellation surfaces here; the unit stays rewindable.
		if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
			sched.state[res.unitID] = statePending
			return
		}
		unitLogger.Error("task aborted",
			logging.Error(res.err),
			logging.String(logging.FieldEventType, "task_aborted"),
			logging.String(logging.FieldErrorHint, "check checkpoint database access"),
		)
		summary.Failures = append(summary.Failures, UnitFailure{
			UnitID: res.unitID,
			Detail: res.err.Error(),
		})
		o.blockAfterFailure(unitLogger, sched, res.unitID)
		return
	}

	switch res.outcome.Status {
	case checkpoint.StatusVerified:
		sched.markVerified(res.unitID)
		unitLogger.Info("unit verified",
			logging.Int("attempts", res.outcome.Attempts),
			logging.String(logging.FieldVerdict, string(res.outcome.Verdict)),
		)
	case checkpoint.StatusFailed:
		unitLogger.Warn("unit failed terminally",
			logging.Int("attempts", res.outcome.Attempts),
			logging.String(logging.FieldVerdict, string(res.outcome.Verdict)),
			logging.String("detail", res.outcome.Detail),
		)
		summary.Failures = append(summary.Failures, UnitFailure{
			UnitID:  res.unitID,
			Verdict: res.outcome.Verdict,
			Detail:  res.outcome.Detail,
		})
		o.blockAfterFailure(unitLogger, sched, res.unitID)
	default:
		// Tasks only return terminal outcomes; treat anything else as failed.
		unitLogger.Error("task returned non-terminal status",
			logging.String("status", string(res.outcome.Status)),
		)
		summary.Failures = append(summary.Failures, UnitFailure{
			UnitID: res.unitID,
			Detail: fmt.Sprintf("task returned non-terminal status %q", res.outcome.Status),
		})
		o.blockAfterFailure(unitLogger, sched, res.unitID)
	}
}

func (o *Orchestrator) blockAfterFailure(logger *slog.Logger, sched *schedule, unitID string) {
	blocked := sched.markFailed(unitID)
	for _, dep := range blocked {
		cause := services.Wrap(services.ErrChainBlocked, "orchestration", "schedule",
			fmt.Sprintf("dependency %s failed terminally", unitID), nil)
		logger.Warn("unit blocked by failed dependency",
			logging.String("blocked_unit", dep),
			logging.Error(cause),
			logging.String(logging.FieldEventType, "unit_blocked"),
		)
	}
}

func (o *Orchestrator) summarize(ctx context.Context, sched *schedule, summary *RunSummary) {
	summary.Interrupted = ctx.Err() != nil

	reported := make(map[string]bool, len(summary.Failures))
	for _, failure := range summary.Failures {
		reported[failure.UnitID] = true
	}

	var priorFailed []string
	for id, st := range sched.state {
		switch st {
		case stateVerified:
			summary.Verified++
		case stateFailed:
			summary.Failed++
			if !reported[id] {
				priorFailed = append(priorFailed, id)
			}
		case stateBlocked:
			summary.Blocked++
			summary.BlockedUnits = append(summary.BlockedUnits, BlockedUnit{
				UnitID:    id,
				BlockedBy: sched.blockedBy[id],
			})
		default:
			summary.Skipped++
		}
	}

	// Units that failed terminally in a previous run were never dispatched
	// here; pull their diagnostics from the checkpoint store.
	sort.Strings(priorFailed)
	lookupCtx := context.WithoutCancel(ctx)
	for _, id := range priorFailed {
		failure := UnitFailure{UnitID: id}
		if record, err := o.store.Get(lookupCtx, id); err == nil && record != nil {
			failure.Verdict, _ = validate.ParseVerdict(record.Verdict)
			failure.Detail = record.ErrorMessage
		}
		summary.Failures = append(summary.Failures, failure)
	}

	sort.Slice(summary.BlockedUnits, func(i, j int) bool {
		return summary.BlockedUnits[i].UnitID < summary.BlockedUnits[j].UnitID
	})
}
