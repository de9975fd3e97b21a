// Package agent sequences plan → execute → verify → recover cycles for
// one task, bounded by a consecutive-failure budget. A single task runs
// on one cooperative control flow; no intent begins before the previous
// one's Outcome is recorded.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agently/agently/internal/logging"
	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/events"
	"github.com/agently/agently/pkg/history"
	"github.com/agently/agently/pkg/intent"
	"github.com/agently/agently/pkg/planner"
)

// State is the controller's task-level state.
type State string

const (
	StatePlanning   State = "planning"
	StateExecuting  State = "executing"
	StateVerifying  State = "verifying"
	StateRecovering State = "recovering"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// ErrTaskFailed is returned when the consecutive-failure ceiling is hit,
// the sole fatal termination condition.
var ErrTaskFailed = errors.New("task failed: consecutive-failure ceiling reached")

// SnapshotBuilder produces graphs; satisfied by *ax.Builder.
type SnapshotBuilder interface {
	Build(ctx context.Context) (*ax.Graph, error)
}

// Executor executes one intent against one graph; satisfied by
// *exec.Engine.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent, g *ax.Graph) intent.Outcome
}

// Recorder persists the run history; satisfied by *history.Store.
// A nil recorder disables persistence.
type Recorder interface {
	BeginRun(runID, task string) error
	FinishRun(runID, state string) error
	Append(runID, kind string, payload any) error
}

// Config tunes the controller.
type Config struct {
	// MaxConsecutiveFailures is the retry budget whose exhaustion is the
	// only fatal termination condition.
	MaxConsecutiveFailures int
	// SettleDelay is the pause after a state-changing intent before the
	// graph is rebuilt.
	SettleDelay time.Duration
	// PersistSnapshots writes every rebuilt graph to the recorder.
	PersistSnapshots bool
}

// DefaultConfig returns the orchestration defaults.
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveFailures: 3,
		SettleDelay:            500 * time.Millisecond,
		PersistSnapshots:       true,
	}
}

// Result summarizes one task run.
type Result struct {
	RunID    string           `json:"run_id"`
	Task     string           `json:"task"`
	State    State            `json:"state"`
	Outcomes []intent.Outcome `json:"outcomes"`
	Reason   string           `json:"reason,omitempty"`
}

// Controller is the task orchestration and recovery loop.
type Controller struct {
	builder  SnapshotBuilder
	executor Executor
	planner  planner.Client
	bus      events.EventBus
	recorder Recorder
	cfg      Config
}

// New creates a controller. The bus and recorder may be nil.
func New(builder SnapshotBuilder, executor Executor, pl planner.Client, bus events.EventBus, recorder Recorder, cfg Config) *Controller {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultConfig().MaxConsecutiveFailures
	}
	return &Controller{
		builder:  builder,
		executor: executor,
		planner:  pl,
		bus:      bus,
		recorder: recorder,
		cfg:      cfg,
	}
}

// run carries the mutable state of one task execution.
type run struct {
	id       string
	task     string
	graph    *ax.Graph
	queue    []intent.Intent
	outcomes []intent.Outcome
	failures int // consecutive failures across execution and recovery
}

// RunTask drives one task to Completed or Failed. The returned Result is
// non-nil even on failure; the error is non-nil only for the fatal
// ceiling exhaustion or a dead context.
func (c *Controller) RunTask(ctx context.Context, task string) (*Result, error) {
	r := &run{id: uuid.NewString(), task: task}

	logging.Info("task started", "run_id", r.id, "task", task)
	c.publish(events.NewEvent(events.EventTaskStart, r.id, task))
	if c.recorder != nil {
		if err := c.recorder.BeginRun(r.id, task); err != nil {
			logging.Warn("history begin failed", "error", err)
		}
	}

	state, reason := c.loop(ctx, r)

	result := &Result{RunID: r.id, Task: task, State: state, Outcomes: r.outcomes, Reason: reason}
	if c.recorder != nil {
		if err := c.recorder.FinishRun(r.id, string(state)); err != nil {
			logging.Warn("history finish failed", "error", err)
		}
	}

	if state == StateFailed {
		logging.Error("task failed", "run_id", r.id, "reason", reason)
		c.publish(events.NewEvent(events.EventTaskFailed, r.id, reason))
		return result, fmt.Errorf("%w: %s", ErrTaskFailed, reason)
	}
	logging.Info("task completed", "run_id", r.id, "outcomes", len(r.outcomes))
	c.publish(events.NewEvent(events.EventTaskCompleted, r.id, reason))
	return result, nil
}

// loop is the Planning → Executing → Verifying → (Recovering|Completed|
// Failed) state machine.
func (c *Controller) loop(ctx context.Context, r *run) (State, string) {
	// Planning: initial snapshot and plan. A planning contract failure
	// consumes failure budget exactly like an execution failure.
	for {
		if err := ctx.Err(); err != nil {
			return StateFailed, fmt.Sprintf("context canceled during planning: %v", err)
		}
		if err := c.rebuild(ctx, r); err != nil {
			// An empty graph is a valid (if useless) result, so rebuild
			// only fails on catastrophic provider errors.
			return StateFailed, fmt.Sprintf("snapshot build: %v", err)
		}

		c.publish(events.NewEvent(events.EventPlanRequested, r.id, r.task))
		plan, err := c.planner.Plan(ctx, planner.PlanRequest{Task: r.task, Graph: r.graph})
		if err != nil {
			if exhausted := c.noteFailure(r, fmt.Sprintf("planning: %v", err)); exhausted {
				return StateFailed, fmt.Sprintf("planning failed %d times: %v", r.failures, err)
			}
			continue
		}
		c.publish(events.NewEvent(events.EventPlanReceived, r.id, plan.Reasoning))
		c.record(r, history.KindPlan, plan)

		if len(plan.Actions) == 0 {
			// "Nothing to do" is not an error.
			return StateCompleted, "planner returned an empty plan"
		}
		r.queue = append([]intent.Intent{}, plan.Actions...)
		break
	}

	// Executing: strict sequential order, one outcome recorded before
	// the next intent starts.
	for len(r.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return StateFailed, fmt.Sprintf("context canceled during execution: %v", err)
		}

		in := r.queue[0]
		r.queue = r.queue[1:]

		c.publish(events.NewEvent(events.EventIntentStart, r.id, in))
		outcome := c.executor.Execute(ctx, in, r.graph)
		r.outcomes = append(r.outcomes, outcome)
		c.record(r, history.KindOutcome, outcome)
		c.publish(events.NewEvent(events.EventIntentEnd, r.id, outcome))

		if !outcome.Success {
			if exhausted := c.noteFailure(r, outcome.ErrorMessage); exhausted {
				return StateFailed, fmt.Sprintf("%d consecutive failures, last: %s", r.failures, outcome.ErrorMessage)
			}
			if state, reason, fatal := c.recover(ctx, r, in, outcome.ErrorMessage); fatal {
				return state, reason
			}
			continue
		}

		if in.Kind.StateChanging() {
			c.settle(ctx)
			if err := c.rebuild(ctx, r); err != nil {
				return StateFailed, fmt.Sprintf("snapshot rebuild: %v", err)
			}

			done, state, reason := c.verify(ctx, r, in)
			if done {
				return state, reason
			}
		} else {
			r.failures = 0
		}
	}

	return StateCompleted, "all planned intents executed"
}

// verify runs the external verification step for one successful,
// state-changing intent. Returns done == true when the task reached a
// terminal state.
func (c *Controller) verify(ctx context.Context, r *run, executed intent.Intent) (done bool, state State, reason string) {
	c.publish(events.NewEvent(events.EventVerifyStart, r.id, executed))

	vr, err := c.planner.Verify(ctx, planner.VerifyRequest{
		Task:     r.task,
		Executed: executed,
		History:  r.outcomes,
	})
	if err != nil {
		// Contract violation: same budget as an execution failure.
		if exhausted := c.noteFailure(r, fmt.Sprintf("verification: %v", err)); exhausted {
			return true, StateFailed, fmt.Sprintf("verification failed %d times: %v", r.failures, err)
		}
		if state, reason, fatal := c.recover(ctx, r, executed, err.Error()); fatal {
			return true, state, reason
		}
		return false, "", ""
	}

	c.record(r, history.KindVerification, vr)
	c.publish(events.NewEvent(events.EventVerifyResult, r.id, vr))

	if vr.PlanUpdate != nil {
		if vr.PlanUpdate.TaskCompleted {
			// Short-circuit: stop executing remaining intents.
			return true, StateCompleted, fmt.Sprintf("verifier reported task complete (confidence %.2f)", vr.PlanUpdate.Confidence)
		}
		if len(vr.PlanUpdate.SuggestedNextActions) > 0 {
			// The verifier's alternate list replaces the remaining plan.
			r.queue = append([]intent.Intent{}, vr.PlanUpdate.SuggestedNextActions...)
			r.failures = 0
			return false, "", ""
		}
	}

	if !vr.Success && vr.ShouldRetry {
		if exhausted := c.noteFailure(r, vr.Reasoning); exhausted {
			return true, StateFailed, fmt.Sprintf("%d consecutive failures, verifier: %s", r.failures, vr.Reasoning)
		}
		if state, reason, fatal := c.recover(ctx, r, executed, vr.Reasoning); fatal {
			return true, state, reason
		}
		return false, "", ""
	}

	// Verified success, or inconclusive without a retry recommendation:
	// proceed without penalty.
	r.failures = 0
	return false, "", ""
}

// recover requests a recovery plan and prepends its intents to the
// remaining queue. A recovery contract failure consumes failure budget;
// fatal == true means the ceiling was hit.
func (c *Controller) recover(ctx context.Context, r *run, failed intent.Intent, errMsg string) (State, string, bool) {
	logging.Warn("requesting recovery plan", "run_id", r.id, "failed_kind", string(failed.Kind), "error", errMsg)
	c.publish(events.NewEvent(events.EventRecoveryStart, r.id, errMsg))

	// Recovery plans are generated against the UI as it is now.
	if err := c.rebuild(ctx, r); err != nil {
		return StateFailed, fmt.Sprintf("snapshot rebuild for recovery: %v", err), true
	}

	plan, err := c.planner.PlanRecovery(ctx, planner.RecoveryRequest{
		Task:         r.task,
		Graph:        r.graph,
		FailedIntent: failed,
		ErrorMessage: errMsg,
		History:      r.outcomes,
	})
	if err != nil {
		if exhausted := c.noteFailure(r, fmt.Sprintf("recovery planning: %v", err)); exhausted {
			return StateFailed, fmt.Sprintf("recovery planning failed %d times: %v", r.failures, err), true
		}
		return "", "", false
	}
	c.record(r, history.KindRecovery, plan)

	if len(plan.Actions) > 0 {
		r.queue = append(append([]intent.Intent{}, plan.Actions...), r.queue...)
	}
	return "", "", false
}

// noteFailure bumps the consecutive-failure counter and reports whether
// the ceiling was reached.
func (c *Controller) noteFailure(r *run, msg string) bool {
	r.failures++
	logging.Warn("failure recorded", "run_id", r.id, "consecutive", r.failures, "ceiling", c.cfg.MaxConsecutiveFailures, "error", msg)
	return r.failures >= c.cfg.MaxConsecutiveFailures
}

// rebuild replaces the run's graph with a fresh snapshot. The old graph
// is superseded, never mutated.
func (c *Controller) rebuild(ctx context.Context, r *run) error {
	g, err := c.builder.Build(ctx)
	if err != nil {
		return err
	}
	r.graph = g
	c.publish(events.NewEvent(events.EventSnapshotBuilt, r.id, len(g.Elements)))
	if c.cfg.PersistSnapshots {
		c.record(r, history.KindSnapshot, g)
	}
	return nil
}

func (c *Controller) settle(ctx context.Context) {
	if c.cfg.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(c.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Controller) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func (c *Controller) record(r *run, kind string, payload any) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Append(r.id, kind, payload); err != nil {
		logging.Warn("history append failed", "run_id", r.id, "kind", kind, "error", err)
	}
}
