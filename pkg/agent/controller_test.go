package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/intent"
	"github.com/agently/agently/pkg/planner"
)

type scriptedBuilder struct {
	builds int
}

func (b *scriptedBuilder) Build(ctx context.Context) (*ax.Graph, error) {
	b.builds++
	return &ax.Graph{
		Elements:  map[string]ax.Element{"ax-1": {ID: "ax-1", Role: "AXButton", Label: "Save"}},
		Timestamp: time.Now(),
	}, nil
}

// scriptedExecutor fails any intent whose target is in failing; every
// execution is recorded in order.
type scriptedExecutor struct {
	failing  map[string]bool
	executed []intent.Intent
}

func (e *scriptedExecutor) Execute(ctx context.Context, in intent.Intent, g *ax.Graph) intent.Outcome {
	e.executed = append(e.executed, in)
	if e.failing[in.TargetElementID] {
		return intent.Failed(in, errors.New("element not found"), time.Millisecond)
	}
	return intent.Succeeded(in, time.Millisecond)
}

type scriptedPlanner struct {
	planFn    func(req planner.PlanRequest) (*planner.Plan, error)
	recoverFn func(req planner.RecoveryRequest) (*planner.Plan, error)
	verifyFn  func(req planner.VerifyRequest) (*planner.VerificationResult, error)

	planCalls    int
	recoverCalls int
	verifyCalls  int
}

func (p *scriptedPlanner) Plan(ctx context.Context, req planner.PlanRequest) (*planner.Plan, error) {
	p.planCalls++
	return p.planFn(req)
}

func (p *scriptedPlanner) PlanRecovery(ctx context.Context, req planner.RecoveryRequest) (*planner.Plan, error) {
	p.recoverCalls++
	if p.recoverFn == nil {
		return &planner.Plan{}, nil
	}
	return p.recoverFn(req)
}

func (p *scriptedPlanner) Verify(ctx context.Context, req planner.VerifyRequest) (*planner.VerificationResult, error) {
	p.verifyCalls++
	if p.verifyFn == nil {
		return &planner.VerificationResult{Success: true, Confidence: 1}, nil
	}
	return p.verifyFn(req)
}

func click(target string) intent.Intent {
	return intent.Intent{Kind: intent.KindClick, TargetElementID: target}
}

func planOf(actions ...intent.Intent) func(planner.PlanRequest) (*planner.Plan, error) {
	return func(planner.PlanRequest) (*planner.Plan, error) {
		return &planner.Plan{Reasoning: "scripted", Actions: actions, Confidence: 0.9}, nil
	}
}

func newTestController(pl planner.Client, exec Executor) *Controller {
	return New(&scriptedBuilder{}, exec, pl, nil, nil, Config{
		MaxConsecutiveFailures: 3,
		SettleDelay:            0,
		PersistSnapshots:       false,
	})
}

func TestRunTaskHappyPath(t *testing.T) {
	pl := &scriptedPlanner{planFn: planOf(click("ax-1"), click("ax-1"))}
	exec := &scriptedExecutor{}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "save twice")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if result.State != StateCompleted {
		t.Errorf("state = %s", result.State)
	}
	if len(result.Outcomes) != 2 || len(exec.executed) != 2 {
		t.Errorf("outcomes = %d, executed = %d", len(result.Outcomes), len(exec.executed))
	}
	if pl.verifyCalls != 2 {
		t.Errorf("verify calls = %d, want one per state-changing intent", pl.verifyCalls)
	}
	if result.RunID == "" {
		t.Error("run id not assigned")
	}
}

func TestRunTaskEmptyPlanCompletes(t *testing.T) {
	pl := &scriptedPlanner{planFn: planOf()}
	exec := &scriptedExecutor{}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "nothing to do")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if result.State != StateCompleted || len(exec.executed) != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestRunTaskSkipsVerificationForObservationIntents(t *testing.T) {
	pl := &scriptedPlanner{planFn: planOf(
		intent.Intent{Kind: intent.KindWait, Parameters: map[string]any{"seconds": 0.0}},
		intent.Intent{Kind: intent.KindScreenshot},
	)}
	exec := &scriptedExecutor{}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "observe")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if result.State != StateCompleted {
		t.Errorf("state = %s", result.State)
	}
	if pl.verifyCalls != 0 {
		t.Errorf("verify calls = %d for non-state-changing intents", pl.verifyCalls)
	}
}

func TestRunTaskFailureCeilingTerminatesWithoutExtraRecovery(t *testing.T) {
	pl := &scriptedPlanner{
		planFn: planOf(click("bad")),
		recoverFn: func(planner.RecoveryRequest) (*planner.Plan, error) {
			return &planner.Plan{Actions: []intent.Intent{click("bad")}}, nil
		},
	}
	exec := &scriptedExecutor{failing: map[string]bool{"bad": true}}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "doomed")
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("err = %v, want ErrTaskFailed", err)
	}
	if result.State != StateFailed {
		t.Errorf("state = %s", result.State)
	}
	if len(exec.executed) != 3 {
		t.Errorf("executions = %d, want exactly the failure budget", len(exec.executed))
	}
	// The third failure hits the ceiling; no recovery plan is requested
	// for it.
	if pl.recoverCalls != 2 {
		t.Errorf("recovery calls = %d, want 2", pl.recoverCalls)
	}
}

func TestRunTaskRecoveryActionsRunBeforeRemainingPlan(t *testing.T) {
	pl := &scriptedPlanner{
		planFn: planOf(click("bad-once"), click("next")),
		recoverFn: func(req planner.RecoveryRequest) (*planner.Plan, error) {
			if req.FailedIntent.TargetElementID != "bad-once" {
				t.Errorf("failed intent = %+v", req.FailedIntent)
			}
			if req.ErrorMessage == "" {
				t.Error("recovery request without error message")
			}
			return &planner.Plan{Actions: []intent.Intent{click("fix")}}, nil
		},
	}
	exec := &scriptedExecutor{failing: map[string]bool{"bad-once": true}}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "recoverable")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if result.State != StateCompleted {
		t.Errorf("state = %s", result.State)
	}

	var order []string
	for _, in := range exec.executed {
		order = append(order, in.TargetElementID)
	}
	want := []string{"bad-once", "fix", "next"}
	if len(order) != len(want) {
		t.Fatalf("execution order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestRunTaskSuccessResetsFailureCounter(t *testing.T) {
	// Two failures, a success, then two more failures: never three in a
	// row, so the task must not fail.
	sequence := []bool{true, true, false, true, true, false}
	i := 0
	exec := &scriptedExecutor{}
	pl := &scriptedPlanner{
		planFn: planOf(click("step")),
		recoverFn: func(planner.RecoveryRequest) (*planner.Plan, error) {
			return &planner.Plan{Actions: []intent.Intent{click("step")}}, nil
		},
	}

	controller := New(&scriptedBuilder{}, executorFunc(func(ctx context.Context, in intent.Intent, g *ax.Graph) intent.Outcome {
		exec.executed = append(exec.executed, in)
		fail := sequence[i]
		i++
		if fail {
			return intent.Failed(in, errors.New("transient"), time.Millisecond)
		}
		return intent.Succeeded(in, time.Millisecond)
	}), pl, nil, nil, Config{MaxConsecutiveFailures: 3})

	result, err := controller.RunTask(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if result.State == StateFailed {
		t.Errorf("non-consecutive failures hit the ceiling: %+v", result)
	}
}

type executorFunc func(ctx context.Context, in intent.Intent, g *ax.Graph) intent.Outcome

func (f executorFunc) Execute(ctx context.Context, in intent.Intent, g *ax.Graph) intent.Outcome {
	return f(ctx, in, g)
}

func TestRunTaskPlanningFailuresConsumeBudget(t *testing.T) {
	pl := &scriptedPlanner{
		planFn: func(planner.PlanRequest) (*planner.Plan, error) {
			return nil, errors.New("planner contract violation: unparsable output")
		},
	}
	exec := &scriptedExecutor{}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "unplannable")
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("err = %v, want ErrTaskFailed", err)
	}
	if result.State != StateFailed {
		t.Errorf("state = %s", result.State)
	}
	if pl.planCalls != 3 {
		t.Errorf("plan attempts = %d, want the failure budget", pl.planCalls)
	}
	if len(exec.executed) != 0 {
		t.Errorf("intents executed despite planning failure: %v", exec.executed)
	}
}

func TestRunTaskVerifierCompletionShortCircuits(t *testing.T) {
	pl := &scriptedPlanner{
		planFn: planOf(click("ax-1"), click("never-reached")),
		verifyFn: func(planner.VerifyRequest) (*planner.VerificationResult, error) {
			return &planner.VerificationResult{
				Success:    true,
				Confidence: 0.95,
				PlanUpdate: &planner.PlanUpdate{TaskCompleted: true, Confidence: 0.95},
			}, nil
		},
	}
	exec := &scriptedExecutor{}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "short")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if result.State != StateCompleted {
		t.Errorf("state = %s", result.State)
	}
	if len(exec.executed) != 1 {
		t.Errorf("executed %d intents after completion signal", len(exec.executed))
	}
}

func TestRunTaskSuggestedActionsReplaceRemainingPlan(t *testing.T) {
	first := true
	pl := &scriptedPlanner{
		planFn: planOf(click("a"), click("dropped")),
		verifyFn: func(planner.VerifyRequest) (*planner.VerificationResult, error) {
			if first {
				first = false
				return &planner.VerificationResult{
					Success: true,
					PlanUpdate: &planner.PlanUpdate{
						SuggestedNextActions: []intent.Intent{click("replacement")},
					},
				}, nil
			}
			return &planner.VerificationResult{Success: true}, nil
		},
	}
	exec := &scriptedExecutor{}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "redirected")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if result.State != StateCompleted {
		t.Errorf("state = %s", result.State)
	}

	var order []string
	for _, in := range exec.executed {
		order = append(order, in.TargetElementID)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "replacement" {
		t.Errorf("execution order = %v, want [a replacement]", order)
	}
}

func TestRunTaskVerifyRetryFailuresHitCeiling(t *testing.T) {
	pl := &scriptedPlanner{
		planFn: planOf(click("a")),
		verifyFn: func(planner.VerifyRequest) (*planner.VerificationResult, error) {
			return &planner.VerificationResult{
				Success:     false,
				Confidence:  0.6,
				Reasoning:   "nothing changed",
				ShouldRetry: true,
			}, nil
		},
		recoverFn: func(planner.RecoveryRequest) (*planner.Plan, error) {
			return &planner.Plan{Actions: []intent.Intent{click("a")}}, nil
		},
	}
	exec := &scriptedExecutor{}

	result, err := newTestController(pl, exec).RunTask(context.Background(), "unverifiable")
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("err = %v, want ErrTaskFailed", err)
	}
	if result.State != StateFailed {
		t.Errorf("state = %s", result.State)
	}
	if pl.verifyCalls != 3 {
		t.Errorf("verify calls = %d, want the failure budget", pl.verifyCalls)
	}
	if pl.recoverCalls != 2 {
		t.Errorf("recovery calls = %d, want 2", pl.recoverCalls)
	}
}

func TestRunTaskRebuildsGraphAfterStateChangingIntent(t *testing.T) {
	builder := &scriptedBuilder{}
	pl := &scriptedPlanner{planFn: planOf(click("ax-1"))}

	controller := New(builder, &scriptedExecutor{}, pl, nil, nil, Config{MaxConsecutiveFailures: 3})
	if _, err := controller.RunTask(context.Background(), "rebuild check"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	// One build for planning, one after the state-changing click.
	if builder.builds != 2 {
		t.Errorf("builds = %d, want 2", builder.builds)
	}
}
