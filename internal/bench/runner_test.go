package bench

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agently/agently/pkg/agent"
	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/intent"
)

type stubController struct {
	result *agent.Result
	err    error
}

func (s *stubController) RunTask(ctx context.Context, task string) (*agent.Result, error) {
	return s.result, s.err
}

type stubBuilder struct {
	graph *ax.Graph
}

func (s *stubBuilder) Build(ctx context.Context) (*ax.Graph, error) {
	return s.graph, nil
}

func TestRunTaskPassesWhenCriteriaHold(t *testing.T) {
	controller := &stubController{result: &agent.Result{
		RunID: "run-1",
		State: agent.StateCompleted,
		Outcomes: []intent.Outcome{
			intent.Succeeded(intent.Intent{Kind: intent.KindClick}, 10*time.Millisecond),
		},
	}}
	builder := &stubBuilder{graph: criteriaGraph()}

	runner := NewRunner(controller, builder)
	res := runner.RunTask(context.Background(), Task{
		TaskID: "t1",
		Prompt: "click save",
		SuccessCriteria: []Criterion{
			{Type: "element_exists", Role: "AXButton", Text: "save"},
		},
	})

	if !res.Passed {
		t.Fatalf("task failed: %+v", res)
	}
	if res.RunID != "run-1" || res.IntentCount != 1 || res.FailedIntents != 0 {
		t.Errorf("metrics = %+v", res)
	}
}

func TestRunTaskFailsOnAgentError(t *testing.T) {
	controller := &stubController{
		result: &agent.Result{State: agent.StateFailed},
		err:    errors.New("consecutive-failure ceiling reached"),
	}
	runner := NewRunner(controller, &stubBuilder{graph: criteriaGraph()})

	res := runner.RunTask(context.Background(), Task{TaskID: "t2", Prompt: "do a thing"})
	if res.Passed {
		t.Error("task with agent error should not pass")
	}
	if res.Error == "" {
		t.Error("error not recorded")
	}
}

func TestRunTaskFailsOnUnmetCriteria(t *testing.T) {
	controller := &stubController{result: &agent.Result{State: agent.StateCompleted}}
	runner := NewRunner(controller, &stubBuilder{graph: criteriaGraph()})

	res := runner.RunTask(context.Background(), Task{
		TaskID: "t3",
		Prompt: "open notes",
		SuccessCriteria: []Criterion{
			{Type: "app_frontmost", App: "Notes"},
		},
	})
	if res.Passed {
		t.Error("unmet criterion should fail the task")
	}
	if len(res.CriteriaFailed) != 1 {
		t.Errorf("criteria failures = %v", res.CriteriaFailed)
	}
}

func TestRunSuiteSummarizes(t *testing.T) {
	controller := &stubController{result: &agent.Result{State: agent.StateCompleted}}
	runner := NewRunner(controller, &stubBuilder{graph: criteriaGraph()})

	tasks := []Task{
		{TaskID: "pass", Prompt: "p", SuccessCriteria: []Criterion{{Type: "min_elements", Min: 1}}},
		{TaskID: "fail", Prompt: "f", SuccessCriteria: []Criterion{{Type: "min_elements", Min: 99}}},
	}
	results, summary := runner.RunSuite(context.Background(), tasks)

	if len(results) != 2 {
		t.Fatalf("result count = %d", len(results))
	}
	if summary.Total != 2 || summary.Passed != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}
