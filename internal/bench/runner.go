package bench

import (
	"context"
	"time"

	"github.com/agently/agently/internal/logging"
	"github.com/agently/agently/pkg/agent"
)

// TaskController runs one task end to end; satisfied by
// *agent.Controller.
type TaskController interface {
	RunTask(ctx context.Context, task string) (*agent.Result, error)
}

// TaskResult holds the metrics collected for one benchmark task.
type TaskResult struct {
	TaskID         string        `json:"task_id"`
	Name           string        `json:"name"`
	RunID          string        `json:"run_id,omitempty"`
	Passed         bool          `json:"passed"`
	AgentState     agent.State   `json:"agent_state"`
	IntentCount    int           `json:"intent_count"`
	FailedIntents  int           `json:"failed_intents"`
	Duration       time.Duration `json:"duration"`
	CriteriaTotal  int           `json:"criteria_total"`
	CriteriaFailed []string      `json:"criteria_failed,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// Summary aggregates a suite run.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Runner executes benchmark tasks against a live controller and checks
// their success criteria against a fresh snapshot taken after each run.
type Runner struct {
	controller TaskController
	builder    agent.SnapshotBuilder
}

// NewRunner creates a benchmark runner.
func NewRunner(controller TaskController, builder agent.SnapshotBuilder) *Runner {
	return &Runner{controller: controller, builder: builder}
}

// RunTask executes one benchmark task. A task passes when the agent
// finishes without a fatal error and every success criterion holds
// against the post-run graph.
func (r *Runner) RunTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{
		TaskID:        task.TaskID,
		Name:          task.Name,
		CriteriaTotal: len(task.SuccessCriteria),
	}

	if task.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	logging.Info("benchmark task starting", "task_id", task.TaskID)
	start := time.Now()
	agentResult, err := r.controller.RunTask(ctx, task.Prompt)
	result.Duration = time.Since(start)

	if agentResult != nil {
		result.RunID = agentResult.RunID
		result.AgentState = agentResult.State
		result.IntentCount = len(agentResult.Outcomes)
		for _, o := range agentResult.Outcomes {
			if !o.Success {
				result.FailedIntents++
			}
		}
	}
	if err != nil {
		result.Error = err.Error()
		logging.Warn("benchmark task failed", "task_id", task.TaskID, "error", err)
		return result
	}

	g, err := r.builder.Build(ctx)
	if err != nil {
		result.Error = "post-run snapshot: " + err.Error()
		return result
	}
	for _, failure := range CheckCriteria(g, task.SuccessCriteria) {
		result.CriteriaFailed = append(result.CriteriaFailed, failure.Error())
	}

	result.Passed = len(result.CriteriaFailed) == 0
	logging.Info("benchmark task finished",
		"task_id", task.TaskID,
		"passed", result.Passed,
		"intents", result.IntentCount,
		"duration", result.Duration)
	return result
}

// RunSuite executes every task in order and returns per-task results
// with an aggregate summary. Task failures never abort the suite.
func (r *Runner) RunSuite(ctx context.Context, tasks []Task) ([]TaskResult, Summary) {
	results := make([]TaskResult, 0, len(tasks))
	summary := Summary{Total: len(tasks)}

	start := time.Now()
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		res := r.RunTask(ctx, task)
		if res.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		results = append(results, res)
	}
	summary.Duration = time.Since(start)
	return results, summary
}
