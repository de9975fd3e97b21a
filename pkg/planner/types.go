// Package planner is the boundary to the external reasoning process
// that turns a task description plus a UI graph into an ordered action
// list, and judges whether executed actions advanced the task. The
// transport (subprocess, file exchange, in-process fake) is an
// implementation detail behind the Client interface.
package planner

import (
	"context"
	"errors"

	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/intent"
)

// ErrContract marks a planner/verifier contract violation: the external
// process failed or returned data the engine cannot parse. Contract
// violations feed the same recovery path as execution failures and must
// never crash the controller.
var ErrContract = errors.New("planner contract violation")

// Plan is an ordered list of intents plus planner metadata.
type Plan struct {
	Reasoning  string          `json:"reasoning"`
	Actions    []intent.Intent `json:"actions"`
	Confidence float64         `json:"confidence"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// PlanUpdate is the verifier's optional follow-up: either the task is
// complete, or an alternate intent list should be executed in preference
// to the remaining plan.
type PlanUpdate struct {
	TaskCompleted        bool            `json:"task_completed,omitempty"`
	Confidence           float64         `json:"confidence,omitempty"`
	SuggestedNextActions []intent.Intent `json:"suggested_next_actions,omitempty"`
}

// VerificationResult is the external judgment of whether a completed
// intent advanced the task.
type VerificationResult struct {
	Success     bool        `json:"success"`
	Confidence  float64     `json:"confidence"`
	Reasoning   string      `json:"reasoning,omitempty"`
	ShouldRetry bool        `json:"should_retry,omitempty"`
	PlanUpdate  *PlanUpdate `json:"plan_update,omitempty"`
}

// PlanRequest asks for an initial plan.
type PlanRequest struct {
	Task  string    `json:"task"`
	Graph *ax.Graph `json:"graph"`
}

// RecoveryRequest asks for a recovery plan after a failure.
type RecoveryRequest struct {
	Task         string           `json:"task"`
	Graph        *ax.Graph        `json:"graph"`
	FailedIntent intent.Intent    `json:"failed_action"`
	ErrorMessage string           `json:"error_message"`
	History      []intent.Outcome `json:"completed_actions"`
}

// VerifyRequest asks whether a just-executed intent advanced the task.
type VerifyRequest struct {
	Task     string           `json:"task"`
	Executed intent.Intent    `json:"executed_action"`
	History  []intent.Outcome `json:"completed_actions"`
}

// Client is the narrow request/response contract with the reasoning
// process. All calls block the controller until a response arrives or
// the transport-level timeout fires.
type Client interface {
	Plan(ctx context.Context, req PlanRequest) (*Plan, error)
	PlanRecovery(ctx context.Context, req RecoveryRequest) (*Plan, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error)
}
