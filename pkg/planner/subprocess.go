package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agently/agently/internal/logging"
)

// SubprocessConfig configures the subprocess transport.
type SubprocessConfig struct {
	// Command is the planner executable (for example "python3").
	Command string
	// Args are prepended before the per-call arguments (for example
	// ["-m", "planner.main"]).
	Args []string
	// Workdir is the working directory for the subprocess.
	Workdir string
	// RunDir holds the JSON exchange files for one run.
	RunDir string
	// Timeout bounds each subprocess invocation.
	Timeout time.Duration
}

// Subprocess invokes the external reasoning process once per request,
// exchanging the graph and failure context through JSON files and
// reading the response from stdout.
type Subprocess struct {
	cfg SubprocessConfig
}

// NewSubprocess creates a subprocess-backed planner client.
func NewSubprocess(cfg SubprocessConfig) (*Subprocess, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("planner: command not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RunDir == "" {
		cfg.RunDir = filepath.Join(os.TempDir(), "agently-planner")
	}
	if err := os.MkdirAll(cfg.RunDir, 0755); err != nil {
		return nil, fmt.Errorf("planner: create run dir: %w", err)
	}
	return &Subprocess{cfg: cfg}, nil
}

// Plan requests an initial plan for the task against the graph.
func (s *Subprocess) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	graphPath, err := s.writeJSON("graph", req.Graph)
	if err != nil {
		return nil, err
	}
	out, err := s.invoke(ctx, "--task", req.Task, "--graph", graphPath)
	if err != nil {
		return nil, err
	}
	return parsePlan(out)
}

// PlanRecovery requests a recovery plan, passing the failed intent, its
// error, the graph at failure time, and the executed history.
func (s *Subprocess) PlanRecovery(ctx context.Context, req RecoveryRequest) (*Plan, error) {
	graphPath, err := s.writeJSON("graph", req.Graph)
	if err != nil {
		return nil, err
	}
	failedPath, err := s.writeJSON("failed-action", req.FailedIntent)
	if err != nil {
		return nil, err
	}
	historyPath, err := s.writeJSON("completed-actions", req.History)
	if err != nil {
		return nil, err
	}

	out, err := s.invoke(ctx,
		"--task", req.Task,
		"--graph", graphPath,
		"--recovery",
		"--failed-action-file", failedPath,
		"--error-message", req.ErrorMessage,
		"--completed-actions-file", historyPath,
	)
	if err != nil {
		return nil, err
	}
	return parsePlan(out)
}

// Verify asks the external verifier whether the executed intent advanced
// the task. The verifier exits non-zero when verification fails, so the
// exit code alone is not a contract violation; only unparsable output is.
func (s *Subprocess) Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	historyPath, err := s.writeJSON("completed-actions", req.History)
	if err != nil {
		return nil, err
	}

	out, invokeErr := s.invoke(ctx,
		"--verify",
		"--step-description", req.Task,
		"--action-type", string(req.Executed.Kind),
		"--action-description", req.Executed.Description,
		"--completed-actions-file", historyPath,
		"--run-dir", s.cfg.RunDir,
	)

	var result VerificationResult
	if jsonErr := json.Unmarshal(stripFences(out), &result); jsonErr != nil {
		if invokeErr != nil {
			return nil, invokeErr
		}
		return nil, fmt.Errorf("%w: unparsable verification output: %v", ErrContract, jsonErr)
	}
	return &result, nil
}

// invoke runs the planner process with the configured command plus args,
// returning its stdout. Stderr is forwarded to the log.
func (s *Subprocess) invoke(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	full := append(append([]string{}, s.cfg.Args...), args...)
	cmd := osexec.CommandContext(ctx, s.cfg.Command, full...)
	cmd.Dir = s.cfg.Workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("invoking planner", "command", s.cfg.Command, "args", strings.Join(args, " "))
	err := cmd.Run()
	if stderr.Len() > 0 {
		logging.Debug("planner stderr", "output", stderr.String())
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.Bytes(), fmt.Errorf("%w: planner timed out after %s", ErrContract, s.cfg.Timeout)
		}
		return stdout.Bytes(), fmt.Errorf("%w: planner exited with error: %v", ErrContract, err)
	}
	return stdout.Bytes(), nil
}

func (s *Subprocess) writeJSON(name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("planner: marshal %s: %w", name, err)
	}
	path := filepath.Join(s.cfg.RunDir, fmt.Sprintf("%s-%d.json", name, time.Now().UnixNano()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("planner: write %s: %w", name, err)
	}
	return path, nil
}

// parsePlan decodes the planner's stdout into a Plan. Reasoning models
// sometimes wrap the JSON in markdown code fences; those are stripped
// before parsing.
func parsePlan(out []byte) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal(stripFences(out), &plan); err != nil {
		return nil, fmt.Errorf("%w: unparsable plan output: %v", ErrContract, err)
	}
	for i, action := range plan.Actions {
		if !action.Kind.Valid() {
			return nil, fmt.Errorf("%w: plan action %d has unknown kind %q", ErrContract, i, action.Kind)
		}
	}
	return &plan, nil
}

// stripFences removes a surrounding ```json ... ``` block, if present.
func stripFences(out []byte) []byte {
	s := strings.TrimSpace(string(out))
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return []byte(strings.TrimSpace(s))
}
