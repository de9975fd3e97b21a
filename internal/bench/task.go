// Package bench loads benchmark task definitions and runs them through
// the orchestration controller, collecting per-task metrics. It is CLI
// plumbing around the core loop, not part of it.
package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/agently/agently/pkg/ax"
)

// Task defines one benchmark task.
type Task struct {
	TaskID          string      `yaml:"task_id"`
	Name            string      `yaml:"name"`
	Description     string      `yaml:"description"`
	Prompt          string      `yaml:"prompt"`
	TimeoutSeconds  int         `yaml:"timeout_seconds"`
	Tags            []string    `yaml:"tags"`
	SuccessCriteria []Criterion `yaml:"success_criteria"`
}

// Criterion is a machine-checkable condition evaluated against the
// final graph after the task ends.
type Criterion struct {
	Type string `yaml:"type"` // "element_exists", "app_frontmost", "min_elements"
	Role string `yaml:"role,omitempty"`
	Text string `yaml:"text,omitempty"`
	App  string `yaml:"app,omitempty"`
	Min  int    `yaml:"min,omitempty"`
}

// Validate reports the task definition problems a loader should reject.
func (t Task) Validate() error {
	var problems []string
	if t.TaskID == "" {
		problems = append(problems, "task_id is required")
	}
	if t.Prompt == "" {
		problems = append(problems, "prompt is required")
	}
	if t.TimeoutSeconds < 0 {
		problems = append(problems, "timeout_seconds must not be negative")
	}
	for i, c := range t.SuccessCriteria {
		if GetChecker(c.Type) == nil {
			problems = append(problems, fmt.Sprintf("success_criteria[%d]: unknown type %q", i, c.Type))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid task %q: %s", t.TaskID, strings.Join(problems, "; "))
	}
	return nil
}

// LoadTask reads and validates a single YAML task definition.
func LoadTask(path string) (Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, fmt.Errorf("read task %s: %w", path, err)
	}
	var task Task
	if err := yaml.Unmarshal(data, &task); err != nil {
		return Task{}, fmt.Errorf("parse task %s: %w", path, err)
	}
	if err := task.Validate(); err != nil {
		return Task{}, err
	}
	return task, nil
}

// LoadTasks discovers task files under dir matching pattern (for
// example "**/*.yaml") and loads them all. Invalid files abort the
// load; a benchmark suite with silently missing tasks is worse than an
// error.
func LoadTasks(dir, pattern string) ([]Task, error) {
	if pattern == "" {
		pattern = "**/*.yaml"
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob tasks %s/%s: %w", dir, pattern, err)
	}

	var tasks []Task
	for _, match := range matches {
		task, err := LoadTask(filepath.Join(dir, match))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// CheckerFunc evaluates one criterion against the final graph.
type CheckerFunc func(g *ax.Graph, c Criterion) error

var checkers = map[string]CheckerFunc{
	"element_exists": checkElementExists,
	"app_frontmost":  checkAppFrontmost,
	"min_elements":   checkMinElements,
}

// GetChecker returns the checker for a criterion type, or nil.
func GetChecker(typ string) CheckerFunc {
	return checkers[typ]
}

// CheckCriteria evaluates all of a task's criteria and returns the
// per-criterion failures.
func CheckCriteria(g *ax.Graph, criteria []Criterion) []error {
	var failures []error
	for _, c := range criteria {
		checker := GetChecker(c.Type)
		if checker == nil {
			failures = append(failures, fmt.Errorf("unknown criterion type %q", c.Type))
			continue
		}
		if err := checker(g, c); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

func checkElementExists(g *ax.Graph, c Criterion) error {
	needle := strings.ToLower(c.Text)
	for _, el := range g.Elements {
		if c.Role != "" && el.Role != c.Role {
			continue
		}
		if needle == "" ||
			strings.Contains(strings.ToLower(el.Label), needle) ||
			strings.Contains(strings.ToLower(el.Title), needle) ||
			strings.Contains(strings.ToLower(el.Value), needle) {
			return nil
		}
	}
	return fmt.Errorf("no element with role %q matching %q", c.Role, c.Text)
}

func checkAppFrontmost(g *ax.Graph, c Criterion) error {
	if !strings.EqualFold(g.ActiveApplication, c.App) {
		return fmt.Errorf("frontmost application is %q, want %q", g.ActiveApplication, c.App)
	}
	return nil
}

func checkMinElements(g *ax.Graph, c Criterion) error {
	if len(g.Elements) < c.Min {
		return fmt.Errorf("graph has %d elements, want at least %d", len(g.Elements), c.Min)
	}
	return nil
}
