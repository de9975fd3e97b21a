package planner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/intent"
)

// respondOnce polls the exchange dir for the next request file and
// writes the paired response, standing in for the external planner
// daemon.
func respondOnce(t *testing.T, dir string, respond func(req exchangeRequest) any) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return
			}
			for _, entry := range entries {
				name := entry.Name()
				if !strings.HasPrefix(name, "request-") || !strings.HasSuffix(name, ".json") {
					continue
				}
				data, err := os.ReadFile(filepath.Join(dir, name))
				if err != nil || len(data) == 0 {
					continue
				}
				var req exchangeRequest
				if err := json.Unmarshal(data, &req); err != nil {
					continue
				}
				resp, _ := json.Marshal(respond(req))
				respPath := filepath.Join(dir, "response-"+req.ID+".json")
				tmp := respPath + ".tmp"
				os.WriteFile(tmp, resp, 0644)
				os.Rename(tmp, respPath)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
}

func TestFileExchangePlanRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fx, err := NewFileExchange(dir, 5*time.Second)
	if err != nil {
		t.Fatalf("NewFileExchange: %v", err)
	}

	respondOnce(t, dir, func(req exchangeRequest) any {
		if req.Kind != "plan" {
			t.Errorf("request kind = %q", req.Kind)
		}
		var pr PlanRequest
		if err := json.Unmarshal(req.Payload, &pr); err != nil {
			t.Errorf("payload: %v", err)
		}
		if pr.Task != "open notes" {
			t.Errorf("task = %q", pr.Task)
		}
		return Plan{
			Reasoning:  "activate the app",
			Actions:    []intent.Intent{{Kind: intent.KindClick, TargetElementID: "ax-7"}},
			Confidence: 0.75,
		}
	})

	plan, err := fx.Plan(context.Background(), PlanRequest{
		Task:  "open notes",
		Graph: &ax.Graph{Elements: map[string]ax.Element{}},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].TargetElementID != "ax-7" {
		t.Errorf("plan = %+v", plan)
	}

	// Both exchange files must be cleaned up after the round trip.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("leftover exchange files: %v", entries)
	}
}

func TestFileExchangeVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fx, err := NewFileExchange(dir, 5*time.Second)
	if err != nil {
		t.Fatalf("NewFileExchange: %v", err)
	}

	respondOnce(t, dir, func(req exchangeRequest) any {
		return VerificationResult{Success: true, Confidence: 0.9}
	})

	result, err := fx.Verify(context.Background(), VerifyRequest{
		Task:     "t",
		Executed: intent.Intent{Kind: intent.KindClick},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestFileExchangeTimesOutWithoutResponder(t *testing.T) {
	fx, err := NewFileExchange(t.TempDir(), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("NewFileExchange: %v", err)
	}

	_, err = fx.Plan(context.Background(), PlanRequest{Task: "t", Graph: &ax.Graph{}})
	if !errors.Is(err, ErrContract) {
		t.Errorf("err = %v, want ErrContract", err)
	}
}
