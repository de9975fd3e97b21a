package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/agently/agently/internal/logging"
)

// exchangeRequest is the envelope written into the exchange directory.
type exchangeRequest struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"` // "plan", "recovery", "verify"
	Payload json.RawMessage `json:"payload"`
}

// FileExchange is the drop-box transport: requests are written into a
// shared directory as request-<id>.json and a long-running external
// planner answers with response-<id>.json. Useful when the reasoning
// process is a daemon rather than a per-call executable.
type FileExchange struct {
	dir     string
	timeout time.Duration
}

// NewFileExchange creates a file-exchange planner client rooted at dir.
func NewFileExchange(dir string, timeout time.Duration) (*FileExchange, error) {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("planner: create exchange dir: %w", err)
	}
	return &FileExchange{dir: dir, timeout: timeout}, nil
}

// Plan requests an initial plan through the exchange directory.
func (f *FileExchange) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	out, err := f.roundTrip(ctx, "plan", req)
	if err != nil {
		return nil, err
	}
	return parsePlan(out)
}

// PlanRecovery requests a recovery plan through the exchange directory.
func (f *FileExchange) PlanRecovery(ctx context.Context, req RecoveryRequest) (*Plan, error) {
	out, err := f.roundTrip(ctx, "recovery", req)
	if err != nil {
		return nil, err
	}
	return parsePlan(out)
}

// Verify requests verification through the exchange directory.
func (f *FileExchange) Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	out, err := f.roundTrip(ctx, "verify", req)
	if err != nil {
		return nil, err
	}
	var result VerificationResult
	if err := json.Unmarshal(stripFences(out), &result); err != nil {
		return nil, fmt.Errorf("%w: unparsable verification response: %v", ErrContract, err)
	}
	return &result, nil
}

// roundTrip writes the request file and blocks until the matching
// response file appears or the timeout fires.
func (f *FileExchange) roundTrip(ctx context.Context, kind string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("planner: marshal %s request: %w", kind, err)
	}
	id := uuid.NewString()
	env, err := json.Marshal(exchangeRequest{ID: id, Kind: kind, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("planner: marshal envelope: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("planner: create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(f.dir); err != nil {
		return nil, fmt.Errorf("planner: watch exchange dir: %w", err)
	}

	reqPath := filepath.Join(f.dir, fmt.Sprintf("request-%s.json", id))
	respPath := filepath.Join(f.dir, fmt.Sprintf("response-%s.json", id))

	// Write atomically so the peer never reads a partial request.
	tmp := reqPath + ".tmp"
	if err := os.WriteFile(tmp, env, 0644); err != nil {
		return nil, fmt.Errorf("planner: write request: %w", err)
	}
	if err := os.Rename(tmp, reqPath); err != nil {
		return nil, fmt.Errorf("planner: publish request: %w", err)
	}
	defer os.Remove(reqPath)

	logging.Debug("planner exchange request published", "kind", kind, "id", id)

	// Poll once per second as a safety net; fsnotify can miss files
	// created in the window before the watcher was registered.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if data, ok := readResponse(respPath); ok {
			return data, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: no response for %s request %s within %s", ErrContract, kind, id, f.timeout)
		case event := <-watcher.Events:
			if event.Name != respPath {
				continue
			}
		case <-ticker.C:
		case err := <-watcher.Errors:
			logging.Warn("exchange watcher error", "error", err)
		}
	}
}

// readResponse reads and removes a complete response file.
func readResponse(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	os.Remove(path)
	return data, true
}
