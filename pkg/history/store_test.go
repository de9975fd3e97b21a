package history

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.BeginRun("run-1", "open calculator"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].State != "running" {
		t.Fatalf("runs = %+v, want one running run", runs)
	}
	if runs[0].Task != "open calculator" {
		t.Errorf("task = %q", runs[0].Task)
	}

	if err := s.FinishRun("run-1", "completed"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	runs, _ = s.Runs()
	if runs[0].State != "completed" {
		t.Errorf("state = %q, want completed", runs[0].State)
	}
	if runs[0].EndedAt.IsZero() {
		t.Error("EndedAt not set")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	if err := s.FinishRun("nope", "failed"); err == nil {
		t.Error("expected error finishing unknown run")
	}
}

func TestAppendOrdering(t *testing.T) {
	s := openTestStore(t)
	if err := s.BeginRun("run-1", "task"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	kinds := []string{KindPlan, KindOutcome, KindSnapshot, KindVerification, KindRecovery}
	for i, kind := range kinds {
		if err := s.Append("run-1", kind, map[string]any{"i": i}); err != nil {
			t.Fatalf("Append %s: %v", kind, err)
		}
	}

	records, err := s.Records("run-1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != len(kinds) {
		t.Fatalf("record count = %d, want %d", len(records), len(kinds))
	}
	for i, rec := range records {
		if rec.Kind != kinds[i] {
			t.Errorf("record %d kind = %s, want %s", i, rec.Kind, kinds[i])
		}
		if rec.Seq != uint64(i+1) {
			t.Errorf("record %d seq = %d, want %d", i, rec.Seq, i+1)
		}
		if rec.Timestamp.IsZero() {
			t.Errorf("record %d missing timestamp", i)
		}
	}
}

func TestRecordsUnknownRun(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Records("missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}
