package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/intent"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testGraph(ids ...string) *ax.Graph {
	g := &ax.Graph{Elements: map[string]ax.Element{}, Timestamp: time.Now()}
	for _, id := range ids {
		g.Elements[id] = ax.Element{ID: id, Role: "AXButton"}
	}
	return g
}

func TestSaveSnapshotDedup(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.SaveSnapshot(testGraph("a", "b"))
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	id2, err := s.SaveSnapshot(testGraph("b", "a"))
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if id1 != id2 {
		t.Errorf("identical graphs stored twice: %d vs %d", id1, id2)
	}

	id3, err := s.SaveSnapshot(testGraph("a", "b", "c"))
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if id3 == id1 {
		t.Error("different graph deduplicated against earlier snapshot")
	}
}

func TestRecordAndQueryEpisodes(t *testing.T) {
	s := openTestStore(t)

	snapID, err := s.SaveSnapshot(testGraph("a"))
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	outcomes := []intent.Outcome{
		intent.Succeeded(intent.Intent{Kind: intent.KindClick}, 120*time.Millisecond),
		intent.Failed(intent.Intent{Kind: intent.KindType}, nil, 80*time.Millisecond),
	}
	if err := s.RecordEpisode("open the calculator", snapID, outcomes); err != nil {
		t.Fatalf("RecordEpisode: %v", err)
	}

	episodes, err := s.SimilarEpisodes("calculator", 10)
	if err != nil {
		t.Fatalf("SimilarEpisodes: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("episode count = %d, want 1", len(episodes))
	}
	if episodes[0].SuccessRate != 0.5 {
		t.Errorf("success rate = %v, want 0.5", episodes[0].SuccessRate)
	}

	none, err := s.SimilarEpisodes("spreadsheet", 10)
	if err != nil {
		t.Fatalf("SimilarEpisodes: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unexpected matches: %+v", none)
	}
}

func TestChecksumOrderIndependent(t *testing.T) {
	a := Checksum(testGraph("x", "y", "z"))
	b := Checksum(testGraph("z", "y", "x"))
	if a != b {
		t.Error("checksum depends on map iteration order")
	}
	c := Checksum(testGraph("x", "y"))
	if a == c {
		t.Error("different graphs share a checksum")
	}
}
