package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agently/agently/internal/inspector"
	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/events"
)

type stubBuilder struct {
	graph *ax.Graph
	err   error
}

func (b *stubBuilder) Build(ctx context.Context) (*ax.Graph, error) {
	return b.graph, b.err
}

func TestGraphPublisherMirrorsBuildsToInspector(t *testing.T) {
	srv := inspector.New(events.NewMemoryBus(), nil)
	g := &ax.Graph{Elements: map[string]ax.Element{"ax-1": {ID: "ax-1"}}}
	pub := &graphPublisher{builder: &stubBuilder{graph: g}, srv: srv}

	built, err := pub.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built != g {
		t.Fatal("publisher rewrote the graph")
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/graph", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/api/graph status = %d, want 200 after a build", rec.Code)
	}
}

func TestGraphPublisherSkipsFailedBuilds(t *testing.T) {
	srv := inspector.New(events.NewMemoryBus(), nil)
	pub := &graphPublisher{builder: &stubBuilder{err: errors.New("provider gone")}, srv: srv}

	if _, err := pub.Build(context.Background()); err == nil {
		t.Fatal("Build swallowed the error")
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/graph", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/api/graph status = %d, want 404 after a failed build", rec.Code)
	}
}
