package main

import (
	"context"
	"fmt"
	"os"

	"github.com/agently/agently/internal/config"
	"github.com/agently/agently/internal/inspector"
	"github.com/agently/agently/internal/logging"
	"github.com/agently/agently/internal/memory"
	"github.com/agently/agently/internal/native"
	"github.com/agently/agently/internal/sandbox"
	"github.com/agently/agently/pkg/agent"
	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/events"
	"github.com/agently/agently/pkg/exec"
	"github.com/agently/agently/pkg/history"
	"github.com/agently/agently/pkg/planner"
)

// app wires the full stack for one CLI invocation.
type app struct {
	cfg        config.Config
	bus        *events.MemoryBus
	builder    *ax.Builder
	engine     *exec.Engine
	controller *agent.Controller
	histStore  *history.Store
	memStore   *memory.Store
	inspector  *inspector.Server
}

// newApp builds everything below the CLI from the config at path.
// Extra args toggle the inspector.
func newApp(path string, args []string) (*app, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logging.Configure(logging.Level(cfg.LogLevel), os.Stderr)

	provider, err := native.NewProvider()
	if err != nil {
		return nil, fmt.Errorf("accessibility provider: %w", err)
	}
	synth, err := native.NewSynthesizer()
	if err != nil {
		return nil, fmt.Errorf("input synthesizer: %w", err)
	}

	a := &app{cfg: cfg, bus: events.NewMemoryBus()}

	a.builder = ax.NewBuilder(provider, ax.BuilderConfig{
		MaxDepth:                cfg.Snapshot.MaxDepth,
		MaxElements:             cfg.Snapshot.MaxElements,
		Timeout:                 cfg.SnapshotTimeout(),
		SkipLargeContainers:     cfg.Snapshot.SkipLargeContainers,
		LargeContainerThreshold: cfg.Snapshot.LargeContainerThreshold,
		ContainerChildCap:       cfg.Snapshot.ContainerChildCap,
		PruneDepth:              cfg.Snapshot.PruneDepth,
	})

	var sb *sandbox.Sandbox
	if len(cfg.Sandbox.AllowedApps) > 0 || len(cfg.Sandbox.DeniedApps) > 0 {
		sb = sandbox.New(sandbox.Config{
			AllowedApps: cfg.Sandbox.AllowedApps,
			DeniedApps:  cfg.Sandbox.DeniedApps,
		})
	}

	a.engine = exec.New(provider, synth, sb, exec.Config{
		ActivateApplications: cfg.Execution.ActivateApplications,
		ActivationSettle:     cfg.ActivationSettle(),
		TypeDelay:            cfg.TypeDelay(),
		ScreenshotDir:        cfg.Execution.ScreenshotDir,
	})

	client, err := newPlannerClient(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.History.Path != "" {
		a.histStore, err = history.NewStore(cfg.History.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("history store: %w", err)
		}
	}
	if cfg.Memory.Enabled {
		a.memStore, err = memory.NewStore(cfg.Memory.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("memory store: %w", err)
		}
	}

	if cfg.Inspector.Enabled || hasFlag(args, "--inspector") {
		a.inspector = inspector.New(a.bus, a.histStore)
		a.inspector.StartAsync(cfg.Inspector.Port)
		fmt.Fprintf(os.Stderr, "inspector running at http://localhost:%d\n", cfg.Inspector.Port)
	}

	// When the inspector is up, mirror every snapshot the controller
	// builds so /api/graph tracks the run.
	var builder agent.SnapshotBuilder = a.builder
	if a.inspector != nil {
		builder = &graphPublisher{builder: a.builder, srv: a.inspector}
	}

	var recorder agent.Recorder
	if a.histStore != nil {
		recorder = a.histStore
	}
	a.controller = agent.New(builder, a.engine, client, a.bus, recorder, agent.Config{
		MaxConsecutiveFailures: cfg.Agent.MaxConsecutiveFailures,
		SettleDelay:            cfg.SettleDelay(),
		PersistSnapshots:       cfg.Agent.PersistSnapshots,
	})

	return a, nil
}

// graphPublisher forwards successful builds to the inspector.
type graphPublisher struct {
	builder agent.SnapshotBuilder
	srv     *inspector.Server
}

func (g *graphPublisher) Build(ctx context.Context) (*ax.Graph, error) {
	graph, err := g.builder.Build(ctx)
	if err == nil {
		g.srv.SetGraph(graph)
	}
	return graph, err
}

func newPlannerClient(cfg config.Config) (planner.Client, error) {
	if cfg.Planner.UseFileExchange {
		return planner.NewFileExchange(cfg.Planner.ExchangeDir, cfg.PlannerTimeout())
	}
	return planner.NewSubprocess(planner.SubprocessConfig{
		Command: cfg.Planner.Command,
		Args:    cfg.Planner.Args,
		Workdir: cfg.Planner.Workdir,
		Timeout: cfg.PlannerTimeout(),
	})
}

func (a *app) Close() {
	if a.histStore != nil {
		a.histStore.Close()
	}
	if a.memStore != nil {
		a.memStore.Close()
	}
}
