package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agently/agently/internal/bench"
)

// handleBench implements `agently bench [--dir=tasks] [--pattern=glob]
// [--results=path]`.
func handleBench(args []string) error {
	dir := "tasks"
	pattern := ""
	resultsPath := ""
	for _, arg := range args {
		if v, ok := flagValue(arg, "--dir="); ok {
			dir = v
		}
		if v, ok := flagValue(arg, "--pattern="); ok {
			pattern = v
		}
		if v, ok := flagValue(arg, "--results="); ok {
			resultsPath = v
		}
	}

	tasks, err := bench.LoadTasks(dir, pattern)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no benchmark tasks found under %s", dir)
	}

	a, err := newApp(configPath(args), args)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := bench.NewRunner(a.controller, a.builder)
	results, summary := runner.RunSuite(ctx, tasks)

	for _, res := range results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Printf("%s  %-24s %2d intents  %8s\n", status, res.TaskID, res.IntentCount, res.Duration.Round(1e7))
		for _, failure := range res.CriteriaFailed {
			fmt.Printf("      criterion: %s\n", failure)
		}
		if res.Error != "" {
			fmt.Printf("      error: %s\n", res.Error)
		}
	}
	fmt.Printf("\n%d/%d passed in %s\n", summary.Passed, summary.Total, summary.Duration.Round(1e7))

	if resultsPath != "" {
		data, err := json.MarshalIndent(map[string]any{
			"summary": summary,
			"results": results,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		if err := os.WriteFile(resultsPath, data, 0644); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}

	if summary.Failed > 0 {
		os.Exit(1)
	}
	return nil
}
