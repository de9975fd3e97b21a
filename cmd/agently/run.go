package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/agently/agently/internal/logging"
	"github.com/agently/agently/pkg/agent"
)

// handleRun implements `agently run [--config=path] [--timeout=secs]
// [--json] <task...>`.
func handleRun(args []string) error {
	task := strings.Join(positional(args), " ")
	if task == "" {
		return fmt.Errorf("usage: agently run [options] <task description>")
	}

	a, err := newApp(configPath(args), args)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, arg := range args {
		if v, ok := flagValue(arg, "--timeout="); ok {
			secs, err := strconv.Atoi(v)
			if err != nil || secs <= 0 {
				return fmt.Errorf("invalid --timeout %q", v)
			}
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
			defer cancel()
		}
	}

	result, runErr := a.controller.RunTask(ctx, task)
	if result != nil {
		a.rememberEpisode(ctx, task, result)
		printResult(result, hasFlag(args, "--json"))
	}
	if runErr != nil && !errors.Is(runErr, agent.ErrTaskFailed) {
		return runErr
	}
	if runErr != nil {
		os.Exit(1)
	}
	return nil
}

// rememberEpisode saves the run to episodic memory when enabled.
func (a *app) rememberEpisode(ctx context.Context, task string, result *agent.Result) {
	if a.memStore == nil {
		return
	}
	g, err := a.builder.Build(ctx)
	if err != nil {
		logging.Warn("memory snapshot failed", "error", err)
		return
	}
	snapID, err := a.memStore.SaveSnapshot(g)
	if err != nil {
		logging.Warn("memory snapshot save failed", "error", err)
		return
	}
	if err := a.memStore.RecordEpisode(task, snapID, result.Outcomes); err != nil {
		logging.Warn("memory episode save failed", "error", err)
	}
}

func printResult(result *agent.Result, asJSON bool) {
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
		return
	}

	fmt.Printf("run %s: %s\n", result.RunID, result.State)
	if result.Reason != "" {
		fmt.Printf("  %s\n", result.Reason)
	}
	for i, o := range result.Outcomes {
		status := "ok"
		if !o.Success {
			status = "FAILED: " + o.ErrorMessage
		}
		fmt.Printf("  %2d. %-12s %-40s %s (%.0fms)\n",
			i+1, o.Intent.Kind, truncate(o.Intent.Description, 40), status,
			float64(o.ExecutionTime)/float64(time.Millisecond))
	}
}

// truncate shortens s to n runes, ending in an ellipsis. Counting runes
// keeps multibyte text from being cut mid-character.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
