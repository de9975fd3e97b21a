package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/agently/agently/internal/config"
	"github.com/agently/agently/internal/native"
)

// handlePreflight implements `agently preflight`: checks the platform
// pieces the agent needs before a run can work, and says which ones are
// missing instead of failing mid-task.
func handlePreflight(args []string) error {
	cfg, err := config.LoadConfig(configPath(args))
	if err != nil {
		return err
	}

	ok := true
	check := func(name string, err error, hint string) {
		if err != nil {
			ok = false
			fmt.Printf("FAIL  %-28s %v\n", name, err)
			if hint != "" {
				fmt.Printf("      %s\n", hint)
			}
			return
		}
		fmt.Printf("ok    %s\n", name)
	}

	provider, provErr := native.NewProvider()
	check("scripting bridge", provErr, "install the macOS command line tools; osascript is required")

	if provErr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		apps, err := provider.Applications(ctx)
		if err == nil && len(apps) == 0 {
			err = fmt.Errorf("no applications visible")
		}
		check("accessibility access", err,
			"grant this terminal Accessibility and Automation access in System Settings > Privacy & Security")
	}

	_, synthErr := native.NewSynthesizer()
	check("input synthesis", synthErr, "")

	_, err = exec.LookPath("screencapture")
	check("screen capture", err, "screenshot intents will fail without the screencapture tool")

	if cfg.Planner.UseFileExchange {
		_, err = os.Stat(cfg.Planner.ExchangeDir)
		check("planner exchange dir", err, "create the exchange directory or disable use_file_exchange")
	} else {
		_, err = exec.LookPath(cfg.Planner.Command)
		check("planner command", err,
			fmt.Sprintf("%q not found; set planner.command in the config", cfg.Planner.Command))
	}

	if !ok {
		os.Exit(1)
	}
	fmt.Println("\nall checks passed")
	return nil
}
