package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// handleSnapshot implements `agently snapshot [--config=path]
// [--output=path]`. It builds one bounded snapshot and prints the graph
// as JSON.
func handleSnapshot(args []string) error {
	a, err := newApp(configPath(args), args)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SnapshotTimeout())
	defer cancel()

	g, err := a.builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	for _, arg := range args {
		if path, ok := flagValue(arg, "--output="); ok {
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			fmt.Fprintf(os.Stderr, "wrote %d elements to %s\n", len(g.Elements), path)
			return nil
		}
	}

	fmt.Println(string(data))
	fmt.Fprintf(os.Stderr, "%d elements, frontmost %q\n", len(g.Elements), g.ActiveApplication)
	return nil
}
