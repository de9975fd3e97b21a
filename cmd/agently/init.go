package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/agently/agently/internal/config"
)

// handleInit implements `agently init [--force]`: writes the default
// config to .agently/config.yaml so the knobs are discoverable.
func handleInit(args []string) error {
	dir := ".agently"
	path := filepath.Join(dir, "config.yaml")

	if _, err := os.Stat(path); err == nil && !hasFlag(args, "--force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Edit it to point at your planner, then check the environment with:")
	fmt.Println("  agently preflight")
	return nil
}
