package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func main() {
	// Planner processes inherit the environment; .env is where API keys
	// for the reasoning backend usually live.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = handleRun(os.Args[2:])
	case "snapshot":
		err = handleSnapshot(os.Args[2:])
	case "repl":
		err = handleREPL(os.Args[2:])
	case "bench":
		err = handleBench(os.Args[2:])
	case "init":
		err = handleInit(os.Args[2:])
	case "preflight":
		err = handlePreflight(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("agently — semantic UI automation agent")
	fmt.Println()
	fmt.Println("Usage: agently <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run <task...>     Run a natural-language task to completion")
	fmt.Println("  snapshot          Build an accessibility snapshot and print it as JSON")
	fmt.Println("  repl              Interactive shell for snapshots and single intents")
	fmt.Println("  bench             Run a benchmark task suite")
	fmt.Println("  init              Write a default config to .agently/config.yaml")
	fmt.Println("  preflight         Check platform permissions and dependencies")
	fmt.Println("  help              Show this help")
	fmt.Println()
	fmt.Println("Common options:")
	fmt.Println("  --config=<path>   Config file (default .agently/config.yaml)")
	fmt.Println("  --inspector       Serve the inspector UI while running")
}

func configPath(args []string) string {
	for _, arg := range args {
		if v, ok := flagValue(arg, "--config="); ok {
			return v
		}
	}
	return filepath.Join(".agently", "config.yaml")
}

func flagValue(arg, prefix string) (string, bool) {
	if len(arg) > len(prefix) && arg[:len(prefix)] == prefix {
		return arg[len(prefix):], true
	}
	return "", false
}

func hasFlag(args []string, name string) bool {
	for _, arg := range args {
		if arg == name {
			return true
		}
	}
	return false
}

// positional returns the arguments that are not --flags.
func positional(args []string) []string {
	var out []string
	for _, arg := range args {
		if len(arg) >= 2 && arg[:2] == "--" {
			continue
		}
		out = append(out, arg)
	}
	return out
}
