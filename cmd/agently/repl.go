package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/intent"
)

// handleREPL implements `agently repl`: an interactive shell for
// inspecting snapshots and firing single intents without a planner.
func handleREPL(args []string) error {
	a, err := newApp(configPath(args), args)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("agently repl — type 'help' for commands, 'exit' to quit.")
	fmt.Println()

	ctx := context.Background()
	var graph *ax.Graph

	refresh := func() error {
		buildCtx, cancel := context.WithTimeout(ctx, a.cfg.SnapshotTimeout())
		defer cancel()
		g, err := a.builder.Build(buildCtx)
		if err != nil {
			return err
		}
		graph = g
		if a.inspector != nil {
			a.inspector.SetGraph(g)
		}
		fmt.Printf("snapshot: %d elements, frontmost %q\n", len(g.Elements), g.ActiveApplication)
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("agently> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "exit", "quit":
			return nil
		case "help":
			printREPLHelp()
		case "snapshot":
			if err := refresh(); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "apps":
			if graph == nil {
				fmt.Println("no snapshot yet; run 'snapshot' first")
				continue
			}
			printApps(graph)
		case "find":
			if graph == nil {
				fmt.Println("no snapshot yet; run 'snapshot' first")
				continue
			}
			printMatches(graph, rest)
		case "run":
			if rest == "" {
				fmt.Println("usage: run <task description>")
				continue
			}
			result, err := a.controller.RunTask(ctx, rest)
			if result != nil {
				printResult(result, false)
			}
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "click", "doubleclick", "rightclick", "focus":
			fireTargeted(ctx, a, graph, cmd, rest)
		case "type":
			fire(ctx, a, graph, intent.Intent{
				Kind:       intent.KindType,
				Parameters: map[string]any{"text": rest},
			})
		case "key":
			fire(ctx, a, graph, intent.Intent{
				Kind:       intent.KindKeyPress,
				Parameters: map[string]any{"key": rest},
			})
		case "scroll":
			if rest == "" {
				rest = "down"
			}
			fire(ctx, a, graph, intent.Intent{
				Kind:       intent.KindScroll,
				Parameters: map[string]any{"direction": rest},
			})
		default:
			fmt.Printf("unknown command: %s (try 'help')\n", cmd)
		}
	}
	return nil
}

func printREPLHelp() {
	fmt.Println("Commands:")
	fmt.Println("  snapshot             Rebuild the accessibility snapshot")
	fmt.Println("  apps                 List applications in the current snapshot")
	fmt.Println("  find <text>          List elements whose text matches")
	fmt.Println("  click <ref>          Click an element by id or \"<role> '<text>'\"")
	fmt.Println("  doubleclick <ref>    Double-click an element")
	fmt.Println("  rightclick <ref>     Right-click an element")
	fmt.Println("  focus <ref>          Focus an element")
	fmt.Println("  type <text>          Type text into the focused element")
	fmt.Println("  key <chord>          Press a key chord, e.g. cmd+s")
	fmt.Println("  scroll [up|down]     Scroll the frontmost window")
	fmt.Println("  run <task>           Run a full planner-driven task")
	fmt.Println("  exit                 Quit")
}

var kindByREPLCommand = map[string]intent.Kind{
	"click":       intent.KindClick,
	"doubleclick": intent.KindDoubleClick,
	"rightclick":  intent.KindRightClick,
	"focus":       intent.KindFocus,
}

func fireTargeted(ctx context.Context, a *app, g *ax.Graph, cmd, ref string) {
	if ref == "" {
		fmt.Printf("usage: %s <element reference>\n", cmd)
		return
	}
	fire(ctx, a, g, intent.Intent{Kind: kindByREPLCommand[cmd], TargetElementID: ref})
}

func fire(ctx context.Context, a *app, g *ax.Graph, in intent.Intent) {
	if g == nil {
		fmt.Println("no snapshot yet; run 'snapshot' first")
		return
	}
	outcome := a.engine.Execute(ctx, in, g)
	if outcome.Success {
		fmt.Printf("ok (%s)\n", outcome.ExecutionTime)
	} else {
		fmt.Printf("failed: %s\n", outcome.ErrorMessage)
	}
}

func printApps(g *ax.Graph) {
	counts := map[string]int{}
	for _, el := range g.Elements {
		counts[el.ApplicationName]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		marker := " "
		if name == g.ActiveApplication {
			marker = "*"
		}
		fmt.Printf("  %s %-30s %d elements\n", marker, name, counts[name])
	}
}

func printMatches(g *ax.Graph, text string) {
	needle := strings.ToLower(text)
	var matched []ax.Element
	for _, el := range g.Elements {
		if strings.Contains(strings.ToLower(el.Text()), needle) {
			matched = append(matched, el)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if len(matched) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, el := range matched {
		fmt.Printf("  %s  %-16s %q [%s]\n", el.ID, el.Role, truncate(el.Text(), 40), el.ApplicationName)
	}
}
