package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weft-ai/weft/internal/agents"
	"github.com/weft-ai/weft/internal/config"
	"github.com/weft-ai/weft/internal/decision"
	"github.com/weft-ai/weft/internal/executor"
	"github.com/weft-ai/weft/internal/graph"
	"github.com/weft-ai/weft/internal/llm"
	"github.com/weft-ai/weft/internal/registry"
	"github.com/weft-ai/weft/internal/runner"
	sig "github.com/weft-ai/weft/internal/signal"
	"github.com/weft-ai/weft/internal/snapshot"
	"github.com/weft-ai/weft/internal/tool"
)

var (
	runParams      []string
	runSequential  bool
	runNoSnapshots bool
	runSnapshotDB  string
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Run a workflow",
	Long: `Run a workflow definition from a YAML file.

The workflow's agents are compiled into a dependency-ordered execution
tree. Independent agents run concurrently; an agent with dependencies
waits until every prerequisite stage settles. All agents share one task
memory, so later agents see the output of earlier ones.

Agent types:
  llm    Runs the agent's task as a prompt against the configured model
  tool   Executes the agent's bound tool call via the decision engine

Use --param key=value to overlay task variables for this run; pass
--sequential to disable concurrent execution within a stage.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "Task variable override, key=value (repeatable)")
	runCmd.Flags().BoolVar(&runSequential, "sequential", false, "Run parallel stages one agent at a time")
	runCmd.Flags().BoolVar(&runNoSnapshots, "no-snapshots", false, "Disable snapshot capture")
	runCmd.Flags().StringVar(&runSnapshotDB, "snapshot-db", "", "Snapshot database path (defaults to the XDG data dir)")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	debugLog := debugLogger(cfg)

	workflow, err := loadWorkflow(args[0])
	if err != nil {
		return err
	}

	params, err := parseParams(runParams)
	if err != nil {
		return err
	}
	if runSequential {
		params["agentParallel"] = false
	}

	if !cfg.Provider.UseAWSBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return fmt.Errorf("%w (set ANTHROPIC_API_KEY or provider.api_key)", err)
		}
		cfg.Provider.APIKey = key
		if debugLog != nil {
			debugLog("[weft] using API key %s (source: %s)", config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
		}
	}

	provider, err := llm.NewAnthropicProvider(cfg.Provider.Anthropic())
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	tracker := llm.NewTokenTracker()

	tools := tool.NewRegistry()
	if err := registerBuiltins(tools); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}
	engine := decision.NewEngine(tools, provider, cfg.Decision)
	if debugLog != nil {
		engine.SetDebugLog(debugLog)
	}

	reg := registry.New()
	if err := reg.Register(agents.TypeLLM, agents.NewLLMAgent(provider, tracker)); err != nil {
		return err
	}
	if err := reg.Register(agents.TypeTool, agents.NewToolAgent(engine)); err != nil {
		return err
	}

	compiler := graph.NewCompiler()
	run := runner.New(reg, cfg.Runner)
	exec := executor.New(compiler, run, provider, cfg.Memory)
	if debugLog != nil {
		compiler.SetDebugLog(debugLog)
		exec.SetDebugLog(debugLog)
	}

	if !runNoSnapshots {
		dbPath := runSnapshotDB
		if dbPath == "" {
			dbPath = snapshot.DefaultStorePath()
		}
		store, err := snapshot.OpenStore(dbPath)
		if err != nil {
			fmt.Printf("Warning: snapshot store unavailable: %v\n", err)
		} else {
			defer store.Close()
			exec.SetSnapshots(snapshot.NewManager(cfg.Snapshot, store))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupts and the stop signal file both cancel the run.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	workDir, _ := os.Getwd()
	watcher, err := sig.NewWatcher(sig.DefaultSignalsDir(workDir))
	if err == nil {
		defer watcher.Close()
		watcher.OnStop(cancel)
	}

	unsubscribe := exec.Bus().Subscribe(printEvent)
	defer unsubscribe()

	result := exec.Execute(ctx, workflow, params)

	fmt.Println()
	if tracker.Calls() > 0 {
		input, output := tracker.Total()
		fmt.Printf("Tokens: %d in / %d out across %d calls\n", input, output, tracker.Calls())
	}
	if !result.Success {
		return fmt.Errorf("workflow failed: %s", result.Error)
	}
	if result.Output != "" {
		fmt.Printf("\n%s\n", result.Output)
	}
	return nil
}

// printEvent renders one execution event to stdout.
func printEvent(ev executor.Event) {
	switch ev.Type {
	case executor.EventWorkflowStart:
		fmt.Printf("%s %s\n", color.CyanString("▶"), ev.Message)
	case executor.EventAgentStart:
		fmt.Printf("%s %s started\n", color.CyanString("→"), agentLabel(ev))
	case executor.EventAgentCompleted:
		fmt.Printf("%s %s completed in %s\n", color.GreenString("✓"), agentLabel(ev), ev.Duration.Round(10*time.Millisecond))
	case executor.EventAgentFailed:
		fmt.Printf("%s %s failed: %s\n", color.RedString("✗"), agentLabel(ev), ev.Error)
	case executor.EventWorkflowCompleted:
		fmt.Printf("%s workflow completed in %s\n", color.GreenString("✓"), ev.Duration.Round(10*time.Millisecond))
	case executor.EventWorkflowFailed:
		fmt.Printf("%s workflow failed: %s\n", color.RedString("✗"), ev.Error)
	}
}

func agentLabel(ev executor.Event) string {
	if ev.AgentName != "" && ev.AgentName != ev.AgentID {
		return fmt.Sprintf("%s (%s)", ev.AgentName, ev.AgentID)
	}
	return ev.AgentID
}

// parseParams converts key=value flags into a variable map. Values true
// and false become booleans so flags like agentParallel work naturally.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", pair)
		}
		switch value {
		case "true":
			params[key] = true
		case "false":
			params[key] = false
		default:
			params[key] = value
		}
	}
	return params, nil
}
