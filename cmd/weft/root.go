package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/weft-ai/weft/internal/config"
)

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Autonomous task execution engine",
	Long: `Weft compiles agent workflows into dependency-ordered execution trees
and runs them: independent agents execute concurrently, dependent agents
wait for their prerequisites, and every agent shares one task memory.

Core capabilities:
- Compiles dependency graphs into staged execution trees
- Runs independent agents in parallel with a barrier between stages
- Retries transient agent failures with linear backoff
- Routes tool calls between builtin code and LLM function calling
- Bounds shared memory via summarization, splicing, and trimming
- Captures restorable snapshots of running tasks`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a config file (defaults to XDG lookup)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFromPath(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if flagDebug {
		cfg.Debug = true
	}
	return cfg, nil
}

// debugLogger returns the debug log function for components, or nil when
// debug logging is off.
func debugLogger(cfg *config.Config) func(format string, args ...any) {
	if !cfg.Debug && os.Getenv("WEFT_DEBUG") == "" {
		return nil
	}
	return func(format string, args ...any) {
		log.Printf(format, args...)
	}
}

func main() {
	Execute()
}
