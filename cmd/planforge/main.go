// Package main provides the planforge binary entry point.
// PlanForge turns hackathon project ideas into structured, dependency-ordered
// plans: functions, tasks, quality-checked graphs, and hands-on guides.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/planforge/planforge/llm/providers"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "planforge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Hackathon project planning engine",
		Long: `PlanForge structures free-form project ideas into executable plans.

It provides:
- Function structuring: requirement text to categorized, prioritized functions
- Task generation: functions to a dependency-ordered task graph
- Quality loop: evaluate and improve the task graph until acceptable
- Hands-on guides: per-task implementation guides with web-grounded context
- Technology recommendations per decision domain

State lives in a relational store (SQLite or Postgres); lifecycle events
publish to NATS when configured.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		structureCmd(&configPath),
		tasksCmd(&configPath),
		qualityCmd(&configPath),
		handsOnCmd(&configPath),
		recommendCmd(&configPath),
		serveCmd(&configPath),
		versionCmd(),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
