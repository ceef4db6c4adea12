package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kelhray/dispatch/internal/log"
)

// apiURL is the base URL of a running dispatch daemon, used by the client
// subcommands.
var apiURL string

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Task orchestration engine for autonomous agents",
	Long: `Dispatch coordinates a fleet of autonomous agents working through a
prioritized task queue.

Tasks enter the queue via the CLI, the admin API, or issue webhooks. The
engine matches each task to the best capable agent, spawns an execution
session through the gateway, monitors it to completion, and folds the
outcome back into agent performance stats and captured learnings.

Run 'dispatch serve' to start the daemon, then use the task and agent
subcommands against it.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is fine; explicit environment still applies.
		godotenv.Load()
		if level := os.Getenv("LOG_LEVEL"); level != "" {
			log.SetLevel(level)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8710", "Base URL of the dispatch daemon")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
