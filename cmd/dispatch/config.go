package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kelhray/dispatch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("User config:    %s\n", config.GetUserConfigPath())
		if project := config.GetProjectConfigPath(); project != "" {
			fmt.Printf("Project config: %s\n", project)
		}
		fmt.Println()
		fmt.Printf("store.backend         %s\n", cfg.Store.Backend)
		if cfg.Store.Backend == "postgres" {
			fmt.Printf("store.dsn             %s\n", redactDSN(cfg.Store.DSN))
		} else if cfg.Store.Path != "" {
			fmt.Printf("store.path            %s\n", cfg.Store.Path)
		}
		fmt.Printf("gateway.url           %s\n", cfg.Gateway.URL)
		fmt.Printf("gateway.timeout       %s\n", cfg.Gateway.Timeout)
		fmt.Printf("monitor.poll_interval %s\n", cfg.Monitor.PollInterval)
		fmt.Printf("health.threshold      %s\n", cfg.Health.Threshold)
		fmt.Printf("health.sweep_interval %s\n", cfg.Health.SweepInterval)
		fmt.Printf("queue.drain_interval  %s\n", cfg.Queue.DrainInterval)
		fmt.Printf("report.interval       %s\n", cfg.Report.Interval)
		fmt.Printf("http.addr             %s\n", cfg.HTTP.Addr)
		fmt.Printf("log.level             %s\n", cfg.Log.Level)
		return nil
	},
}

// redactDSN hides credentials embedded in a connection string.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	return "(set, redacted)"
}
