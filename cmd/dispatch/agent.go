package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kelhray/dispatch/pkg/models"
)

var (
	agentCapabilities []string
	agentMaxTasks     int
	agentTaskTypes    []string
	agentListStatus   string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage the agent fleet",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a new agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentRegister,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE:  runAgentList,
}

var agentDeregisterCmd = &cobra.Command{
	Use:   "deregister <agent-id>",
	Short: "Remove an agent from the fleet",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentDeregister,
}

func init() {
	agentRegisterCmd.Flags().StringSliceVar(&agentCapabilities, "caps", nil, "Comma-separated capabilities (code, bugfix, review, deploy, research, documentation, test, maintenance, fullstack)")
	agentRegisterCmd.Flags().IntVar(&agentMaxTasks, "max-tasks", 1, "Maximum concurrent tasks")
	agentRegisterCmd.Flags().StringSliceVar(&agentTaskTypes, "types", nil, "Restrict accepted task types (default: all matching capabilities)")

	agentListCmd.Flags().StringVar(&agentListStatus, "status", "", "Filter by status")

	agentCmd.AddCommand(agentRegisterCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentDeregisterCmd)
}

func runAgentRegister(cmd *cobra.Command, args []string) error {
	types := make([]models.TaskType, 0, len(agentTaskTypes))
	for _, t := range agentTaskTypes {
		types = append(types, models.TaskType(t))
	}

	var agent models.Agent
	err := newAPIClient().post("/agents", map[string]interface{}{
		"name":         args[0],
		"capabilities": agentCapabilities,
		"config": models.AgentConfig{
			MaxConcurrentTasks: agentMaxTasks,
			TaskTypes:          types,
		},
	}, &agent)
	if err != nil {
		return err
	}
	color.Green("Registered agent %s (%s)", agent.ID, agent.Name)
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Agents []*models.Agent `json:"agents"`
	}
	path := "/agents"
	if agentListStatus != "" {
		path += "?status=" + url.QueryEscape(agentListStatus)
	}
	if err := newAPIClient().get(path, &resp); err != nil {
		return err
	}
	if len(resp.Agents) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCAPABILITIES\tDONE\tSUCCESS\tCURRENT TASK")
	for _, a := range resp.Agents {
		caps := make([]string, 0, len(a.Capabilities))
		for _, c := range a.Capabilities {
			caps = append(caps, string(c))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.1f%%\t%s\n",
			a.ID, a.Name, colorAgentStatus(a.Status), strings.Join(caps, ","),
			a.TasksCompleted, a.SuccessRate, dash(a.CurrentTaskID))
	}
	return w.Flush()
}

func runAgentDeregister(cmd *cobra.Command, args []string) error {
	if err := newAPIClient().do(http.MethodDelete, "/agents/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	color.Yellow("Deregistered agent %s", args[0])
	return nil
}

func colorAgentStatus(s models.AgentStatus) string {
	switch s {
	case models.AgentStatusIdle:
		return color.GreenString(string(s))
	case models.AgentStatusBusy:
		return color.CyanString(string(s))
	case models.AgentStatusOffline:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}
