package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kelhray/dispatch/pkg/models"
)

var (
	taskDescription string
	taskType        string
	taskPriority    string
	taskTags        []string
	taskAutoAssign  bool
	taskListStatus  string
	cancelReason    string
	assignAgentID   string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskGetCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show one task in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskGet,
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <task-id>",
	Short: "Assign a pending task to an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskAssign,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

func init() {
	taskCreateCmd.Flags().StringVarP(&taskDescription, "description", "d", "", "Task description")
	taskCreateCmd.Flags().StringVarP(&taskType, "type", "t", "code", "Task type (code, bugfix, review, deploy, research, documentation, test, maintenance)")
	taskCreateCmd.Flags().StringVarP(&taskPriority, "priority", "p", "medium", "Priority (low, medium, high, critical)")
	taskCreateCmd.Flags().StringSliceVar(&taskTags, "tags", nil, "Comma-separated tags")
	taskCreateCmd.Flags().BoolVar(&taskAutoAssign, "assign", false, "Assign to the best agent immediately")

	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Filter by status")
	taskAssignCmd.Flags().StringVar(&assignAgentID, "agent", "", "Pin the assignment to a specific agent")
	taskCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Cancellation reason")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskAssignCmd)
	taskCmd.AddCommand(taskCancelCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	var task models.Task
	err := newAPIClient().post("/tasks", map[string]interface{}{
		"title":       args[0],
		"description": taskDescription,
		"type":        taskType,
		"priority":    taskPriority,
		"tags":        taskTags,
		"auto_assign": taskAutoAssign,
	}, &task)
	if err != nil {
		return err
	}

	color.Green("Created task %s", task.ID)
	printTask(&task)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Tasks []*models.Task `json:"tasks"`
	}
	path := "/tasks"
	if taskListStatus != "" {
		path += "?status=" + url.QueryEscape(taskListStatus)
	}
	if err := newAPIClient().get(path, &resp); err != nil {
		return err
	}
	if len(resp.Tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tTYPE\tAGENT\tTITLE")
	for _, t := range resp.Tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, colorStatus(t.Status), t.Priority, t.Type, dash(t.AssignedTo), t.Title)
	}
	return w.Flush()
}

func runTaskGet(cmd *cobra.Command, args []string) error {
	var task models.Task
	if err := newAPIClient().get("/tasks/"+url.PathEscape(args[0]), &task); err != nil {
		return err
	}
	printTask(&task)
	return nil
}

func runTaskAssign(cmd *cobra.Command, args []string) error {
	var task models.Task
	err := newAPIClient().post("/tasks/"+url.PathEscape(args[0])+"/assign",
		map[string]string{"agent_id": assignAgentID}, &task)
	if err != nil {
		return err
	}
	if task.Status == models.TaskStatusPending {
		color.Yellow("No agent available, task %s stays queued", task.ID)
		return nil
	}
	color.Green("Task %s is %s on agent %s", task.ID, task.Status, task.AssignedTo)
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	var task models.Task
	err := newAPIClient().post("/tasks/"+url.PathEscape(args[0])+"/cancel",
		map[string]string{"reason": cancelReason}, &task)
	if err != nil {
		return err
	}
	color.Yellow("Task %s cancelled", task.ID)
	return nil
}

func printTask(t *models.Task) {
	fmt.Printf("  Title:    %s\n", t.Title)
	fmt.Printf("  Status:   %s\n", colorStatus(t.Status))
	fmt.Printf("  Type:     %s, priority %s\n", t.Type, t.Priority)
	if t.Description != "" {
		fmt.Printf("  Details:  %s\n", t.Description)
	}
	if len(t.Tags) > 0 {
		fmt.Printf("  Tags:     %s\n", strings.Join(t.Tags, ", "))
	}
	if t.AssignedTo != "" {
		fmt.Printf("  Agent:    %s\n", t.AssignedTo)
	}
	if t.Status == models.TaskStatusInProgress {
		fmt.Printf("  Progress: %d%%\n", t.Progress)
	}
	fmt.Printf("  Created:  %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.CompletedAt != nil {
		fmt.Printf("  Finished: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	if t.Result != nil && t.Result.Summary != "" {
		fmt.Printf("  Result:   %s\n", t.Result.Summary)
	}
	if t.Error != "" {
		fmt.Printf("  Error:    %s\n", color.RedString(t.Error))
	}
}

func colorStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	case models.TaskStatusInProgress, models.TaskStatusAssigned:
		return color.CyanString(string(s))
	case models.TaskStatusCancelled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
