package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// TaskItem is one task record in task responses.
type TaskItem struct {
	TaskID       string `json:"task_id"`
	KnowledgeID  string `json:"knowledge_id"`
	SpaceID      string `json:"space_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// TaskListResponse is the paginated task list response.
type TaskListResponse struct {
	Items    []TaskItem `json:"items"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// TaskCmd creates the task command group.
func TaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and control ingestion tasks",
	}

	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskGetCmd())
	cmd.AddCommand(taskRestartCmd())
	cmd.AddCommand(taskCancelCmd())

	return cmd
}

func taskListCmd() *cobra.Command {
	var (
		page     int
		pageSize int
		status   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in the current space",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runTaskList(page, pageSize, status, outputJSON)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Items per page")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, success, failed, canceled)")

	return cmd
}

func runTaskList(page, pageSize int, status string, outputJSON bool) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("eq.space_id", config.SpaceID)
	if status != "" {
		query.Set("eq.status", status)
	}

	resp, err := api.Get("/tasks?" + query.Encode())
	if err != nil {
		return fmt.Errorf("task list failed: %w", err)
	}

	var listResp TaskListResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse task list: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(listResp.Items) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	fmt.Printf("Tasks (page %d, %d total):\n", listResp.Page, listResp.Total)
	for _, task := range listResp.Items {
		line := fmt.Sprintf("  %s: %s (knowledge %s)", task.TaskID, task.Status, task.KnowledgeID)
		if task.ErrorMessage != "" {
			line += " - " + task.ErrorMessage
		}
		fmt.Println(line)
	}

	return nil
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runTaskGet(args[0], outputJSON)
		},
	}
}

func runTaskGet(taskID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get("/tasks/" + taskID)
	if err != nil {
		return fmt.Errorf("task get failed: %w", err)
	}

	var task TaskItem
	if err := json.Unmarshal(resp.Data, &task); err != nil {
		return fmt.Errorf("failed to parse task: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(task, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("ID:        %s\n", task.TaskID)
	fmt.Printf("Knowledge: %s\n", task.KnowledgeID)
	fmt.Printf("Space:     %s\n", task.SpaceID)
	fmt.Printf("Status:    %s\n", task.Status)
	if task.ErrorMessage != "" {
		fmt.Printf("Error:     %s\n", task.ErrorMessage)
	}
	fmt.Printf("Created:   %s\n", task.CreatedAt)
	fmt.Printf("Updated:   %s\n", task.UpdatedAt)

	return nil
}

func taskRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <task-id> [task-id...]",
		Short: "Restart failed or canceled tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskAction("/tasks/restart", "restarted", args)
		},
	}
}

func taskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id> [task-id...]",
		Short: "Cancel waiting or running tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskAction("/tasks/cancel", "canceled", args)
		},
	}
}

func runTaskAction(path, verb string, taskIDs []string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	if _, err := api.Post(path, map[string][]string{"task_ids": taskIDs}); err != nil {
		return fmt.Errorf("task %s failed: %w", verb, err)
	}

	fmt.Printf("%d task(s) %s\n", len(taskIDs), verb)
	return nil
}
