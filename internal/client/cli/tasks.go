package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/validation"
	pkgapi "github.com/iudanet/pmtool/pkg/api"
)

func (c *Cli) runTasks(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.runListTasks(ctx, "")
	}

	switch args[0] {
	case "list":
		projectID := ""
		if len(args) > 1 {
			projectID = args[1]
		}
		return c.runListTasks(ctx, projectID)
	case "create":
		if len(args) < 3 {
			return fmt.Errorf("missing arguments. Usage: pmctl tasks create PROJECT_ID TITLE")
		}
		return c.runCreateTask(ctx, args[1], strings.Join(args[2:], " "))
	case "status":
		if len(args) != 3 {
			return fmt.Errorf("missing arguments. Usage: pmctl tasks status TASK_ID STATUS")
		}
		return c.runTaskStatus(ctx, args[1], args[2])
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("missing task ID. Usage: pmctl tasks delete TASK_ID")
		}
		return c.runDeleteTask(ctx, args[1])
	default:
		return fmt.Errorf("%w: tasks %s", ErrUnknownCommand, args[0])
	}
}

func (c *Cli) runListTasks(ctx context.Context, projectID string) error {
	tasks, err := c.apiClient.ListTasks(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	c.io.Println("=== Tasks ===")
	c.io.Println()

	if len(tasks) == 0 {
		c.io.Println("No tasks found.")
		return nil
	}

	tw := tabwriter.NewWriter(c.io, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tTITLE\tASSIGNEE")
	for _, t := range tasks {
		assignee := "-"
		if t.AssigneeID != nil {
			assignee = *t.AssigneeID
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, truncate(t.Title, 50), assignee)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	c.io.Println()
	c.io.Printf("Total: %d\n", len(tasks))
	return nil
}

func (c *Cli) runCreateTask(ctx context.Context, projectID, title string) error {
	title = strings.TrimSpace(title)
	if err := validation.ValidateName("title", title); err != nil {
		return err
	}

	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	task, err := c.apiClient.CreateTask(ctx, token, pkgapi.TaskCreateRequest{
		ProjectID: projectID,
		Title:     title,
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", explain(err))
	}

	c.io.Println("✓ Task created")
	return c.render(taskTmpl, task)
}

func (c *Cli) runTaskStatus(ctx context.Context, taskID, rawStatus string) error {
	status, err := parseStatus(rawStatus)
	if err != nil {
		return err
	}

	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	value := string(status)
	task, err := c.apiClient.UpdateTask(ctx, token, taskID, pkgapi.TaskUpdateRequest{Status: &value})
	if err != nil {
		return fmt.Errorf("failed to update task: %w", explain(err))
	}

	c.io.Printf("✓ Task %s moved to %s\n", task.ID, task.Status)
	return nil
}

func (c *Cli) runDeleteTask(ctx context.Context, taskID string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	if err := c.apiClient.DeleteTask(ctx, token, taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", explain(err))
	}

	c.io.Printf("✓ Task %s deleted\n", taskID)
	return nil
}

// parseStatus принимает статус в любом регистре, "-" эквивалентен "_"
func parseStatus(raw string) (models.TaskStatus, error) {
	status := models.TaskStatus(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	if !status.Valid() {
		return "", fmt.Errorf("invalid status %q: use todo, in-progress, in-review or done", raw)
	}
	return status, nil
}
