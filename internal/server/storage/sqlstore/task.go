package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
)

const taskColumns = `id, title, description, status, priority, project_id, creator_id, assignee_id, position, due_date, created_at, updated_at`

// CreateTask creates a new task
func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.exec(ctx, query,
		task.ID,
		task.Title,
		nullString(task.Description),
		string(task.Status),
		string(task.Priority),
		task.ProjectID,
		task.CreatorID,
		nullString(task.AssigneeID),
		task.Position,
		nullTime(task.DueDate),
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// GetTask retrieves task by ID
func (s *Storage) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(s.queryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// ListTasks returns tasks matching filter
func (s *Storage) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	var (
		conds []string
		args  []any
	)

	if filter.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.AssigneeID != "" {
		conds = append(conds, "assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(filter.Priority))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY position, created_at, id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	tasks := make([]*models.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tasks, nil
}

// UpdateTask overwrites mutable fields of the task
func (s *Storage) UpdateTask(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, priority = ?, assignee_id = ?,
			position = ?, due_date = ?, updated_at = ?
		WHERE id = ?
	`

	err := s.execAffected(ctx, storage.ErrTaskNotFound, query,
		task.Title,
		nullString(task.Description),
		string(task.Status),
		string(task.Priority),
		nullString(task.AssigneeID),
		task.Position,
		nullTime(task.DueDate),
		task.UpdatedAt.UTC(),
		task.ID,
	)
	if err != nil && !errors.Is(err, storage.ErrTaskNotFound) {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return err
}

// DeleteTask deletes task with its comments and tag links
func (s *Storage) DeleteTask(ctx context.Context, taskID string) error {
	err := s.execAffected(ctx, storage.ErrTaskNotFound, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil && !errors.Is(err, storage.ErrTaskNotFound) {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return err
}

func scanTask(row scanner) (*models.Task, error) {
	task := &models.Task{}
	var (
		description, assigneeID sql.NullString
		status, priority        string
		dueDate                 sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&status,
		&priority,
		&task.ProjectID,
		&task.CreatorID,
		&assigneeID,
		&task.Position,
		&dueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = stringPtr(description)
	task.AssigneeID = stringPtr(assigneeID)
	task.Status = models.TaskStatus(status)
	task.Priority = models.TaskPriority(priority)
	task.DueDate = timePtr(dueDate)

	return task, nil
}
