package storage

import (
	"context"

	"github.com/iudanet/pmtool/internal/models"
)

// TaskStorage defines interface for task persistence
type TaskStorage interface {
	// CreateTask creates a new task
	CreateTask(ctx context.Context, task *models.Task) error

	// GetTask retrieves task by ID
	// Returns ErrTaskNotFound if task doesn't exist
	GetTask(ctx context.Context, taskID string) (*models.Task, error)

	// ListTasks returns tasks matching filter ordered by position, then creation time
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)

	// UpdateTask overwrites mutable fields of the task
	// Returns ErrTaskNotFound if task doesn't exist
	UpdateTask(ctx context.Context, task *models.Task) error

	// DeleteTask deletes task with its comments and tag links
	// Returns ErrTaskNotFound if task doesn't exist
	DeleteTask(ctx context.Context, taskID string) error
}

// CommentStorage defines interface for task comment persistence
type CommentStorage interface {
	// CreateComment creates a new comment
	CreateComment(ctx context.Context, comment *models.Comment) error

	// GetComment retrieves comment by ID
	// Returns ErrCommentNotFound if comment doesn't exist
	GetComment(ctx context.Context, commentID string) (*models.Comment, error)

	// ListComments returns comments of a task, oldest first
	ListComments(ctx context.Context, taskID string) ([]*models.Comment, error)

	// DeleteComment deletes comment by ID
	// Returns ErrCommentNotFound if comment doesn't exist
	DeleteComment(ctx context.Context, commentID string) error
}

// TagStorage defines interface for tags and task-tag links
type TagStorage interface {
	// CreateTag creates a new tag
	// Returns ErrTagAlreadyExists if tag name is taken
	CreateTag(ctx context.Context, tag *models.Tag) error

	// GetTag retrieves tag by ID
	// Returns ErrTagNotFound if tag doesn't exist
	GetTag(ctx context.Context, tagID string) (*models.Tag, error)

	// ListTags returns all tags ordered by name
	ListTags(ctx context.Context) ([]*models.Tag, error)

	// AttachTag links tag to task
	// Returns ErrTaskTagAlreadyExists if link exists
	AttachTag(ctx context.Context, taskID, tagID string) error

	// DetachTag removes link between tag and task
	// Returns ErrTaskTagNotFound if link doesn't exist
	DetachTag(ctx context.Context, taskID, tagID string) error

	// ListTaskTags returns tags attached to task ordered by name
	ListTaskTags(ctx context.Context, taskID string) ([]*models.Tag, error)
}
