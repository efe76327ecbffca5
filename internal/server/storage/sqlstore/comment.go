package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
)

const commentColumns = `id, content, task_id, author_id, created_at, updated_at`

// CreateComment creates a new comment
func (s *Storage) CreateComment(ctx context.Context, comment *models.Comment) error {
	query := `INSERT INTO comments (` + commentColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, query,
		comment.ID,
		comment.Content,
		comment.TaskID,
		comment.AuthorID,
		comment.CreatedAt.UTC(),
		comment.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	return nil
}

// GetComment retrieves comment by ID
func (s *Storage) GetComment(ctx context.Context, commentID string) (*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = ?`

	comment, err := scanComment(s.queryRow(ctx, query, commentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}

	return comment, nil
}

// ListComments returns comments of a task, oldest first
func (s *Storage) ListComments(ctx context.Context, taskID string) ([]*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE task_id = ? ORDER BY created_at, id`

	rows, err := s.query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	comments := make([]*models.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return comments, nil
}

// DeleteComment deletes comment by ID
func (s *Storage) DeleteComment(ctx context.Context, commentID string) error {
	err := s.execAffected(ctx, storage.ErrCommentNotFound, `DELETE FROM comments WHERE id = ?`, commentID)
	if err != nil && !errors.Is(err, storage.ErrCommentNotFound) {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	return err
}

func scanComment(row scanner) (*models.Comment, error) {
	c := &models.Comment{}
	if err := row.Scan(&c.ID, &c.Content, &c.TaskID, &c.AuthorID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}
