package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
)

const tagColumns = `id, name, color, created_at`

// CreateTag creates a new tag
func (s *Storage) CreateTag(ctx context.Context, tag *models.Tag) error {
	query := `INSERT INTO tags (` + tagColumns + `) VALUES (?, ?, ?, ?)`

	_, err := s.exec(ctx, query, tag.ID, tag.Name, tag.Color, tag.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrTagAlreadyExists
		}
		return fmt.Errorf("failed to insert tag: %w", err)
	}

	return nil
}

// GetTag retrieves tag by ID
func (s *Storage) GetTag(ctx context.Context, tagID string) (*models.Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE id = ?`

	tag, err := scanTag(s.queryRow(ctx, query, tagID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTagNotFound
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	return tag, nil
}

// ListTags returns all tags ordered by name
func (s *Storage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return s.listTags(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY name`)
}

// AttachTag links tag to task
func (s *Storage) AttachTag(ctx context.Context, taskID, tagID string) error {
	_, err := s.exec(ctx, `INSERT INTO task_tags (task_id, tag_id) VALUES (?, ?)`, taskID, tagID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrTaskTagAlreadyExists
		}
		return fmt.Errorf("failed to attach tag: %w", err)
	}

	return nil
}

// DetachTag removes link between tag and task
func (s *Storage) DetachTag(ctx context.Context, taskID, tagID string) error {
	query := `DELETE FROM task_tags WHERE task_id = ? AND tag_id = ?`

	err := s.execAffected(ctx, storage.ErrTaskTagNotFound, query, taskID, tagID)
	if err != nil && !errors.Is(err, storage.ErrTaskTagNotFound) {
		return fmt.Errorf("failed to detach tag: %w", err)
	}

	return err
}

// ListTaskTags returns tags attached to task
func (s *Storage) ListTaskTags(ctx context.Context, taskID string) ([]*models.Tag, error) {
	query := `
		SELECT t.id, t.name, t.color, t.created_at
		FROM tags t
		JOIN task_tags tt ON tt.tag_id = t.id
		WHERE tt.task_id = ?
		ORDER BY t.name
	`

	return s.listTags(ctx, query, taskID)
}

func (s *Storage) listTags(ctx context.Context, query string, args ...any) ([]*models.Tag, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	tags := make([]*models.Tag, 0)
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tags, nil
}

func scanTag(row scanner) (*models.Tag, error) {
	tag := &models.Tag{}
	if err := row.Scan(&tag.ID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
		return nil, err
	}
	return tag, nil
}
