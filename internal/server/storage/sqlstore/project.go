package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
)

const projectColumns = `id, name, description, color, icon, owner_id, created_at, updated_at`

// CreateProject creates project and OWNER membership in one transaction
func (s *Storage) CreateProject(ctx context.Context, project *models.Project, owner *models.ProjectMember) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		project.ID,
		project.Name,
		nullString(project.Description),
		nullString(project.Color),
		nullString(project.Icon),
		project.OwnerID,
		project.CreatedAt.UTC(),
		project.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	if owner != nil {
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO project_members (id, project_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?, ?)
		`),
			owner.ID,
			owner.ProjectID,
			owner.UserID,
			string(owner.Role),
			owner.JoinedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert project owner: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetProject retrieves project by ID
func (s *Storage) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	project, err := scanProject(s.queryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListProjects returns all projects
func (s *Storage) ListProjects(ctx context.Context) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at, id`

	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return projects, nil
}

// UpdateProject updates mutable project fields
func (s *Storage) UpdateProject(ctx context.Context, project *models.Project) error {
	query := `
		UPDATE projects
		SET name = ?, description = ?, color = ?, icon = ?, updated_at = ?
		WHERE id = ?
	`

	err := s.execAffected(ctx, storage.ErrProjectNotFound, query,
		project.Name,
		nullString(project.Description),
		nullString(project.Color),
		nullString(project.Icon),
		project.UpdatedAt.UTC(),
		project.ID,
	)
	if err != nil && !errors.Is(err, storage.ErrProjectNotFound) {
		return fmt.Errorf("failed to update project: %w", err)
	}

	return err
}

// DeleteProject deletes project, cascading to tasks, members and activity
func (s *Storage) DeleteProject(ctx context.Context, projectID string) error {
	err := s.execAffected(ctx, storage.ErrProjectNotFound, `DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil && !errors.Is(err, storage.ErrProjectNotFound) {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	return err
}

func scanProject(row scanner) (*models.Project, error) {
	project := &models.Project{}
	var description, color, icon sql.NullString

	err := row.Scan(
		&project.ID,
		&project.Name,
		&description,
		&color,
		&icon,
		&project.OwnerID,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	project.Description = stringPtr(description)
	project.Color = stringPtr(color)
	project.Icon = stringPtr(icon)

	return project, nil
}
