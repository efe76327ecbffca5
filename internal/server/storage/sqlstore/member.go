package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
)

const memberColumns = `id, project_id, user_id, role, joined_at`

// AddMember adds user to project
func (s *Storage) AddMember(ctx context.Context, member *models.ProjectMember) error {
	query := `INSERT INTO project_members (` + memberColumns + `) VALUES (?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, query,
		member.ID,
		member.ProjectID,
		member.UserID,
		string(member.Role),
		member.JoinedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrMemberAlreadyExists
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}

	return nil
}

// GetMember retrieves membership of user in project
func (s *Storage) GetMember(ctx context.Context, projectID, userID string) (*models.ProjectMember, error) {
	query := `SELECT ` + memberColumns + ` FROM project_members WHERE project_id = ? AND user_id = ?`

	member, err := scanMember(s.queryRow(ctx, query, projectID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// ListMembers returns project members ordered by join time
func (s *Storage) ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMember, error) {
	query := `SELECT ` + memberColumns + ` FROM project_members WHERE project_id = ? ORDER BY joined_at, id`

	rows, err := s.query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	members := make([]*models.ProjectMember, 0)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return members, nil
}

// UpdateMemberRole changes member role
func (s *Storage) UpdateMemberRole(ctx context.Context, projectID, userID string, role models.MemberRole) error {
	query := `UPDATE project_members SET role = ? WHERE project_id = ? AND user_id = ?`

	err := s.execAffected(ctx, storage.ErrMemberNotFound, query, string(role), projectID, userID)
	if err != nil && !errors.Is(err, storage.ErrMemberNotFound) {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	return err
}

// RemoveMember removes user from project
func (s *Storage) RemoveMember(ctx context.Context, projectID, userID string) error {
	query := `DELETE FROM project_members WHERE project_id = ? AND user_id = ?`

	err := s.execAffected(ctx, storage.ErrMemberNotFound, query, projectID, userID)
	if err != nil && !errors.Is(err, storage.ErrMemberNotFound) {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	return err
}

func scanMember(row scanner) (*models.ProjectMember, error) {
	member := &models.ProjectMember{}
	var role string

	if err := row.Scan(&member.ID, &member.ProjectID, &member.UserID, &role, &member.JoinedAt); err != nil {
		return nil, err
	}
	member.Role = models.MemberRole(role)

	return member, nil
}
