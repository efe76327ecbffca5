package storage

import (
	"context"

	"github.com/iudanet/pmtool/internal/models"
)

// ProjectStorage defines interface for project persistence
type ProjectStorage interface {
	// CreateProject creates project and its OWNER membership in one transaction
	CreateProject(ctx context.Context, project *models.Project, owner *models.ProjectMember) error

	// GetProject retrieves project by ID
	// Returns ErrProjectNotFound if project doesn't exist
	GetProject(ctx context.Context, projectID string) (*models.Project, error)

	// ListProjects returns all projects ordered by creation time
	ListProjects(ctx context.Context) ([]*models.Project, error)

	// UpdateProject updates name, description, color, icon and updated_at
	// Returns ErrProjectNotFound if project doesn't exist
	UpdateProject(ctx context.Context, project *models.Project) error

	// DeleteProject deletes project with its tasks, members and activity
	// Returns ErrProjectNotFound if project doesn't exist
	DeleteProject(ctx context.Context, projectID string) error
}

// MemberStorage defines interface for project membership persistence
type MemberStorage interface {
	// AddMember adds user to project
	// Returns ErrMemberAlreadyExists if user is already a member
	AddMember(ctx context.Context, member *models.ProjectMember) error

	// GetMember retrieves membership of user in project
	// Returns ErrMemberNotFound if user is not a member
	GetMember(ctx context.Context, projectID, userID string) (*models.ProjectMember, error)

	// ListMembers returns project members ordered by join time
	ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMember, error)

	// UpdateMemberRole changes member role
	// Returns ErrMemberNotFound if user is not a member
	UpdateMemberRole(ctx context.Context, projectID, userID string, role models.MemberRole) error

	// RemoveMember removes user from project
	// Returns ErrMemberNotFound if user is not a member
	RemoveMember(ctx context.Context, projectID, userID string) error
}
