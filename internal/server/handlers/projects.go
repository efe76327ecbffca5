package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
	"github.com/iudanet/pmtool/internal/validation"
	"github.com/iudanet/pmtool/pkg/api"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// ProjectHandler обрабатывает проекты, участников и журнал действий проекта
type ProjectHandler struct {
	responder
	events   events
	projects storage.ProjectStorage
	members  storage.MemberStorage
	users    storage.UserStorage
}

// NewProjectHandler создает handler проектов
func NewProjectHandler(
	logger *slog.Logger,
	projects storage.ProjectStorage,
	members storage.MemberStorage,
	users storage.UserStorage,
	activities storage.ActivityStorage,
	notifications storage.NotificationStorage,
) *ProjectHandler {
	return &ProjectHandler{
		responder: responder{logger: logger},
		events:    events{logger: logger, activities: activities, notifications: notifications},
		projects:  projects,
		members:   members,
		users:     users,
	}
}

// List обрабатывает GET /projects/
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.ListProjects(r.Context())
	if err != nil {
		h.internalError(r.Context(), w, "failed to list projects", err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	h.sendJSON(w, projects, http.StatusOK)
}

// Get обрабатывает GET /projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	h.sendJSON(w, project, http.StatusOK)
}

// Create обрабатывает POST /projects/
// Создатель становится владельцем и участником с ролью OWNER.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	var req api.ProjectCreateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := validation.ValidateName("name", req.Name); err != nil {
		h.validationError(w, err)
		return
	}

	color := models.DefaultProjectColor
	if req.Color != nil {
		if err := validation.ValidateColor(*req.Color); err != nil {
			h.validationError(w, err)
			return
		}
		color = *req.Color
	}
	icon := models.DefaultProjectIcon
	if req.Icon != nil && *req.Icon != "" {
		icon = *req.Icon
	}

	now := time.Now().UTC()
	project := &models.Project{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Color:       &color,
		Icon:        &icon,
		OwnerID:     id.UserID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := &models.ProjectMember{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		UserID:    id.UserID(),
		Role:      models.RoleOwner,
		JoinedAt:  now,
	}

	if err := h.projects.CreateProject(ctx, project, owner); err != nil {
		h.internalError(ctx, w, "failed to create project", err)
		return
	}

	h.events.activity(ctx, models.ActivityProject, models.ActionCreated, id.UserID(), &project.ID, nil,
		map[string]string{"name": project.Name})

	h.logger.InfoContext(ctx, "project created",
		slog.String("project_id", project.ID),
		slog.String("user_id", id.UserID()))

	h.sendJSON(w, project, http.StatusCreated)
}

// Update обрабатывает PATCH /projects/{id} (OWNER или ADMIN)
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := h.requireRole(w, r, project.ID, id.UserID(), models.MemberRole.CanManage); !ok {
		return
	}

	var req api.ProjectUpdateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.Name != nil {
		if err := validation.ValidateName("name", *req.Name); err != nil {
			h.validationError(w, err)
			return
		}
		project.Name = *req.Name
	}
	if req.Color != nil {
		if err := validation.ValidateColor(*req.Color); err != nil {
			h.validationError(w, err)
			return
		}
		project.Color = req.Color
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	if req.Icon != nil {
		project.Icon = req.Icon
	}
	project.UpdatedAt = time.Now().UTC()

	if err := h.projects.UpdateProject(ctx, project); err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			h.sendError(w, "Project not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to update project", err)
		return
	}

	h.events.activity(ctx, models.ActivityProject, models.ActionUpdated, id.UserID(), &project.ID, nil,
		map[string]string{"name": project.Name})

	h.sendJSON(w, project, http.StatusOK)
}

// Delete обрабатывает DELETE /projects/{id} (только OWNER)
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	isOwner := func(role models.MemberRole) bool { return role == models.RoleOwner }
	if _, ok := h.requireRole(w, r, project.ID, id.UserID(), isOwner); !ok {
		return
	}

	if err := h.projects.DeleteProject(ctx, project.ID); err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			h.sendError(w, "Project not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to delete project", err)
		return
	}

	// Журнал проекта удаляется вместе с ним, запись остается без project_id
	h.events.activity(ctx, models.ActivityProject, models.ActionDeleted, id.UserID(), nil, nil,
		map[string]string{"name": project.Name, "projectId": project.ID})

	h.logger.InfoContext(ctx, "project deleted", slog.String("project_id", project.ID))
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers обрабатывает GET /projects/{id}/members
func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	members, err := h.members.ListMembers(r.Context(), project.ID)
	if err != nil {
		h.internalError(r.Context(), w, "failed to list members", err)
		return
	}
	if members == nil {
		members = []*models.ProjectMember{}
	}
	h.sendJSON(w, members, http.StatusOK)
}

// AddMember обрабатывает POST /projects/{id}/members (OWNER или ADMIN)
func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := h.requireRole(w, r, project.ID, id.UserID(), models.MemberRole.CanManage); !ok {
		return
	}

	var req api.MemberAddRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	role := models.RoleMember
	if req.Role != "" {
		role = models.MemberRole(req.Role)
	}
	if !role.Valid() || role == models.RoleOwner {
		h.validationError(w, errors.New("role must be one of ADMIN, MEMBER, VIEWER"))
		return
	}
	if req.UserID == "" {
		h.validationError(w, errors.New("userId is required"))
		return
	}

	if _, err := h.users.GetUserByID(ctx, req.UserID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.sendError(w, "User not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to get user", err)
		return
	}

	member := &models.ProjectMember{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		UserID:    req.UserID,
		Role:      role,
		JoinedAt:  time.Now().UTC(),
	}
	if err := h.members.AddMember(ctx, member); err != nil {
		if errors.Is(err, storage.ErrMemberAlreadyExists) {
			h.sendError(w, "User is already a member of this project", http.StatusConflict)
			return
		}
		h.internalError(ctx, w, "failed to add member", err)
		return
	}

	h.events.activity(ctx, models.ActivityMember, models.ActionAdded, id.UserID(), &project.ID, nil,
		map[string]string{"memberId": member.UserID, "role": string(member.Role)})
	h.events.notify(ctx, models.NotificationMemberAdded, member.UserID,
		"You were added to project "+project.Name,
		map[string]string{"projectId": project.ID, "role": string(member.Role)})

	h.sendJSON(w, member, http.StatusCreated)
}

// UpdateMember обрабатывает PATCH /projects/{id}/members/{userId}
// Роль владельца менять нельзя, назначить второго владельца тоже.
func (h *ProjectHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	if _, ok := h.requireRole(w, r, project.ID, id.UserID(), models.MemberRole.CanManage); !ok {
		return
	}

	var req api.MemberUpdateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	role := models.MemberRole(req.Role)
	if !role.Valid() || role == models.RoleOwner {
		h.validationError(w, errors.New("role must be one of ADMIN, MEMBER, VIEWER"))
		return
	}

	member, ok := h.loadMember(w, r, project.ID, r.PathValue("userId"))
	if !ok {
		return
	}
	if member.Role == models.RoleOwner {
		h.sendError(w, "Cannot change the role of the project owner", http.StatusForbidden)
		return
	}

	if err := h.members.UpdateMemberRole(ctx, project.ID, member.UserID, role); err != nil {
		if errors.Is(err, storage.ErrMemberNotFound) {
			h.sendError(w, "Member not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to update member role", err)
		return
	}
	member.Role = role

	h.events.activity(ctx, models.ActivityMember, models.ActionUpdated, id.UserID(), &project.ID, nil,
		map[string]string{"memberId": member.UserID, "role": string(role)})

	h.sendJSON(w, member, http.StatusOK)
}

// RemoveMember обрабатывает DELETE /projects/{id}/members/{userId}
// OWNER и ADMIN удаляют любого, кроме владельца. Участник может выйти сам.
func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	targetID := r.PathValue("userId")
	if targetID != id.UserID() {
		if _, ok := h.requireRole(w, r, project.ID, id.UserID(), models.MemberRole.CanManage); !ok {
			return
		}
	}

	member, ok := h.loadMember(w, r, project.ID, targetID)
	if !ok {
		return
	}
	if member.Role == models.RoleOwner {
		h.sendError(w, "The project owner cannot be removed", http.StatusForbidden)
		return
	}

	if err := h.members.RemoveMember(ctx, project.ID, member.UserID); err != nil {
		if errors.Is(err, storage.ErrMemberNotFound) {
			h.sendError(w, "Member not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to remove member", err)
		return
	}

	h.events.activity(ctx, models.ActivityMember, models.ActionRemoved, id.UserID(), &project.ID, nil,
		map[string]string{"memberId": member.UserID})

	w.WriteHeader(http.StatusNoContent)
}

// Activity обрабатывает GET /projects/{id}/activity (только участники)
func (h *ProjectHandler) Activity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	anyRole := func(models.MemberRole) bool { return true }
	if _, ok := h.requireRole(w, r, project.ID, id.UserID(), anyRole); !ok {
		return
	}

	limit := queryInt(r, "limit", defaultActivityLimit)
	if limit <= 0 || limit > maxActivityLimit {
		limit = defaultActivityLimit
	}

	if h.events.activities == nil {
		h.sendJSON(w, []*models.Activity{}, http.StatusOK)
		return
	}

	entries, err := h.events.activities.ListProjectActivity(ctx, project.ID, limit)
	if err != nil {
		h.internalError(ctx, w, "failed to list activity", err)
		return
	}
	if entries == nil {
		entries = []*models.Activity{}
	}
	h.sendJSON(w, entries, http.StatusOK)
}

// loadProject находит проект из пути запроса или отвечает 404
func (h *ProjectHandler) loadProject(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	return findProject(r.Context(), h.responder, h.projects, w, r.PathValue("id"))
}

func (h *ProjectHandler) loadMember(w http.ResponseWriter, r *http.Request, projectID, userID string) (*models.ProjectMember, bool) {
	member, err := h.members.GetMember(r.Context(), projectID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrMemberNotFound) {
			h.sendError(w, "Member not found", http.StatusNotFound)
			return nil, false
		}
		h.internalError(r.Context(), w, "failed to get member", err)
		return nil, false
	}
	return member, true
}

// requireRole проверяет членство пользователя в проекте и роль. Отвечает 403 при отказе.
func (h *ProjectHandler) requireRole(w http.ResponseWriter, r *http.Request, projectID, userID string, allowed func(models.MemberRole) bool) (*models.ProjectMember, bool) {
	return checkRole(r.Context(), h.responder, h.members, w, projectID, userID, allowed)
}

func findProject(ctx context.Context, h responder, projects storage.ProjectStorage, w http.ResponseWriter, projectID string) (*models.Project, bool) {
	project, err := projects.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			h.sendError(w, "Project not found", http.StatusNotFound)
			return nil, false
		}
		h.internalError(ctx, w, "failed to get project", err)
		return nil, false
	}
	return project, true
}

func checkRole(ctx context.Context, h responder, members storage.MemberStorage, w http.ResponseWriter, projectID, userID string, allowed func(models.MemberRole) bool) (*models.ProjectMember, bool) {
	member, err := members.GetMember(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrMemberNotFound) {
			h.logger.WarnContext(ctx, "access denied: not a project member",
				slog.String("project_id", projectID),
				slog.String("user_id", userID))
			h.sendError(w, "Not a member of this project", http.StatusForbidden)
			return nil, false
		}
		h.internalError(ctx, w, "failed to get member", err)
		return nil, false
	}
	if !allowed(member.Role) {
		h.logger.WarnContext(ctx, "access denied: insufficient role",
			slog.String("project_id", projectID),
			slog.String("user_id", userID),
			slog.String("role", string(member.Role)))
		h.sendError(w, "Insufficient permissions", http.StatusForbidden)
		return nil, false
	}
	return member, true
}
