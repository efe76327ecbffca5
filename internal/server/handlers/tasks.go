package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
	"github.com/iudanet/pmtool/internal/validation"
	"github.com/iudanet/pmtool/pkg/api"
)

const maxCommentLen = 10000

// TaskHandler обрабатывает задачи, комментарии и теги задач
type TaskHandler struct {
	responder
	events   events
	tasks    storage.TaskStorage
	projects storage.ProjectStorage
	members  storage.MemberStorage
	users    storage.UserStorage
	comments storage.CommentStorage
	tags     storage.TagStorage
}

// TaskHandlerDeps хранилища, нужные TaskHandler
type TaskHandlerDeps struct {
	Tasks         storage.TaskStorage
	Projects      storage.ProjectStorage
	Members       storage.MemberStorage
	Users         storage.UserStorage
	Comments      storage.CommentStorage
	Tags          storage.TagStorage
	Activities    storage.ActivityStorage
	Notifications storage.NotificationStorage
}

// NewTaskHandler создает handler задач
func NewTaskHandler(logger *slog.Logger, deps TaskHandlerDeps) *TaskHandler {
	return &TaskHandler{
		responder: responder{logger: logger},
		events:    events{logger: logger, activities: deps.Activities, notifications: deps.Notifications},
		tasks:     deps.Tasks,
		projects:  deps.Projects,
		members:   deps.Members,
		users:     deps.Users,
		comments:  deps.Comments,
		tags:      deps.Tags,
	}
}

// List обрабатывает GET /tasks/?project_id=&status=&assignee_id=&priority=
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.TaskFilter{
		ProjectID:  q.Get("project_id"),
		Status:     models.TaskStatus(q.Get("status")),
		AssigneeID: q.Get("assignee_id"),
		Priority:   models.TaskPriority(q.Get("priority")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.validationError(w, errors.New("status must be one of TODO, IN_PROGRESS, IN_REVIEW, DONE"))
		return
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		h.validationError(w, errors.New("priority must be one of LOW, MEDIUM, HIGH, URGENT"))
		return
	}

	tasks, err := h.tasks.ListTasks(r.Context(), filter)
	if err != nil {
		h.internalError(r.Context(), w, "failed to list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	h.sendJSON(w, tasks, http.StatusOK)
}

// Get обрабатывает GET /tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	h.sendJSON(w, task, http.StatusOK)
}

// Create обрабатывает POST /tasks/
// Создавать задачи могут участники проекта с ролью не ниже MEMBER.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	var req api.TaskCreateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := validation.ValidateName("title", req.Title); err != nil {
		h.validationError(w, err)
		return
	}
	if req.ProjectID == "" {
		h.validationError(w, errors.New("projectId is required"))
		return
	}

	status := models.StatusTodo
	if req.Status != "" {
		status = models.TaskStatus(req.Status)
	}
	priority := models.PriorityMedium
	if req.Priority != "" {
		priority = models.TaskPriority(req.Priority)
	}
	if !status.Valid() {
		h.validationError(w, errors.New("status must be one of TODO, IN_PROGRESS, IN_REVIEW, DONE"))
		return
	}
	if !priority.Valid() {
		h.validationError(w, errors.New("priority must be one of LOW, MEDIUM, HIGH, URGENT"))
		return
	}

	project, ok := findProject(ctx, h.responder, h.projects, w, req.ProjectID)
	if !ok {
		return
	}
	if _, ok := checkRole(ctx, h.responder, h.members, w, project.ID, id.UserID(), models.MemberRole.CanWrite); !ok {
		return
	}

	assigneeID := req.AssigneeID
	if assigneeID != nil && *assigneeID == "" {
		assigneeID = nil
	}
	if assigneeID != nil && !h.assigneeExists(w, r, *assigneeID) {
		return
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		ProjectID:   project.ID,
		CreatorID:   id.UserID(),
		AssigneeID:  assigneeID,
		Status:      status,
		Priority:    priority,
		Position:    req.Position,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.tasks.CreateTask(ctx, task); err != nil {
		h.internalError(ctx, w, "failed to create task", err)
		return
	}

	h.events.activity(ctx, models.ActivityTask, models.ActionCreated, id.UserID(), &task.ProjectID, &task.ID,
		map[string]string{"title": task.Title})
	h.notifyAssigned(r, task, id.UserID())

	h.logger.InfoContext(ctx, "task created",
		slog.String("task_id", task.ID),
		slog.String("project_id", task.ProjectID))

	h.sendJSON(w, task, http.StatusCreated)
}

// Update обрабатывает PATCH /tasks/{id}
// Меняются только переданные поля. Пустой assigneeId снимает исполнителя.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	task, ok := h.loadTask(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if _, ok := checkRole(ctx, h.responder, h.members, w, task.ProjectID, id.UserID(), models.MemberRole.CanWrite); !ok {
		return
	}

	var req api.TaskUpdateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	changed := make([]string, 0, 7)
	if req.Title != nil {
		if err := validation.ValidateName("title", *req.Title); err != nil {
			h.validationError(w, err)
			return
		}
		task.Title = *req.Title
		changed = append(changed, "title")
	}
	if req.Description != nil {
		task.Description = req.Description
		changed = append(changed, "description")
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		if !status.Valid() {
			h.validationError(w, errors.New("status must be one of TODO, IN_PROGRESS, IN_REVIEW, DONE"))
			return
		}
		task.Status = status
		changed = append(changed, "status")
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		if !priority.Valid() {
			h.validationError(w, errors.New("priority must be one of LOW, MEDIUM, HIGH, URGENT"))
			return
		}
		task.Priority = priority
		changed = append(changed, "priority")
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
		changed = append(changed, "dueDate")
	}
	if req.Position != nil {
		task.Position = *req.Position
		changed = append(changed, "position")
	}

	reassigned := false
	if req.AssigneeID != nil {
		if *req.AssigneeID == "" {
			task.AssigneeID = nil
		} else {
			if !h.assigneeExists(w, r, *req.AssigneeID) {
				return
			}
			reassigned = task.AssigneeID == nil || *task.AssigneeID != *req.AssigneeID
			task.AssigneeID = req.AssigneeID
		}
		changed = append(changed, "assigneeId")
	}
	task.UpdatedAt = time.Now().UTC()

	if err := h.tasks.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			h.sendError(w, "Task not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to update task", err)
		return
	}

	h.events.activity(ctx, models.ActivityTask, models.ActionUpdated, id.UserID(), &task.ProjectID, &task.ID,
		map[string]string{"title": task.Title, "fields": strings.Join(changed, ",")})
	if reassigned {
		h.notifyAssigned(r, task, id.UserID())
	}

	h.sendJSON(w, task, http.StatusOK)
}

// Delete обрабатывает DELETE /tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	task, ok := h.loadTask(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if _, ok := checkRole(ctx, h.responder, h.members, w, task.ProjectID, id.UserID(), models.MemberRole.CanWrite); !ok {
		return
	}

	if err := h.tasks.DeleteTask(ctx, task.ID); err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			h.sendError(w, "Task not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to delete task", err)
		return
	}

	h.events.activity(ctx, models.ActivityTask, models.ActionDeleted, id.UserID(), &task.ProjectID, nil,
		map[string]string{"title": task.Title, "taskId": task.ID})

	h.logger.InfoContext(ctx, "task deleted", slog.String("task_id", task.ID))
	w.WriteHeader(http.StatusNoContent)
}

// ListComments обрабатывает GET /tasks/{id}/comments
func (h *TaskHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	comments, err := h.comments.ListComments(r.Context(), task.ID)
	if err != nil {
		h.internalError(r.Context(), w, "failed to list comments", err)
		return
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	h.sendJSON(w, comments, http.StatusOK)
}

// CreateComment обрабатывает POST /tasks/{id}/comments (любой участник проекта)
func (h *TaskHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	task, ok := h.loadTask(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	anyRole := func(models.MemberRole) bool { return true }
	if _, ok := checkRole(ctx, h.responder, h.members, w, task.ProjectID, id.UserID(), anyRole); !ok {
		return
	}

	var req api.CommentCreateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.validationError(w, errors.New("content cannot be empty"))
		return
	}
	if len(content) > maxCommentLen {
		h.validationError(w, errors.New("content is too long"))
		return
	}

	now := time.Now().UTC()
	comment := &models.Comment{
		ID:        uuid.New().String(),
		Content:   content,
		TaskID:    task.ID,
		AuthorID:  id.UserID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.comments.CreateComment(ctx, comment); err != nil {
		h.internalError(ctx, w, "failed to create comment", err)
		return
	}

	h.events.activity(ctx, models.ActivityComment, models.ActionCreated, id.UserID(), &task.ProjectID, &task.ID,
		map[string]string{"commentId": comment.ID})
	if task.AssigneeID != nil && *task.AssigneeID != id.UserID() {
		h.events.notify(ctx, models.NotificationCommentAdded, *task.AssigneeID,
			"New comment on task "+task.Title,
			map[string]string{"taskId": task.ID, "commentId": comment.ID})
	}

	h.sendJSON(w, comment, http.StatusCreated)
}

// DeleteComment обрабатывает DELETE /comments/{id} (только автор)
func (h *TaskHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	comment, err := h.comments.GetComment(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			h.sendError(w, "Comment not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to get comment", err)
		return
	}
	if comment.AuthorID != id.UserID() {
		h.sendError(w, "Only the author can delete a comment", http.StatusForbidden)
		return
	}

	if err := h.comments.DeleteComment(ctx, comment.ID); err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			h.sendError(w, "Comment not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to delete comment", err)
		return
	}

	if task, err := h.tasks.GetTask(ctx, comment.TaskID); err == nil {
		h.events.activity(ctx, models.ActivityComment, models.ActionDeleted, id.UserID(), &task.ProjectID, &task.ID,
			map[string]string{"commentId": comment.ID})
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTags обрабатывает GET /tasks/{id}/tags
func (h *TaskHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	tags, err := h.tags.ListTaskTags(r.Context(), task.ID)
	if err != nil {
		h.internalError(r.Context(), w, "failed to list task tags", err)
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}
	h.sendJSON(w, tags, http.StatusOK)
}

// AttachTag обрабатывает POST /tasks/{id}/tags
func (h *TaskHandler) AttachTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	task, ok := h.loadTask(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if _, ok := checkRole(ctx, h.responder, h.members, w, task.ProjectID, id.UserID(), models.MemberRole.CanWrite); !ok {
		return
	}

	var req api.TaskTagRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.TagID == "" {
		h.validationError(w, errors.New("tagId is required"))
		return
	}

	tag, err := h.tags.GetTag(ctx, req.TagID)
	if err != nil {
		if errors.Is(err, storage.ErrTagNotFound) {
			h.sendError(w, "Tag not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to get tag", err)
		return
	}

	if err := h.tags.AttachTag(ctx, task.ID, tag.ID); err != nil {
		if errors.Is(err, storage.ErrTaskTagAlreadyExists) {
			h.sendError(w, "Tag is already attached to this task", http.StatusConflict)
			return
		}
		h.internalError(ctx, w, "failed to attach tag", err)
		return
	}

	h.events.activity(ctx, models.ActivityTask, models.ActionUpdated, id.UserID(), &task.ProjectID, &task.ID,
		map[string]string{"tagAdded": tag.Name})

	h.sendJSON(w, tag, http.StatusCreated)
}

// DetachTag обрабатывает DELETE /tasks/{id}/tags/{tagId}
func (h *TaskHandler) DetachTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	task, ok := h.loadTask(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if _, ok := checkRole(ctx, h.responder, h.members, w, task.ProjectID, id.UserID(), models.MemberRole.CanWrite); !ok {
		return
	}

	tagID := r.PathValue("tagId")
	if err := h.tags.DetachTag(ctx, task.ID, tagID); err != nil {
		if errors.Is(err, storage.ErrTaskTagNotFound) {
			h.sendError(w, "Tag is not attached to this task", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to detach tag", err)
		return
	}

	h.events.activity(ctx, models.ActivityTask, models.ActionUpdated, id.UserID(), &task.ProjectID, &task.ID,
		map[string]string{"tagRemoved": tagID})

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) loadTask(w http.ResponseWriter, r *http.Request, taskID string) (*models.Task, bool) {
	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			h.sendError(w, "Task not found", http.StatusNotFound)
			return nil, false
		}
		h.internalError(r.Context(), w, "failed to get task", err)
		return nil, false
	}
	return task, true
}

func (h *TaskHandler) assigneeExists(w http.ResponseWriter, r *http.Request, userID string) bool {
	if _, err := h.users.GetUserByID(r.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.sendError(w, "Assignee not found", http.StatusNotFound)
			return false
		}
		h.internalError(r.Context(), w, "failed to get assignee", err)
		return false
	}
	return true
}

// notifyAssigned уведомляет исполнителя, если задачу назначил кто-то другой
func (h *TaskHandler) notifyAssigned(r *http.Request, task *models.Task, actorID string) {
	if task.AssigneeID == nil || *task.AssigneeID == actorID {
		return
	}
	h.events.notify(r.Context(), models.NotificationTaskAssigned, *task.AssigneeID,
		"You were assigned to task "+task.Title,
		map[string]string{"taskId": task.ID, "projectId": task.ProjectID})
}
