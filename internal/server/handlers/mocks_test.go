package handlers

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

// mockStore is an in-memory implementation of all storage interfaces for handler tests
type mockStore struct {
	users         map[string]*models.User
	projects      map[string]*models.Project
	members       map[string]*models.ProjectMember // projectID/userID -> member
	tasks         map[string]*models.Task
	comments      map[string]*models.Comment
	tags          map[string]*models.Tag
	taskTags      map[string]bool // taskID/tagID
	activities    []*models.Activity
	notifications []*models.Notification
	revoked       map[string]time.Time

	// errors injected by tests
	listErr     error
	createErr   error
	activityErr error

	mu sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		users:    make(map[string]*models.User),
		projects: make(map[string]*models.Project),
		members:  make(map[string]*models.ProjectMember),
		tasks:    make(map[string]*models.Task),
		comments: make(map[string]*models.Comment),
		tags:     make(map[string]*models.Tag),
		taskTags: make(map[string]bool),
		revoked:  make(map[string]time.Time),
	}
}

func memberKey(projectID, userID string) string { return projectID + "/" + userID }

var (
	_ storage.UserStorage         = (*mockStore)(nil)
	_ storage.ProjectStorage      = (*mockStore)(nil)
	_ storage.MemberStorage       = (*mockStore)(nil)
	_ storage.TaskStorage         = (*mockStore)(nil)
	_ storage.CommentStorage      = (*mockStore)(nil)
	_ storage.TagStorage          = (*mockStore)(nil)
	_ storage.ActivityStorage     = (*mockStore)(nil)
	_ storage.NotificationStorage = (*mockStore)(nil)
	_ storage.RevocationStorage   = (*mockStore)(nil)
)

// users

func (m *mockStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return storage.ErrUserAlreadyExists
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *mockStore) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockStore) UpdateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.FirstName, u.LastName, u.Avatar, u.UpdatedAt = user.FirstName, user.LastName, user.Avatar, user.UpdatedAt
	return nil
}

func (m *mockStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// projects and members

func (m *mockStore) CreateProject(ctx context.Context, project *models.Project, owner *models.ProjectMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *project
	m.projects[project.ID] = &cp
	om := *owner
	m.members[memberKey(project.ID, owner.UserID)] = &om
	return nil
}

func (m *mockStore) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, storage.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Project
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockStore) UpdateProject(ctx context.Context, project *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; !ok {
		return storage.ErrProjectNotFound
	}
	cp := *project
	m.projects[project.ID] = &cp
	return nil
}

func (m *mockStore) DeleteProject(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return storage.ErrProjectNotFound
	}
	delete(m.projects, projectID)
	for k, mem := range m.members {
		if mem.ProjectID == projectID {
			delete(m.members, k)
		}
	}
	for id, t := range m.tasks {
		if t.ProjectID == projectID {
			delete(m.tasks, id)
		}
	}
	return nil
}

func (m *mockStore) AddMember(ctx context.Context, member *models.ProjectMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey(member.ProjectID, member.UserID)
	if _, ok := m.members[k]; ok {
		return storage.ErrMemberAlreadyExists
	}
	cp := *member
	m.members[k] = &cp
	return nil
}

func (m *mockStore) GetMember(ctx context.Context, projectID, userID string) (*models.ProjectMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberKey(projectID, userID)]
	if !ok {
		return nil, storage.ErrMemberNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *mockStore) ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProjectMember
	for _, mem := range m.members {
		if mem.ProjectID == projectID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateMemberRole(ctx context.Context, projectID, userID string, role models.MemberRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberKey(projectID, userID)]
	if !ok {
		return storage.ErrMemberNotFound
	}
	mem.Role = role
	return nil
}

func (m *mockStore) RemoveMember(ctx context.Context, projectID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey(projectID, userID)
	if _, ok := m.members[k]; !ok {
		return storage.ErrMemberNotFound
	}
	delete(m.members, k)
	return nil
}

// tasks, comments, tags

func (m *mockStore) CreateTask(ctx context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *mockStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, storage.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Task
	for _, t := range m.tasks {
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		if filter.AssigneeID != "" && (t.AssigneeID == nil || *t.AssigneeID != filter.AssigneeID) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) UpdateTask(ctx context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return storage.ErrTaskNotFound
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *mockStore) DeleteTask(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return storage.ErrTaskNotFound
	}
	delete(m.tasks, taskID)
	return nil
}

func (m *mockStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *comment
	m.comments[comment.ID] = &cp
	return nil
}

func (m *mockStore) GetComment(ctx context.Context, commentID string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return nil, storage.ErrCommentNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) ListComments(ctx context.Context, taskID string) ([]*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Comment
	for _, c := range m.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteComment(ctx context.Context, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[commentID]; !ok {
		return storage.ErrCommentNotFound
	}
	delete(m.comments, commentID)
	return nil
}

func (m *mockStore) CreateTag(ctx context.Context, tag *models.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tags {
		if t.Name == tag.Name {
			return storage.ErrTagAlreadyExists
		}
	}
	cp := *tag
	m.tags[tag.ID] = &cp
	return nil
}

func (m *mockStore) GetTag(ctx context.Context, tagID string) (*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[tagID]
	if !ok {
		return nil, storage.ErrTagNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) ListTags(ctx context.Context) ([]*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Tag
	for _, t := range m.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockStore) AttachTag(ctx context.Context, taskID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := taskID + "/" + tagID
	if m.taskTags[k] {
		return storage.ErrTaskTagAlreadyExists
	}
	m.taskTags[k] = true
	return nil
}

func (m *mockStore) DetachTag(ctx context.Context, taskID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := taskID + "/" + tagID
	if !m.taskTags[k] {
		return storage.ErrTaskTagNotFound
	}
	delete(m.taskTags, k)
	return nil
}

func (m *mockStore) ListTaskTags(ctx context.Context, taskID string) ([]*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Tag
	for k := range m.taskTags {
		tid, tagID, _ := strings.Cut(k, "/")
		if tid != taskID {
			continue
		}
		if t, ok := m.tags[tagID]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// activity, notifications, revocation

func (m *mockStore) RecordActivity(ctx context.Context, activity *models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activityErr != nil {
		return m.activityErr
	}
	m.activities = append(m.activities, activity)
	return nil
}

func (m *mockStore) ListProjectActivity(ctx context.Context, projectID string, limit int) ([]*models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Activity
	for i := len(m.activities) - 1; i >= 0; i-- {
		a := m.activities[i]
		if a.ProjectID != nil && *a.ProjectID == projectID {
			out = append(out, a)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *mockStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockStore) MarkNotificationRead(ctx context.Context, notificationID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.ID == notificationID && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return storage.ErrNotificationNotFound
}

func (m *mockStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *mockStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = expiresAt
	return nil
}

func (m *mockStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

// helpers for seeding state

func (m *mockStore) addUser(id, email string) *models.User {
	u := &models.User{ID: id, Email: email, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.users[id] = u
	return u
}

func (m *mockStore) addProject(id, ownerID string) *models.Project {
	p := &models.Project{ID: id, Name: "Project " + id, OwnerID: ownerID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.projects[id] = p
	m.members[memberKey(id, ownerID)] = &models.ProjectMember{ID: "m-" + id + "-" + ownerID, ProjectID: id, UserID: ownerID, Role: models.RoleOwner}
	return p
}

func (m *mockStore) addMember(projectID, userID string, role models.MemberRole) {
	m.members[memberKey(projectID, userID)] = &models.ProjectMember{ID: "m-" + projectID + "-" + userID, ProjectID: projectID, UserID: userID, Role: role}
}

func (m *mockStore) addTask(id, projectID, creatorID string) *models.Task {
	t := &models.Task{
		ID: id, Title: "Task " + id, ProjectID: projectID, CreatorID: creatorID,
		Status: models.StatusTodo, Priority: models.PriorityMedium, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.tasks[id] = t
	return t
}
