package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/iudanet/pmtool/internal/client/auth"
	"github.com/iudanet/pmtool/internal/client/storage"
	"github.com/iudanet/pmtool/internal/models"
	pkgapi "github.com/iudanet/pmtool/pkg/api"
)

// fakeIO отдает заранее заданные ответы и копит вывод
type fakeIO struct {
	out     bytes.Buffer
	inputs  []string
	prompts []string
}

func (f *fakeIO) Println(a ...any)               { _, _ = fmt.Fprintln(&f.out, a...) }
func (f *fakeIO) Printf(format string, a ...any) { _, _ = fmt.Fprintf(&f.out, format, a...) }
func (f *fakeIO) Write(p []byte) (int, error)    { return f.out.Write(p) }

func (f *fakeIO) ReadInput(prompt string) (string, error) {
	return f.next(prompt)
}

func (f *fakeIO) ReadPassword(prompt string) (string, error) {
	return f.next(prompt)
}

func (f *fakeIO) next(prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if len(f.inputs) == 0 {
		return "", io.EOF
	}
	v := f.inputs[0]
	f.inputs = f.inputs[1:]
	return v, nil
}

// fakeAuth implements auth.Service for testing
type fakeAuth struct {
	session     *storage.Session
	sessionErr  error
	registered  *auth.RegisterInput
	loginEmail  string
	loginErr    error
	logoutErr   error
	logoutCalls int
}

func (f *fakeAuth) Register(ctx context.Context, in auth.RegisterInput) (*models.User, error) {
	f.registered = &in
	return &models.User{ID: "user-1", Email: in.Email}, nil
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*storage.Session, error) {
	f.loginEmail = email
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.session = &storage.Session{Email: email, UserID: "user-1", AccessToken: "tok"}
	return f.session, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAuth) Session(ctx context.Context) (*storage.Session, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	if f.session == nil {
		return nil, auth.ErrNotAuthenticated
	}
	return f.session, nil
}

func (f *fakeAuth) Stored(ctx context.Context) (*storage.Session, error) {
	if f.session == nil {
		return nil, auth.ErrNotAuthenticated
	}
	return f.session, nil
}

// fakeProjectAPI implements ProjectAPI for testing
type fakeProjectAPI struct {
	err           error
	tokens        []string
	projects      []models.Project
	tasks         []models.Task
	listProjectID string
	createdTask   *pkgapi.TaskCreateRequest
	createdName   string
	updated       map[string]pkgapi.TaskUpdateRequest
	deleted       []string
}

func (f *fakeProjectAPI) ListProjects(ctx context.Context) ([]models.Project, error) {
	return f.projects, f.err
}

func (f *fakeProjectAPI) CreateProject(ctx context.Context, token string, req pkgapi.ProjectCreateRequest) (*models.Project, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	f.createdName = req.Name
	return &models.Project{ID: "p1", Name: req.Name, OwnerID: "user-1"}, nil
}

func (f *fakeProjectAPI) ListTasks(ctx context.Context, projectID string) ([]models.Task, error) {
	f.listProjectID = projectID
	return f.tasks, f.err
}

func (f *fakeProjectAPI) CreateTask(ctx context.Context, token string, req pkgapi.TaskCreateRequest) (*models.Task, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	f.createdTask = &req
	return &models.Task{
		ID:        "t1",
		ProjectID: req.ProjectID,
		Title:     req.Title,
		Status:    models.StatusTodo,
		Priority:  models.PriorityMedium,
	}, nil
}

func (f *fakeProjectAPI) UpdateTask(ctx context.Context, token, id string, req pkgapi.TaskUpdateRequest) (*models.Task, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	if f.updated == nil {
		f.updated = map[string]pkgapi.TaskUpdateRequest{}
	}
	f.updated[id] = req
	return &models.Task{ID: id, Status: models.TaskStatus(*req.Status)}, nil
}

func (f *fakeProjectAPI) DeleteTask(ctx context.Context, token, id string) error {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestCli(inputs ...string) (*Cli, *fakeIO, *fakeAuth, *fakeProjectAPI) {
	fio := &fakeIO{inputs: inputs}
	fa := &fakeAuth{}
	fp := &fakeProjectAPI{}
	return New(fio, fa, fp), fio, fa, fp
}
