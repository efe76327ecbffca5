// Package cli реализует команды pmctl
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/iudanet/pmtool/internal/client/api"
	"github.com/iudanet/pmtool/internal/client/auth"
	"github.com/iudanet/pmtool/internal/client/iocli"
	"github.com/iudanet/pmtool/internal/models"
	pkgapi "github.com/iudanet/pmtool/pkg/api"
)

// ErrUnknownCommand неизвестная команда или подкоманда
var ErrUnknownCommand = errors.New("unknown command")

// ProjectAPI часть HTTP клиента для проектов и задач
type ProjectAPI interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	CreateProject(ctx context.Context, token string, req pkgapi.ProjectCreateRequest) (*models.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]models.Task, error)
	CreateTask(ctx context.Context, token string, req pkgapi.TaskCreateRequest) (*models.Task, error)
	UpdateTask(ctx context.Context, token, id string, req pkgapi.TaskUpdateRequest) (*models.Task, error)
	DeleteTask(ctx context.Context, token, id string) error
}

type Cli struct {
	io          iocli.IO
	authService auth.Service
	apiClient   ProjectAPI
}

func New(stdio iocli.IO, authService auth.Service, apiClient ProjectAPI) *Cli {
	return &Cli{
		io:          stdio,
		authService: authService,
		apiClient:   apiClient,
	}
}

// Run выполняет команду. args содержит аргументы после имени команды.
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "projects":
		return c.runProjects(ctx, args)
	case "tasks":
		return c.runTasks(ctx, args)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// token возвращает токен действующей сессии
func (c *Cli) token(ctx context.Context) (string, error) {
	session, err := c.authService.Session(ctx)
	if err != nil {
		return "", err
	}
	return session.AccessToken, nil
}

// explain добавляет подсказку к ошибкам, которые исправляются повторным входом
func explain(err error) error {
	if api.IsUnauthorized(err) {
		return fmt.Errorf("%w (run 'pmctl login' again)", err)
	}
	return err
}

// PrintUsage выводит справку по командам
func PrintUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, usage)
}

const usage = `pmctl - project management client

Usage:
  pmctl [OPTIONS] COMMAND [ARGS]

Options:
  --version        Show version information
  --server URL     Server URL (default: http://localhost:8000)
  --db PATH        Path to local session database (default: pmctl.db)

Commands:
  register                          Register new user
  login                             Login and save the session
  logout                            Revoke the token and delete the session
  status                            Show authentication status
  projects [list]                   List projects
  projects create NAME              Create a project
  tasks [list [PROJECT_ID]]         List tasks, optionally of one project
  tasks create PROJECT_ID TITLE     Create a task
  tasks status TASK_ID STATUS       Move a task (todo, in-progress, in-review, done)
  tasks delete TASK_ID              Delete a task

Examples:
  pmctl register
  pmctl login
  pmctl projects create "Website redesign"
  pmctl tasks create 0b8f... "Write landing copy"
  pmctl tasks status 5c1e... in-progress
  pmctl --server https://pm.example.com status
`
