package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/pkg/api"
)

const defaultTimeout = 30 * time.Second

// Error ошибка, которую вернул сервер (статус вне диапазона 2xx)
type Error struct {
	Status     string // текст статуса из тела ответа, например "Unauthorized"
	Detail     string
	StatusCode int
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Status)
}

// IsUnauthorized сообщает, что сервер отклонил токен (401)
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Заголовок Authorization не переносится на редирект по умолчанию
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*models.User, error) {
	var user models.User
	if err := c.doRequest(ctx, http.MethodPost, "/users/", "", req, &user); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &user, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/users/login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Logout отзывает токен на сервере
func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/users/logout", token, nil, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Me возвращает профиль владельца токена
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	if err := c.doRequest(ctx, http.MethodGet, "/users/me", token, nil, &user); err != nil {
		return nil, fmt.Errorf("get profile request failed: %w", err)
	}
	return &user, nil
}

// ListProjects возвращает все проекты
func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := c.doRequest(ctx, http.MethodGet, "/projects/", "", nil, &projects); err != nil {
		return nil, fmt.Errorf("list projects request failed: %w", err)
	}
	return projects, nil
}

// CreateProject создает проект, владельцем становится текущий пользователь
func (c *Client) CreateProject(ctx context.Context, token string, req api.ProjectCreateRequest) (*models.Project, error) {
	var project models.Project
	if err := c.doRequest(ctx, http.MethodPost, "/projects/", token, req, &project); err != nil {
		return nil, fmt.Errorf("create project request failed: %w", err)
	}
	return &project, nil
}

// ListTasks возвращает задачи, при непустом projectID только задачи этого проекта
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]models.Task, error) {
	path := "/tasks/"
	if projectID != "" {
		path += "?" + url.Values{"project_id": {projectID}}.Encode()
	}

	var tasks []models.Task
	if err := c.doRequest(ctx, http.MethodGet, path, "", nil, &tasks); err != nil {
		return nil, fmt.Errorf("list tasks request failed: %w", err)
	}
	return tasks, nil
}

// CreateTask создает задачу
func (c *Client) CreateTask(ctx context.Context, token string, req api.TaskCreateRequest) (*models.Task, error) {
	var task models.Task
	if err := c.doRequest(ctx, http.MethodPost, "/tasks/", token, req, &task); err != nil {
		return nil, fmt.Errorf("create task request failed: %w", err)
	}
	return &task, nil
}

// UpdateTask частично обновляет задачу
func (c *Client) UpdateTask(ctx context.Context, token, id string, req api.TaskUpdateRequest) (*models.Task, error) {
	var task models.Task
	if err := c.doRequest(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), token, req, &task); err != nil {
		return nil, fmt.Errorf("update task request failed: %w", err)
	}
	return &task, nil
}

// DeleteTask удаляет задачу
func (c *Client) DeleteTask(ctx context.Context, token, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), token, nil, nil); err != nil {
		return fmt.Errorf("delete task request failed: %w", err)
	}
	return nil
}

// doRequest выполняет HTTP запрос. Пустой token означает анонимный запрос.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			if errResp.Error != "" {
				apiErr.Status = errResp.Error
			}
			apiErr.Detail = errResp.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
