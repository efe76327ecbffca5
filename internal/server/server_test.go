package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/config"
	"github.com/iudanet/pmtool/internal/server/storage/sqlstore"
	"github.com/iudanet/pmtool/internal/server/token"
	"github.com/iudanet/pmtool/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:          "127.0.0.1:0",
		LogLevel:          "error",
		JWTSecretKey:      "end-to-end-test-secret",
		JWTAlgorithm:      "HS256",
		TokenExpireDays:   1,
		HashConcurrency:   2,
		Argon2MemoryKiB:   8 * 1024,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
	}
}

type testServer struct {
	*httptest.Server
	cfg   *config.Config
	store *sqlstore.Storage
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	store, err := sqlstore.New(context.Background(), filepath.Join(t.TempDir(), "pmtool.db"))
	require.NoError(t, err)

	srv, err := New(cfg, setupTestLogger(), store, store, "test")
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		_ = store.Close()
	})
	return &testServer{Server: ts, cfg: cfg, store: store}
}

// do выполняет запрос; body кодируется в JSON, bearer подставляется в Authorization
func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) registerAndLogin(t *testing.T, email, password string) (models.User, string) {
	t.Helper()

	resp := ts.do(t, http.MethodPost, "/users/", "", api.RegisterRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decode[models.User](t, resp)

	resp = ts.do(t, http.MethodPost, "/users/login", "", api.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := decode[api.TokenResponse](t, resp)
	require.Equal(t, "bearer", tok.TokenType)

	return user, tok.AccessToken
}

func TestServer_AuthFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())

	user, accessToken := ts.registerAndLogin(t, "alice@example.com", "password123")
	assert.Len(t, strings.Split(accessToken, "."), 3, "access token must be a compact JWT")

	t.Run("protected route with token", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/users/me", accessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		me := decode[models.User](t, resp)
		assert.Equal(t, user.ID, me.ID)
		assert.Equal(t, "alice@example.com", me.Email)
	})

	t.Run("protected route without token", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/users/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/users/login", "", api.LoginRequest{Email: "alice@example.com", Password: "wrongpassword"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid email or password", decode[api.ErrorResponse](t, resp).Detail)
	})

	t.Run("expired token", func(t *testing.T) {
		past, err := token.NewService(ts.cfg.TokenConfig(), token.WithClock(func() time.Time {
			return time.Now().Add(-48 * time.Hour)
		}))
		require.NoError(t, err)
		issued, err := past.Issue(user.ID)
		require.NoError(t, err)

		resp := ts.do(t, http.MethodGet, "/users/me", issued.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other, err := token.NewService(token.Config{Secret: []byte("some-other-secret")})
		require.NoError(t, err)
		issued, err := other.Issue(user.ID)
		require.NoError(t, err)

		resp := ts.do(t, http.MethodGet, "/users/me", issued.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/users", "", api.RegisterRequest{Email: "alice@example.com", Password: "password123"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("logout revokes token", func(t *testing.T) {
		_, tok := ts.registerAndLogin(t, "bob@example.com", "password123")

		resp := ts.do(t, http.MethodPost, "/users/logout", tok, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = ts.do(t, http.MethodGet, "/users/me", tok, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		// Новый логин выдает новый рабочий токен
		resp = ts.do(t, http.MethodPost, "/users/login", "", api.LoginRequest{Email: "bob@example.com", Password: "password123"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		fresh := decode[api.TokenResponse](t, resp)
		resp = ts.do(t, http.MethodGet, "/users/me", fresh.AccessToken, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServer_ProjectsAndTasks(t *testing.T) {
	ts := newTestServer(t, testConfig())
	owner, ownerToken := ts.registerAndLogin(t, "owner@example.com", "password123")
	viewer, viewerToken := ts.registerAndLogin(t, "viewer@example.com", "password123")

	resp := ts.do(t, http.MethodPost, "/projects", ownerToken, api.ProjectCreateRequest{Name: "Launch"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	project := decode[models.Project](t, resp)
	assert.Equal(t, owner.ID, project.OwnerID)

	resp = ts.do(t, http.MethodPost, "/projects/"+project.ID+"/members", ownerToken,
		api.MemberAddRequest{UserID: viewer.ID, Role: "VIEWER"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/tasks/", ownerToken, api.TaskCreateRequest{
		Title: "Ship it", ProjectID: project.ID, AssigneeID: &viewer.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decode[models.Task](t, resp)

	// VIEWER не может создавать задачи
	resp = ts.do(t, http.MethodPost, "/tasks", viewerToken, api.TaskCreateRequest{Title: "nope", ProjectID: project.ID})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Чтение публичное, оба варианта пути
	for _, path := range []string{"/tasks?project_id=" + project.ID, "/tasks/?project_id=" + project.ID} {
		resp = ts.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Len(t, decode[[]models.Task](t, resp), 1)
	}

	resp = ts.do(t, http.MethodGet, "/tasks/"+task.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Создание без токена
	resp = ts.do(t, http.MethodPost, "/projects/", "", api.ProjectCreateRequest{Name: "anon"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Исполнитель получил уведомление
	resp = ts.do(t, http.MethodGet, "/notifications/?unread=true", viewerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decode[[]models.Notification](t, resp)
	require.NotEmpty(t, notes)

	resp = ts.do(t, http.MethodGet, "/projects/"+project.ID+"/activity", ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[[]models.Activity](t, resp))

	resp = ts.do(t, http.MethodDelete, "/projects/"+project.ID, ownerToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/tasks/"+task.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "tasks are deleted with the project")
}

func TestServer_InfraRoutes(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp := ts.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello World", decode[api.MessageResponse](t, resp).Message)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[api.HealthResponse](t, resp)
	assert.Equal(t, "up", health.Database)
	assert.Equal(t, "test", health.Version)

	resp = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pmtool_http_requests_total{method="GET",route="GET /health",status="200"} 1`)

	resp = ts.do(t, http.MethodDelete, "/users/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_LoginRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRateLimit = 2
	ts := newTestServer(t, cfg)

	creds := api.LoginRequest{Email: "nobody@example.com", Password: "password123"}
	for i := 0; i < 2; i++ {
		resp := ts.do(t, http.MethodPost, "/users/login", "", creds)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := ts.do(t, http.MethodPost, "/users/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Остальные маршруты не ограничены
	resp = ts.do(t, http.MethodGet, "/tasks", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_LoginRateLimitIgnoresForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRateLimit = 2
	ts := newTestServer(t, cfg)

	body, err := json.Marshal(api.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	require.NoError(t, err)

	var codes []int
	for i := 0; i < 6; i++ {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/users/login", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}

	assert.Equal(t, []int{401, 401, 429, 429, 429, 429}, codes)
}

func TestServer_RegisterShortPassword(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp := ts.do(t, http.MethodPost, "/users/", "", api.RegisterRequest{Email: "user1@test.com", Password: "pass1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/users/login", "", api.LoginRequest{Email: "user1@test.com", Password: "pass1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RunShutdown(t *testing.T) {
	store, err := sqlstore.New(context.Background(), filepath.Join(t.TempDir(), "run.db"))
	require.NoError(t, err)

	srv, err := New(testConfig(), setupTestLogger(), store, store, "test")
	require.NoError(t, err)
	srv.closers = []func() error{store.Close}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
