package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonLogger пишет записи в buf в формате JSON, по одной на строку
func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// logRecords разбирает все записи из buf
func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		rec := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "created", status: http.StatusCreated, wantLevel: "INFO"},
		{name: "redirect", status: http.StatusFound, wantLevel: "INFO"},
		{name: "validation error", status: http.StatusUnprocessableEntity, wantLevel: "WARN"},
		{name: "forbidden", status: http.StatusForbidden, wantLevel: "WARN"},
		{name: "storage failure", status: http.StatusInternalServerError, wantLevel: "ERROR"},
		{name: "database down", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := LoggingMiddleware(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodPost, "/projects/", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			records := logRecords(t, &buf)
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantLevel, records[0]["level"])
			assert.Equal(t, float64(tt.status), records[0]["status"])
		})
	}
}

func TestLoggingMiddleware_RecordFields(t *testing.T) {
	var buf bytes.Buffer
	handler := LoggingMiddleware(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"t1"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/tasks/?project_id=p1&status=TODO", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	req.Header.Set("User-Agent", "pmctl/dev")
	req.Header.Set("Authorization", "Bearer secret-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	records := logRecords(t, &buf)
	require.Len(t, records, 1)
	rec := records[0]

	assert.Equal(t, "HTTP request", rec["msg"])
	assert.Equal(t, "GET", rec["method"])
	assert.Equal(t, "/tasks/", rec["path"])
	assert.Equal(t, "10.0.0.7:51234", rec["remote_addr"])
	assert.Equal(t, "pmctl/dev", rec["user_agent"])
	assert.Equal(t, float64(200), rec["status"])
	assert.Equal(t, float64(len(`{"id":"t1"}`)), rec["bytes_written"])
	assert.Contains(t, rec, "duration_ms")
	assert.NotContains(t, rec, "route", "no ServeMux in the chain")

	assert.NotContains(t, buf.String(), "secret-token")
	assert.NotContains(t, buf.String(), "project_id")
}

func TestLoggingMiddleware_RouteFromServeMux(t *testing.T) {
	var buf bytes.Buffer

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	handler := LoggingMiddleware(jsonLogger(&buf))(mux)

	req := httptest.NewRequest(http.MethodDelete, "/tasks/42", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	records := logRecords(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "DELETE /tasks/{id}", records[0]["route"])
	assert.Equal(t, "/tasks/42", records[0]["path"])
}

func TestLoggingMiddleware_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer

	handler := RequestIDMiddleware()(LoggingMiddleware(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodDelete, "/tasks/1", nil)
	req.Header.Set(RequestIDHeader, "req-from-proxy")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	records := logRecords(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "req-from-proxy", records[0]["request_id"])
}

func TestLoggingWithSkip(t *testing.T) {
	var buf bytes.Buffer
	handler := LoggingWithSkip(jsonLogger(&buf), []string{"/health", "/metrics"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/health", "/metrics", "/health/", "/tags/"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	records := logRecords(t, &buf)
	require.Len(t, records, 2, "only exact skip paths are silent")
	assert.Equal(t, "/health/", records[0]["path"])
	assert.Equal(t, "/tags/", records[1]["path"])
}

func TestResponseWriter(t *testing.T) {
	t.Run("implicit 200", func(t *testing.T) {
		rw := wrapResponseWriter(httptest.NewRecorder())

		_, err := rw.Write([]byte("Hello, "))
		require.NoError(t, err)
		_, err = rw.Write([]byte("World!"))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, rw.statusCode)
		assert.Equal(t, int64(13), rw.written)
	})

	t.Run("first status wins", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := wrapResponseWriter(w)

		rw.WriteHeader(http.StatusCreated)
		rw.WriteHeader(http.StatusInternalServerError)

		assert.Equal(t, http.StatusCreated, rw.statusCode)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("write then header is ignored", func(t *testing.T) {
		rw := wrapResponseWriter(httptest.NewRecorder())

		_, _ = rw.Write([]byte("body"))
		rw.WriteHeader(http.StatusTeapot)

		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("wrapping is idempotent", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := wrapResponseWriter(w)

		assert.Same(t, rw, wrapResponseWriter(rw))
		assert.Equal(t, http.ResponseWriter(w), rw.Unwrap())
	})
}
