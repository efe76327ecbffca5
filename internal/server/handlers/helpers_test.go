package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pmtool/internal/crypto"
	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/auth"
	"github.com/iudanet/pmtool/pkg/api"
)

// newTestHasher argon2id с дешевыми параметрами, чтобы тесты были быстрыми
func newTestHasher() *crypto.PasswordHasher {
	return crypto.NewPasswordHasher(crypto.PasswordConfig{
		Params: &argon2id.Params{
			Memory:      8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Concurrency: 4,
	})
}

type testRequest struct {
	body       any
	user       *models.User
	identity   *auth.Identity // если задан, имеет приоритет над user
	pathValues map[string]string
	method     string
	target     string
}

// serve вызывает обработчик напрямую, подставляя path values и Identity,
// которые в сервере устанавливают ServeMux и AuthMiddleware
func serve(t *testing.T, h http.HandlerFunc, tr testRequest) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := tr.body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(tr.method, tr.target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range tr.pathValues {
		req.SetPathValue(k, v)
	}
	switch {
	case tr.identity != nil:
		req = req.WithContext(auth.WithIdentity(req.Context(), tr.identity))
	case tr.user != nil:
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{User: tr.user}))
	}

	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "body: %s", w.Body.String())
	return v
}

func errorDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[api.ErrorResponse](t, w).Detail
}

func strPtr(s string) *string { return &s }
