package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/pmtool/internal/server/auth"
	"github.com/iudanet/pmtool/pkg/api"
)

// AuthMiddleware создает middleware для проверки bearer токена.
// При успехе кладет auth.Identity в контекст запроса, иначе отвечает 401
// до вызова следующего обработчика.
func AuthMiddleware(logger *slog.Logger, resolver *auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			bearer := auth.ExtractBearer(r.Header.Get("Authorization"))

			identity, err := resolver.Resolve(ctx, bearer)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrMissingToken):
					logger.DebugContext(ctx, "missing bearer token", slog.String("path", r.URL.Path))
					sendUnauthorized(w, "Not authenticated")
				case errors.Is(err, auth.ErrInvalidCredentials):
					logger.WarnContext(ctx, "invalid access token", slog.Any("error", err))
					sendUnauthorized(w, "Invalid authentication credentials")
				case errors.Is(err, auth.ErrUserNotFound):
					logger.WarnContext(ctx, "token subject not found")
					sendUnauthorized(w, "User not found")
				default:
					logger.ErrorContext(ctx, "failed to resolve identity", slog.Any("error", err))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
				return
			}

			logger.DebugContext(ctx, "user authenticated", slog.String("user_id", identity.UserID()))

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(ctx, identity)))
		})
	}
}

func sendUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, detail)
}

// writeError пишет ошибку в формате api.ErrorResponse
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:  http.StatusText(status),
		Detail: detail,
	})
}
