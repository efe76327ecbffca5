package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/pmtool/internal/server/auth"
	"github.com/iudanet/pmtool/pkg/api"
)

const maxRequestBody = 1 << 20

// responder общие помощники для всех обработчиков
type responder struct {
	logger *slog.Logger
}

// sendJSON отправляет JSON ответ
func (h responder) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h responder) sendError(w http.ResponseWriter, detail string, statusCode int) {
	h.sendJSON(w, api.ErrorResponse{
		Error:  http.StatusText(statusCode),
		Detail: detail,
	}, statusCode)
}

// internalError логирует причину и отвечает 500 без деталей
func (h responder) internalError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	h.sendError(w, "internal server error", http.StatusInternalServerError)
}

// decodeJSON читает тело запроса в dst. При ошибке сам отвечает 400 и возвращает false.
func (h responder) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request body", slog.Any("error", err))

		detail := "invalid request body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			detail = "request body too large"
		} else if errors.Is(err, io.EOF) {
			detail = "request body is required"
		}
		h.sendError(w, detail, http.StatusBadRequest)
		return false
	}
	return true
}

// validationError отвечает 422 с текстом ошибки валидации
func (h responder) validationError(w http.ResponseWriter, err error) {
	h.sendError(w, err.Error(), http.StatusUnprocessableEntity)
}

// currentIdentity достает пользователя, установленного AuthMiddleware.
// Если маршрут по ошибке не защищен, отвечает 401.
func (h responder) currentIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "identity missing in protected handler", slog.String("path", r.URL.Path))
		w.Header().Set("WWW-Authenticate", "Bearer")
		h.sendError(w, "Not authenticated", http.StatusUnauthorized)
		return nil, false
	}
	return id, true
}

// queryInt читает целый query параметр, def при отсутствии или ошибке разбора
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
