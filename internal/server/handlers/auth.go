package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
	"github.com/iudanet/pmtool/internal/server/token"
	"github.com/iudanet/pmtool/internal/validation"
	"github.com/iudanet/pmtool/pkg/api"
)

// invalidLoginDetail один ответ и для неизвестного email, и для неверного пароля
const invalidLoginDetail = "Invalid email or password"

// PasswordHasher хеширует и проверяет пароли
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, stored string) (bool, error)
	VerifyDummy(ctx context.Context, plaintext string)
	NeedsRehash(stored string) bool
}

// TokenIssuer выпускает access токены
type TokenIssuer interface {
	Issue(subject string) (*token.Issued, error)
}

// AuthHandler обрабатывает регистрацию, логин и профиль пользователя
type AuthHandler struct {
	responder
	users       storage.UserStorage
	hasher      PasswordHasher
	tokens      TokenIssuer
	revocations storage.RevocationStorage
}

// NewAuthHandler создает новый handler для авторизации.
// revocations может быть nil, тогда logout не отзывает токен.
func NewAuthHandler(logger *slog.Logger, users storage.UserStorage, hasher PasswordHasher, tokens TokenIssuer, revocations storage.RevocationStorage) *AuthHandler {
	return &AuthHandler{
		responder:   responder{logger: logger},
		users:       users,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
	}
}

// ListUsers обрабатывает GET /users/
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.internalError(r.Context(), w, "failed to list users", err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	h.sendJSON(w, users, http.StatusOK)
}

// Register обрабатывает POST /users/
// Регистрация нового пользователя. Пароль хешируется до записи в БД.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	email := validation.NormalizeEmail(req.Email)
	if err := validation.ValidateEmail(email); err != nil {
		h.validationError(w, err)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		h.validationError(w, err)
		return
	}
	if err := validateProfile(req.FirstName, req.LastName); err != nil {
		h.validationError(w, err)
		return
	}

	// Дешевая проверка до дорогого хеширования
	if _, err := h.users.GetUserByEmail(ctx, email); err == nil {
		h.logger.WarnContext(ctx, "user already exists")
		h.sendError(w, "User with this email already exists", http.StatusConflict)
		return
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		h.internalError(ctx, w, "failed to get user", err)
		return
	}

	hash, err := h.hasher.Hash(ctx, req.Password)
	if err != nil {
		h.internalError(ctx, w, "failed to hash password", err)
		return
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Avatar:       req.Avatar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.users.CreateUser(ctx, user); err != nil {
		// Гонка двух регистраций: уникальный индекс решает
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.sendError(w, "User with this email already exists", http.StatusConflict)
			return
		}
		h.internalError(ctx, w, "failed to create user", err)
		return
	}

	h.logger.InfoContext(ctx, "user registered successfully", slog.String("user_id", user.ID))

	h.sendJSON(w, user, http.StatusOK)
}

// Login обрабатывает POST /users/login
// Неизвестный email и неверный пароль дают одинаковый ответ 401.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	email := validation.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		h.validationError(w, errors.New("email and password are required"))
		return
	}

	user, err := h.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Тратим столько же времени, сколько на настоящую проверку
			h.hasher.VerifyDummy(ctx, req.Password)
			h.logger.WarnContext(ctx, "login failed: unknown email")
			h.sendError(w, invalidLoginDetail, http.StatusUnauthorized)
			return
		}
		h.internalError(ctx, w, "failed to get user", err)
		return
	}

	ok, err := h.hasher.Verify(ctx, req.Password, user.PasswordHash)
	if err != nil {
		h.internalError(ctx, w, "failed to verify password", err)
		return
	}
	if !ok {
		h.logger.WarnContext(ctx, "login failed: wrong password", slog.String("user_id", user.ID))
		h.sendError(w, invalidLoginDetail, http.StatusUnauthorized)
		return
	}

	if h.hasher.NeedsRehash(user.PasswordHash) {
		h.rehash(ctx, user.ID, req.Password)
	}

	issued, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.internalError(ctx, w, "failed to issue access token", err)
		return
	}

	h.logger.InfoContext(ctx, "user logged in successfully", slog.String("user_id", user.ID))

	h.sendJSON(w, api.TokenResponse{
		AccessToken: issued.Token,
		TokenType:   "bearer",
	}, http.StatusOK)
}

// rehash обновляет устаревший хеш после успешного логина. Ошибка не мешает логину.
func (h *AuthHandler) rehash(ctx context.Context, userID, password string) {
	hash, err := h.hasher.Hash(ctx, password)
	if err == nil {
		err = h.users.UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "failed to upgrade password hash", slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	h.logger.InfoContext(ctx, "password hash upgraded", slog.String("user_id", userID))
}

// Me обрабатывает GET /users/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}
	h.sendJSON(w, id.User, http.StatusOK)
}

// UpdateMe обрабатывает PATCH /users/me
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	var req api.UserUpdateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := validateProfile(req.FirstName, req.LastName); err != nil {
		h.validationError(w, err)
		return
	}

	user := *id.User
	if req.FirstName != nil {
		user.FirstName = req.FirstName
	}
	if req.LastName != nil {
		user.LastName = req.LastName
	}
	if req.Avatar != nil {
		user.Avatar = req.Avatar
	}
	user.UpdatedAt = time.Now().UTC()

	if req.Password != nil {
		if err := validation.ValidatePassword(*req.Password); err != nil {
			h.validationError(w, err)
			return
		}
		hash, err := h.hasher.Hash(ctx, *req.Password)
		if err != nil {
			h.internalError(ctx, w, "failed to hash password", err)
			return
		}
		if err := h.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			h.internalError(ctx, w, "failed to update password", err)
			return
		}
		user.PasswordHash = hash
	}

	if err := h.users.UpdateUser(ctx, &user); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.sendError(w, "User not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to update user", err)
		return
	}

	h.logger.InfoContext(ctx, "user profile updated", slog.String("user_id", user.ID))
	h.sendJSON(w, &user, http.StatusOK)
}

// Logout обрабатывает POST /users/logout
// Отзывает текущий access токен до его истечения.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	if h.revocations != nil && id.Claims != nil && id.Claims.ID != "" {
		if err := h.revocations.RevokeToken(ctx, id.Claims.ID, id.Claims.ExpiresAtTime()); err != nil {
			h.internalError(ctx, w, "failed to revoke token", err)
			return
		}
	}

	h.logger.InfoContext(ctx, "user logged out successfully", slog.String("user_id", id.UserID()))

	h.sendJSON(w, api.MessageResponse{Message: "Successfully logged out"}, http.StatusOK)
}

// validateProfile проверяет длину имени и фамилии. Пустые значения допустимы.
func validateProfile(firstName, lastName *string) error {
	if firstName != nil && strings.TrimSpace(*firstName) != "" {
		if err := validation.ValidateName("firstName", *firstName); err != nil {
			return err
		}
	}
	if lastName != nil && strings.TrimSpace(*lastName) != "" {
		if err := validation.ValidateName("lastName", *lastName); err != nil {
			return err
		}
	}
	return nil
}
