// Package auth устанавливает личность вызывающего по bearer токену.
// Пакет не зависит от HTTP: middleware только достает заголовок и
// переводит ошибки Resolve в ответ 401.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
	"github.com/iudanet/pmtool/internal/server/token"
)

var (
	// ErrMissingToken запрос без bearer токена
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidCredentials токен не прошел проверку или отозван
	ErrInvalidCredentials = errors.New("invalid authentication credentials")

	// ErrUserNotFound токен валиден, но пользователя уже нет
	ErrUserNotFound = errors.New("user not found")
)

// TokenValidator проверяет токен и возвращает его claims
type TokenValidator interface {
	Validate(raw string) (*token.Claims, error)
}

// UserLookup ищет пользователя по id
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// RevocationChecker проверяет, отозван ли токен
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Identity аутентифицированный пользователь и токен, которым он представился
type Identity struct {
	User   *models.User
	Claims *token.Claims
}

// UserID возвращает id пользователя
func (i *Identity) UserID() string {
	return i.User.ID
}

// Resolver превращает bearer токен в Identity
type Resolver struct {
	tokens  TokenValidator
	users   UserLookup
	revoked RevocationChecker
}

// NewResolver создает Resolver. revoked может быть nil, тогда отзыв не проверяется.
func NewResolver(tokens TokenValidator, users UserLookup, revoked RevocationChecker) *Resolver {
	return &Resolver{
		tokens:  tokens,
		users:   users,
		revoked: revoked,
	}
}

// Resolve проверяет токен, отзыв и существование пользователя.
// Ошибки ErrMissingToken, ErrInvalidCredentials и ErrUserNotFound означают 401,
// любая другая ошибка это сбой хранилища.
func (r *Resolver) Resolve(ctx context.Context, bearer string) (*Identity, error) {
	if bearer == "" {
		return nil, ErrMissingToken
	}

	claims, err := r.tokens.Validate(bearer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	if r.revoked != nil && claims.ID != "" {
		revoked, err := r.revoked.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", ErrInvalidCredentials)
		}
	}

	user, err := r.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &Identity{User: user, Claims: claims}, nil
}

// ExtractBearer достает токен из значения заголовка Authorization.
// Схема сравнивается без учета регистра. Пустая строка означает, что токена нет.
func ExtractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type contextKey struct{}

// WithIdentity кладет Identity в контекст
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext достает Identity из контекста
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}
