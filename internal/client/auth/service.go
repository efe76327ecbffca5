package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/pmtool/internal/client/storage"
	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/validation"
	pkgapi "github.com/iudanet/pmtool/pkg/api"
)

var (
	// ErrNotAuthenticated нет сохраненной сессии
	ErrNotAuthenticated = errors.New("not authenticated, run 'pmctl login' first")

	// ErrSessionExpired срок токена истек
	ErrSessionExpired = errors.New("session expired, run 'pmctl login' again")
)

// API часть HTTP клиента, нужная для аутентификации
type API interface {
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*models.User, error)
}

// RegisterInput данные формы регистрации
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string // пустая строка не отправляется
	LastName  string
}

// AuthService реализует Service поверх API и локального хранилища
type AuthService struct {
	api    API
	store  storage.SessionStorage
	now    func() time.Time
	server string
}

var _ Service = (*AuthService)(nil)

// NewService создает сервис авторизации. server сохраняется в сессии.
func NewService(apiClient API, store storage.SessionStorage, server string) *AuthService {
	return &AuthService{
		api:    apiClient,
		store:  store,
		server: server,
		now:    time.Now,
	}
}

// Register регистрирует нового пользователя
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := validation.NormalizeEmail(in.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	req := pkgapi.RegisterRequest{
		Email:     email,
		Password:  in.Password,
		FirstName: optional(in.FirstName),
		LastName:  optional(in.LastName),
	}

	user, err := s.api.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return user, nil
}

// Login выполняет вход и сохраняет сессию
func (s *AuthService) Login(ctx context.Context, email, password string) (*storage.Session, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("invalid password: password cannot be empty")
	}

	resp, err := s.api.Login(ctx, pkgapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	// Идентификатор пользователя берется с сервера, а не из токена
	user, err := s.api.Me(ctx, resp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	session := &storage.Session{
		Email:       user.Email,
		UserID:      user.ID,
		Server:      s.server,
		AccessToken: resp.AccessToken,
		ExpiresAt:   tokenExpiry(resp.AccessToken),
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Logout выполняет выход из системы
func (s *AuthService) Logout(ctx context.Context) error {
	session, err := s.store.GetSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	if !session.Expired(s.now()) {
		// Сервер может быть недоступен, локальная сессия удаляется в любом случае
		if err := s.api.Logout(ctx, session.AccessToken); err != nil {
			slog.WarnContext(ctx, "failed to logout on server", slog.Any("error", err))
		}
	}

	if err := s.store.DeleteSession(ctx); err != nil {
		return fmt.Errorf("failed to delete local session: %w", err)
	}
	return nil
}

// Session возвращает действующую сессию
func (s *AuthService) Session(ctx context.Context) (*storage.Session, error) {
	session, err := s.Stored(ctx)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// Stored возвращает сохраненную сессию без проверки срока
func (s *AuthService) Stored(ctx context.Context) (*storage.Session, error) {
	session, err := s.store.GetSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// tokenExpiry читает exp из токена без проверки подписи, 0 если прочитать не удалось.
// Подпись проверяет сервер, клиенту срок нужен только для status.
func tokenExpiry(token string) int64 {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Unix()
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
