package auth

import (
	"context"

	"github.com/iudanet/pmtool/internal/client/storage"
	"github.com/iudanet/pmtool/internal/models"
)

//go:generate moq -out service_mock.go . Service

// Service управляет регистрацией, входом и локальной сессией клиента
type Service interface {
	// Register регистрирует нового пользователя. Сессия не создается.
	Register(ctx context.Context, req RegisterInput) (*models.User, error)

	// Login выполняет вход и сохраняет сессию
	Login(ctx context.Context, email, password string) (*storage.Session, error)

	// Logout отзывает токен на сервере (best effort) и удаляет локальную сессию
	Logout(ctx context.Context) error

	// Session возвращает действующую сессию.
	// ErrNotAuthenticated, если входа не было; ErrSessionExpired, если токен истек.
	Session(ctx context.Context) (*storage.Session, error)

	// Stored возвращает сохраненную сессию без проверки срока
	Stored(ctx context.Context) (*storage.Session, error)
}
