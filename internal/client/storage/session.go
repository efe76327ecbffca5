package storage

import (
	"context"
	"time"
)

// SessionStorage хранит сессию пользователя на клиенте.
// Одновременно активна только одна сессия.
type SessionStorage interface {
	// SaveSession сохраняет сессию, заменяя предыдущую
	SaveSession(ctx context.Context, session *Session) error

	// GetSession возвращает сохраненную сессию или ErrSessionNotFound
	GetSession(ctx context.Context) (*Session, error)

	// DeleteSession удаляет сессию (logout). ErrSessionNotFound, если ее нет.
	DeleteSession(ctx context.Context) error
}

// Session данные входа, сохраненные после login
type Session struct {
	Email       string `json:"email"`
	UserID      string `json:"user_id"`
	Server      string `json:"server"` // сервер, выдавший токен
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix секунды, 0 если срок неизвестен
}

// Expired сообщает, истек ли срок токена к моменту now
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return !now.Before(time.Unix(s.ExpiresAt, 0))
}
