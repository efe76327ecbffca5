package models

import "time"

// User представляет пользователя в системе
type User struct {
	CreatedAt    time.Time `json:"createdAt"` // время создания
	UpdatedAt    time.Time `json:"updatedAt"` // время последнего обновления
	FirstName    *string   `json:"firstName"` // имя (опционально)
	LastName     *string   `json:"lastName"`  // фамилия (опционально)
	Avatar       *string   `json:"avatar"`    // URL аватара (опционально)
	ID           string    `json:"id"`        // UUID пользователя
	Email        string    `json:"email"`     // уникальный email, используется как логин
	PasswordHash string    `json:"-"`         // хеш пароля (argon2id или bcrypt), наружу не отдается
}

// RevokedToken представляет отозванный access token (после logout)
type RevokedToken struct {
	ExpiresAt time.Time `json:"expiresAt"` // после этого момента запись можно удалить
	JTI       string    `json:"jti"`       // идентификатор токена
}
