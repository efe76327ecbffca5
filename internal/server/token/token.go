// Package token выпускает и проверяет JWT access токены.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken токен не прошел проверку: подпись, структура, алгоритм или срок действия
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired срок действия токена истек. Всегда оборачивается в ErrInvalidToken.
	ErrTokenExpired = errors.New("token expired")

	// ErrEmptySecret не задан ключ подписи
	ErrEmptySecret = errors.New("token secret is empty")

	// ErrUnsupportedAlgorithm алгоритм не из семейства HMAC
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

const (
	// DefaultAlgorithm алгоритм подписи по умолчанию
	DefaultAlgorithm = "HS256"
	// DefaultTTL время жизни токена по умолчанию
	DefaultTTL = 7 * 24 * time.Hour
)

// Config конфигурация сервиса токенов
type Config struct {
	Secret    []byte        // симметричный ключ подписи
	Algorithm string        // HS256, HS384 или HS512
	TTL       time.Duration // время жизни access токена
}

// Claims набор claims access токена: sub (id пользователя), exp, iat, jti
type Claims struct {
	jwt.RegisteredClaims
}

// Issued результат выпуска токена
type Issued struct {
	ExpiresAt time.Time
	Token     string
	JTI       string
}

// Service выпускает и проверяет токены. Не хранит состояния между вызовами
// и безопасен для конкурентного использования.
type Service struct {
	now    func() time.Time
	method jwt.SigningMethod
	secret []byte
	ttl    time.Duration
}

// Option настраивает Service
type Option func(*Service)

// WithClock подменяет источник текущего времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создает сервис токенов.
// Пустой ключ и алгоритмы вне семейства HMAC отвергаются.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}

	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &Service{
		secret: cfg.Secret,
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Algorithm возвращает имя алгоритма подписи
func (s *Service) Algorithm() string {
	return s.method.Alg()
}

// TTL возвращает время жизни токена
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue выпускает токен для subject (id пользователя)
func (s *Service) Issue(subject string) (*Issued, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject cannot be empty")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Issued{
		Token:     signed,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate проверяет подпись, алгоритм и срок действия токена.
// Любая проблема возвращается как ошибка, оборачивающая ErrInvalidToken;
// истекший токен дополнительно распознается через errors.Is(err, ErrTokenExpired).
func (s *Service) Validate(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			// Проверяем что используется правильный алгоритм подписи
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}

// ExpiresAtTime возвращает момент истечения токена (zero time если exp отсутствует)
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
