// Package redisstore хранит отозванные access токены в Redis.
// Каждый отзыв живет как ключ с TTL до момента истечения токена,
// поэтому отдельная очистка не нужна.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "pmtool:revoked:"

// Config параметры подключения к Redis
type Config struct {
	Addr     string
	Password string
	Prefix   string // префикс ключей, по умолчанию pmtool:revoked:
	DB       int
}

// RevocationStore реализует storage.RevocationStorage поверх Redis
type RevocationStore struct {
	rdb    redis.UniversalClient
	now    func() time.Time
	prefix string
}

// New подключается к Redis и проверяет соединение
func New(ctx context.Context, cfg Config) (*RevocationStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewWithClient(rdb, cfg.Prefix), nil
}

// NewWithClient оборачивает готовый клиент
func NewWithClient(rdb redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RevocationStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RevocationStore) key(jti string) string {
	return s.prefix + jti
}

// RevokeToken помечает jti отозванным до expiresAt (TTL = expiresAt - now)
func (s *RevocationStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		// Токен уже истек сам, валидация его и так отвергнет
		return nil
	}

	if err := s.rdb.SetNX(ctx, s.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}

// IsTokenRevoked проверяет наличие jti в списке отозванных
func (s *RevocationStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}

	return n > 0, nil
}

// Ping проверяет доступность Redis
func (s *RevocationStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (s *RevocationStore) Close() error {
	return s.rdb.Close()
}
