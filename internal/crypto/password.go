package crypto

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Потолок параметров argon2id для хешей из базы. Не зависит от текущей
// конфигурации: хеши, посчитанные до снижения ARGON2_*, продолжают проверяться.
const (
	maxStoredMemoryKiB   = 1 << 20 // 1 GiB
	maxStoredIterations  = 16
	maxStoredParallelism = 64
	minStoredKeyLength   = 16
	maxStoredKeyLength   = 128
)

// dummyPassword используется для выравнивания времени ответа, когда пользователь не найден
const dummyPassword = "pmtool-dummy-password"

// PasswordConfig параметры хеширования паролей
type PasswordConfig struct {
	// Params параметры argon2id для новых хешей
	Params *argon2id.Params
	// Concurrency сколько хешей может считаться одновременно.
	// Argon2id держит Params.Memory KiB на каждый вызов, поэтому без лимита
	// пачка логинов легко выедает память сервера.
	Concurrency int
}

// DefaultPasswordConfig возвращает параметры по умолчанию
func DefaultPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Params:      argon2id.DefaultParams,
		Concurrency: runtime.NumCPU(),
	}
}

// PasswordHasher хеширует и проверяет пароли пользователей.
// Новые пароли хешируются argon2id (PHC строка $argon2id$v=19$m=...,t=...,p=...$salt$key),
// для проверки дополнительно поддерживаются bcrypt хеши ($2a$, $2b$, $2y$),
// оставшиеся от предыдущей версии сервиса.
//
// Безопасен для конкурентного использования.
type PasswordHasher struct {
	params    *argon2id.Params
	sem       *semaphore.Weighted
	dummyOnce sync.Once
	dummyHash string
}

// NewPasswordHasher создает новый PasswordHasher
func NewPasswordHasher(cfg PasswordConfig) *PasswordHasher {
	params := cfg.Params
	if params == nil {
		params = argon2id.DefaultParams
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	return &PasswordHasher{
		params: params,
		sem:    semaphore.NewWeighted(int64(concurrency)),
	}
}

// Hash возвращает argon2id хеш пароля со случайной солью.
// Ошибка возвращается только если контекст отменен до получения слота
// или если не удалось получить случайные байты.
func (h *PasswordHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire hashing slot: %w", err)
	}
	defer h.sem.Release(1)

	hash, err := argon2id.CreateHash(plaintext, h.params)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return hash, nil
}

// Verify проверяет пароль против сохраненного хеша.
// Несовпадение и битый хеш дают false без ошибки.
// Ошибка возвращается только если контекст отменен до получения слота.
func (h *PasswordHasher) Verify(ctx context.Context, plaintext, stored string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("failed to acquire hashing slot: %w", err)
	}
	defer h.sem.Release(1)

	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return h.verifyArgon2(plaintext, stored), nil
	case isBcrypt(stored):
		// bcrypt сравнивает в constant time внутри CompareHashAndPassword
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext)) == nil, nil
	default:
		return false, nil
	}
}

// VerifyDummy выполняет проверку против заранее посчитанного хеша.
// Вызывается при логине с несуществующим email, чтобы время ответа
// не выдавало наличие пользователя.
func (h *PasswordHasher) VerifyDummy(ctx context.Context, plaintext string) {
	h.dummyOnce.Do(func() {
		hash, err := argon2id.CreateHash(dummyPassword, h.params)
		if err == nil {
			h.dummyHash = hash
		}
	})
	_, _ = h.Verify(ctx, plaintext, h.dummyHash)
}

// NeedsRehash сообщает, что хеш стоит пересчитать с текущими параметрами:
// это bcrypt хеш или argon2id с более слабыми параметрами.
func (h *PasswordHasher) NeedsRehash(stored string) bool {
	if isBcrypt(stored) {
		return true
	}

	params, _, _, err := argon2id.DecodeHash(stored)
	if err != nil {
		return false
	}

	return params.Memory < h.params.Memory ||
		params.Iterations < h.params.Iterations ||
		params.Parallelism < h.params.Parallelism ||
		params.KeyLength < h.params.KeyLength
}

func (h *PasswordHasher) verifyArgon2(plaintext, stored string) bool {
	params, _, _, err := argon2id.DecodeHash(stored)
	if err != nil {
		return false
	}

	// Хеш из базы не должен заставлять нас считать argon2 с произвольными параметрами
	if !withinBounds(params, storedLimits(h.params)) {
		return false
	}

	match, err := argon2id.ComparePasswordAndHash(plaintext, stored)
	if err != nil {
		return false
	}

	return match
}

// storedLimits возвращает потолок, но не ниже настроенных параметров
func storedLimits(current *argon2id.Params) *argon2id.Params {
	return &argon2id.Params{
		Memory:      max(maxStoredMemoryKiB, current.Memory),
		Iterations:  max(maxStoredIterations, current.Iterations),
		Parallelism: max(maxStoredParallelism, current.Parallelism),
	}
}

func withinBounds(got, limits *argon2id.Params) bool {
	return got.Memory <= limits.Memory &&
		got.Iterations <= limits.Iterations &&
		got.Parallelism <= limits.Parallelism &&
		got.KeyLength >= minStoredKeyLength &&
		got.KeyLength <= maxStoredKeyLength
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}
