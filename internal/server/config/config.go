// Package config загружает конфигурацию сервера.
// Порядок приоритета: флаги командной строки, переменные окружения, файл .env, значения по умолчанию.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/iudanet/pmtool/internal/crypto"
	"github.com/iudanet/pmtool/internal/server/token"
)

var (
	// ErrSecretKeyMissing не задан JWT_SECRET_KEY
	ErrSecretKeyMissing = errors.New("JWT_SECRET_KEY is required")

	// ErrSecretKeyTooShort ключ слишком короткий для production
	ErrSecretKeyTooShort = errors.New("JWT_SECRET_KEY must be at least 32 bytes in production")

	// ErrUnsupportedAlgorithm JWT_ALGORITHM не из семейства HMAC
	ErrUnsupportedAlgorithm = errors.New("unsupported JWT_ALGORITHM")
)

const (
	// EnvProduction значение APP_ENV для боевого окружения
	EnvProduction = "production"

	minProductionSecretLen = 32
	dotEnvFile             = ".env"
)

var supportedAlgorithms = []string{"HS256", "HS384", "HS512"}

// Config конфигурация сервера
type Config struct {
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	AppEnv    string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// --- база данных ---
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	DatabaseUser     string `mapstructure:"DATABASE_USER"`
	DatabasePassword string `mapstructure:"DATABASE_PASSWORD"`
	DatabaseHost     string `mapstructure:"DATABASE_HOST"`
	DatabaseName     string `mapstructure:"DATABASE_NAME"`
	SQLitePath       string `mapstructure:"SQLITE_PATH"`
	DatabasePort     int    `mapstructure:"DATABASE_PORT"`

	// --- JWT ---
	JWTSecretKey    string `mapstructure:"JWT_SECRET_KEY"`
	JWTAlgorithm    string `mapstructure:"JWT_ALGORITHM"`
	TokenExpireDays int    `mapstructure:"JWT_ACCESS_TOKEN_EXPIRE_DAYS"`

	// --- хеширование паролей ---
	HashConcurrency   int    `mapstructure:"PASSWORD_HASH_CONCURRENCY"`
	Argon2MemoryKiB   uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Iterations  uint32 `mapstructure:"ARGON2_ITERATIONS"`
	Argon2Parallelism uint8  `mapstructure:"ARGON2_PARALLELISM"`

	// --- Redis (отзыв токенов), опционально ---
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"` // через запятую
	LoginRateLimit     int    `mapstructure:"LOGIN_RATE_LIMIT"`     // запросов в минуту с одного IP
	TrustedProxies     string `mapstructure:"TRUSTED_PROXIES"`      // CIDR или IP через запятую

	ShowVersion bool `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_USER", "pm_tool_user")
	v.SetDefault("DATABASE_PASSWORD", "")
	v.SetDefault("DATABASE_HOST", "")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_NAME", "pm_tool")
	v.SetDefault("SQLITE_PATH", "pmtool.db")

	v.SetDefault("JWT_SECRET_KEY", "")
	v.SetDefault("JWT_ALGORITHM", token.DefaultAlgorithm)
	v.SetDefault("JWT_ACCESS_TOKEN_EXPIRE_DAYS", 7)

	v.SetDefault("PASSWORD_HASH_CONCURRENCY", runtime.NumCPU())
	v.SetDefault("ARGON2_MEMORY_KIB", argon2id.DefaultParams.Memory)
	v.SetDefault("ARGON2_ITERATIONS", argon2id.DefaultParams.Iterations)
	v.SetDefault("ARGON2_PARALLELISM", argon2id.DefaultParams.Parallelism)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("TRUSTED_PROXIES", "")
}

// Load читает конфигурацию. args аргументы командной строки без имени программы.
// Проверка обязательных значений выполняется отдельно в Validate.
func Load(args []string) (*Config, error) {
	// .env нужен только для локальной разработки, уже заданные переменные не перезаписываются
	if _, err := os.Stat(dotEnvFile); err == nil {
		if err := godotenv.Load(dotEnvFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	fs := flag.NewFlagSet("pmtool-server", flag.ContinueOnError)
	addr := fs.String("a", "", "HTTP listen address (overrides HTTP_ADDR)")
	dsn := fs.String("d", "", "database URL (overrides DATABASE_URL)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *dsn != "" {
		cfg.DatabaseURL = *dsn
	}

	return &cfg, nil
}

// Validate проверяет обязательные параметры. Ошибка фатальна для старта сервера.
func (c *Config) Validate() error {
	if c.JWTSecretKey == "" {
		return ErrSecretKeyMissing
	}
	if c.IsProduction() && len(c.JWTSecretKey) < minProductionSecretLen {
		return ErrSecretKeyTooShort
	}

	alg := strings.ToUpper(c.JWTAlgorithm)
	supported := false
	for _, a := range supportedAlgorithms {
		if a == alg {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, c.JWTAlgorithm)
	}
	c.JWTAlgorithm = alg

	if c.TokenExpireDays <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRE_DAYS must be positive, got %d", c.TokenExpireDays)
	}
	if c.LoginRateLimit < 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must not be negative, got %d", c.LoginRateLimit)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}

	return nil
}

// IsProduction возвращает true для APP_ENV=production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, EnvProduction)
}

// TokenConfig параметры сервиса токенов
func (c *Config) TokenConfig() token.Config {
	return token.Config{
		Secret:    []byte(c.JWTSecretKey),
		Algorithm: c.JWTAlgorithm,
		TTL:       time.Duration(c.TokenExpireDays) * 24 * time.Hour,
	}
}

// PasswordConfig параметры хеширования паролей
func (c *Config) PasswordConfig() crypto.PasswordConfig {
	params := *argon2id.DefaultParams
	if c.Argon2MemoryKiB > 0 {
		params.Memory = c.Argon2MemoryKiB
	}
	if c.Argon2Iterations > 0 {
		params.Iterations = c.Argon2Iterations
	}
	if c.Argon2Parallelism > 0 {
		params.Parallelism = c.Argon2Parallelism
	}
	return crypto.PasswordConfig{
		Params:      &params,
		Concurrency: c.HashConcurrency,
	}
}

// AllowedOrigins список origin для CORS. Пустой список отключает CORS.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// TrustedProxyPrefixes разбирает TRUSTED_PROXIES. Одиночный IP становится
// сетью из одного адреса. Пустое значение: заголовкам прокси не верим.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range strings.Split(c.TrustedProxies, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", item, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", item, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// SlogLevel уровень логирования из LOG_LEVEL
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// DSN строка подключения к базе данных.
// DATABASE_URL имеет приоритет, затем PostgreSQL из DATABASE_HOST и соседних ключей,
// иначе файл SQLite.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return NormalizeDatabaseURL(c.DatabaseURL)
	}
	if c.DatabaseHost != "" {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.DatabaseUser, c.DatabasePassword),
			Host:     net.JoinHostPort(c.DatabaseHost, strconv.Itoa(c.DatabasePort)),
			Path:     "/" + c.DatabaseName,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	}
	return c.SQLitePath
}

// NormalizeDatabaseURL кодирует пароль в URL базы данных, если в нем есть спецсимволы.
// Хост отделяется по последнему @ в authority, поэтому "postgres://u:p@ss@db/x"
// превращается в "postgres://u:p%40ss@db/x", а @ в query не трогается.
// Пароль с / или # ищется до начала query. Уже закодированный пароль не кодируется повторно.
func NormalizeDatabaseURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}

	authEnd := strings.IndexAny(rest, "/?#")
	if authEnd < 0 {
		authEnd = len(rest)
	}
	at := strings.LastIndex(rest[:authEnd], "@")
	if at < 0 {
		queryStart := strings.IndexByte(rest, '?')
		if queryStart < 0 {
			queryStart = len(rest)
		}
		if at = strings.LastIndex(rest[:queryStart], "@"); at < 0 {
			return raw
		}
	}

	user, password, ok := strings.Cut(rest[:at], ":")
	if !ok {
		return raw
	}

	if decoded, err := url.PathUnescape(password); err == nil && strings.Contains(password, "%") {
		password = decoded
	}
	encoded := strings.ReplaceAll(url.QueryEscape(password), "+", "%20")

	return scheme + "://" + user + ":" + encoded + rest[at:]
}

// String реализует интерфейс Stringer. Секреты маскируются.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  HTTPAddr: %s\n", c.HTTPAddr)
	fmt.Fprintf(&sb, "  AppEnv: %s\n", c.AppEnv)
	fmt.Fprintf(&sb, "  LogLevel: %s\n", c.LogLevel)
	fmt.Fprintf(&sb, "  LogFormat: %s\n", c.LogFormat)
	fmt.Fprintf(&sb, "  Database: %s\n", maskDSN(c.DSN()))
	fmt.Fprintf(&sb, "  JWTSecretKey: %s\n", mask(c.JWTSecretKey))
	fmt.Fprintf(&sb, "  JWTAlgorithm: %s\n", c.JWTAlgorithm)
	fmt.Fprintf(&sb, "  TokenExpireDays: %d\n", c.TokenExpireDays)
	fmt.Fprintf(&sb, "  HashConcurrency: %d\n", c.HashConcurrency)
	fmt.Fprintf(&sb, "  RedisAddr: %s\n", c.RedisAddr)
	fmt.Fprintf(&sb, "  RedisPassword: %s\n", mask(c.RedisPassword))
	fmt.Fprintf(&sb, "  CORSAllowedOrigins: %s\n", c.CORSAllowedOrigins)
	fmt.Fprintf(&sb, "  LoginRateLimit: %d\n", c.LoginRateLimit)
	fmt.Fprintf(&sb, "  TrustedProxies: %s\n", c.TrustedProxies)
	return sb.String()
}

func mask(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	return "********"
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
