package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Store drivers for the credential store.
const (
	UserStoreMongo    = "mongo"
	UserStorePostgres = "postgres"
	UserStoreMemory   = "memory"
)

// Cache drivers for list responses.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin used in emailed links.
	PublicBaseURL string

	Mongo     MongoConfig
	UserStore string
	DBURL     string
	Redis     RedisConfig
	Cache     CacheConfig

	Auth  AuthConfig
	Admin AdminConfig

	CORSOrigins  []string
	RateLimit    RateLimitConfig
	MaxBodyBytes int64

	OTLPEndpoint string

	QueryLegacySingleOperator bool

	Notifier NotifierConfig
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CacheConfig struct {
	Driver string
	TTL    time.Duration
}

// AuthConfig is fixed at startup and read-only afterwards.
type AuthConfig struct {
	JWTSecret       string
	JWTExpiresIn    time.Duration
	CookieExpiresIn time.Duration
	BcryptCost      int
	ResetTokenTTL   time.Duration
}

type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type NotifierConfig struct {
	SimulateFailure bool
	Timeout         time.Duration
	Retries         int
}

// Load reads the environment, after merging ENV_FILE (default config.env) and .env when they exist.
func Load() (Config, error) {
	loadEnvFiles(getEnv("ENV_FILE", "config.env"), ".env")

	port := getEnvInt("PORT", 8080)

	cfg := Config{
		Env:           getEnv("APP_ENV", "dev"),
		Port:          port,
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+strconv.Itoa(port)), "/"),
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
			Database: getEnv("MONGO_DB", "tourhub"),
		},
		UserStore: strings.ToLower(getEnv("USER_STORE", UserStoreMongo)),
		DBURL:     buildDBURL(),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Driver: strings.ToLower(getEnv("CACHE_DRIVER", CacheMemory)),
			TTL:    getEnvDuration("CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			JWTExpiresIn:    getEnvDuration("JWT_EXPIRES_IN", 90*24*time.Hour),
			CookieExpiresIn: time.Duration(getEnvInt("JWT_COOKIE_EXPIRES_IN", 90)) * 24 * time.Hour,
			BcryptCost:      getEnvInt("BCRYPT_COST", 10),
			ResetTokenTTL:   getEnvDuration("RESET_TOKEN_TTL", 10*time.Minute),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Administrator"),
		},
		CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("AUTH_RATE_LIMIT_RPS", 1),
			Burst: getEnvInt("AUTH_RATE_LIMIT_BURST", 10),
		},
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		QueryLegacySingleOperator: getEnvBool("QUERY_LEGACY_SINGLE_OPERATOR", false),

		Notifier: NotifierConfig{
			SimulateFailure: getEnvBool("NOTIFIER_FAIL", false),
			Timeout:         getEnvDuration("NOTIFIER_TIMEOUT", 3*time.Second),
			Retries:         getEnvInt("NOTIFIER_RETRIES", 1),
		},
	}

	if cfg.Env == "dev" && cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-only-insecure-secret"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.JWTExpiresIn <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Auth.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("RESET_TOKEN_TTL must be positive"))
	}

	if u, err := url.Parse(c.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.PublicBaseURL))
	}

	switch c.UserStore {
	case UserStoreMongo, UserStorePostgres, UserStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown USER_STORE %q", c.UserStore))
	}

	switch c.Cache.Driver {
	case CacheMemory, CacheRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_DRIVER %q", c.Cache.Driver))
	}

	return errors.Join(errs...)
}

func (c Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "tourhub")
	pass := getEnv("DB_PASSWORD", "tourhub")
	name := getEnv("DB_NAME", "tourhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// existing env vars always win over file values.
func loadEnvFiles(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fallback
		}
		return f
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

// accepts Go durations ("15m") and bare numbers of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	if d, err := time.ParseDuration(v); err == nil {
		return d
	}

	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}

	// "90d" style values from the old config.env
	if strings.HasSuffix(v, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(v, "d")); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
	}

	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
