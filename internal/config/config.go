package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	RBAC       RBACConfig
	Assessment AssessmentConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host           string   `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port           int      `env:"SERVER_PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"200"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int    `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns int    `env:"DB_MIN_CONNS" envDefault:"5"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	JWTSecret    string `env:"JWT_SECRET"`
	OIDCIssuer   string `env:"OIDC_ISSUER_URL"`
	OIDCClientID string `env:"OIDC_CLIENT_ID"`
}

// OIDCEnabled reports whether bearer tokens are verified against the corporate identity provider.
func (a AuthConfig) OIDCEnabled() bool {
	return a.OIDCIssuer != "" && a.OIDCClientID != ""
}

// Role-admin policies.
const (
	RoleAdminPolicyLegacy     = "legacy"
	RoleAdminPolicyPermission = "permission"
)

type RBACConfig struct {
	CacheTTL        time.Duration `env:"RBAC_CACHE_TTL" envDefault:"5m"`
	RoleAdminPolicy string        `env:"RBAC_ROLE_ADMIN_POLICY" envDefault:"legacy"`
}

type AssessmentConfig struct {
	MaxAttempts           int           `env:"ASSESSMENT_MAX_ATTEMPTS" envDefault:"0"`
	RetryCooldown         time.Duration `env:"ASSESSMENT_RETRY_COOLDOWN" envDefault:"0s"`
	CertificateCodeLength int           `env:"CERTIFICATE_CODE_LENGTH" envDefault:"12"`
}

type WorkerConfig struct {
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"10"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" && !c.Auth.OIDCEnabled() {
		missing = append(missing, "JWT_SECRET or OIDC_ISSUER_URL+OIDC_CLIENT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	switch c.RBAC.RoleAdminPolicy {
	case RoleAdminPolicyLegacy, RoleAdminPolicyPermission:
	default:
		return fmt.Errorf("invalid RBAC_ROLE_ADMIN_POLICY %q", c.RBAC.RoleAdminPolicy)
	}
	if c.Assessment.MaxAttempts < 0 {
		return fmt.Errorf("invalid ASSESSMENT_MAX_ATTEMPTS: must be >= 0")
	}
	if c.Assessment.CertificateCodeLength < 8 {
		return fmt.Errorf("invalid CERTIFICATE_CODE_LENGTH: must be >= 8")
	}
	return nil
}
