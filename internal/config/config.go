package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	StorageBackend  string        `mapstructure:"STORAGE_BACKEND"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir   string        `mapstructure:"MIGRATIONS_DIR"`
	AutoMigrate     bool          `mapstructure:"AUTO_MIGRATE"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL     string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	TokenTTL        time.Duration `mapstructure:"TOKEN_TTL"`
	DevUserID       string        `mapstructure:"DEV_USER_ID"`
	BootstrapAdmins []string      `mapstructure:"BOOTSTRAP_ADMINS"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit       string        `mapstructure:"BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "STORAGE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MIGRATIONS_DIR", "AUTO_MIGRATE", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
	"AUTH_SIGNING_KEY", "TOKEN_TTL", "DEV_USER_ID", "BOOTSTRAP_ADMINS", "CORS_ORIGINS", "BODY_LIMIT",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("AUTH_ISSUER", "genetica")
	v.SetDefault("TOKEN_TTL", "8h")
	v.SetDefault("DEV_USER_ID", "dev-user")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "2M")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.BootstrapAdmins = splitList(cfg.BootstrapAdmins, v.GetString("BOOTSTRAP_ADMINS"))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	return cfg, nil
}

func splitList(parsed []string, raw string) []string {
	if len(parsed) == 0 && raw != "" {
		parsed = strings.Split(raw, ",")
	}
	out := parsed[:0]
	for _, s := range parsed {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is %q", BackendPostgres)
		}
	case BackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_BACKEND %q is not allowed in production", BackendMemory)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StorageBackend)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters")
	}
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	return nil
}
