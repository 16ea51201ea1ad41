// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/offgrid-labs/authd/internal/errs"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Addr is the address the HTTP server listens on (e.g. :8080).
	Addr string `mapstructure:"ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded signing key (RSA or ECDSA), inline or a file path.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded verification key, inline or a file path.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim fixed per deployment.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim fixed per deployment.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// AccessTokenTTL is the access token lifetime (e.g. "15m").
	AccessTokenTTL string `mapstructure:"ACCESS_TOKEN_TTL"`
	// RefreshTokenTTL is the refresh token lifetime (e.g. "720h").
	RefreshTokenTTL string `mapstructure:"REFRESH_TOKEN_TTL"`
	// BcryptCost is the password-hash cost factor (4-31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// LoginMaxFails is the failed-login threshold before a temporary block.
	LoginMaxFails int `mapstructure:"LOGIN_MAX_FAILS"`
	// LoginBlockMinutes is how long a blocked (account, ip) pair stays blocked.
	LoginBlockMinutes int `mapstructure:"LOGIN_BLOCK_MINUTES"`

	// Seed-only: initial admin account, created when all three are set.
	AdminUsername string `mapstructure:"ADMIN_USERNAME"`
	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored (e.g. in CI); env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "offgrid-auth")
	v.SetDefault("JWT_AUDIENCE", "offgrid-clients")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGIN_MAX_FAILS", 10)
	v.SetDefault("LOGIN_BLOCK_MINUTES", 15)

	// Bind explicitly so AutomaticEnv sees keys that are absent from .env.
	for _, key := range []string{
		"ADDR", "DATABASE_URL",
		"JWT_PRIVATE_KEY", "JWT_PUBLIC_KEY", "JWT_ISSUER", "JWT_AUDIENCE",
		"ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "BCRYPT_COST",
		"LOGIN_MAX_FAILS", "LOGIN_BLOCK_MINUTES",
		"ADMIN_USERNAME", "ADMIN_EMAIL", "ADMIN_PASSWORD",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required", errs.ErrInvalidConfig)
	}
	if c.JWTPrivateKey == "" || c.JWTPublicKey == "" {
		return fmt.Errorf("%w: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required", errs.ErrInvalidConfig)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("%w: BCRYPT_COST must be in [4,31]", errs.ErrInvalidConfig)
	}
	return nil
}
