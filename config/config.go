// Package config loads the service configuration from a YAML file and
// STOCKFX_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
	"github.com/classiqueozofficial1-web/stockfx-auth/database"
	"github.com/classiqueozofficial1-web/stockfx-auth/mailer"
)

// EnvPrefix is prepended to every environment override,
// e.g. STOCKFX_AUTH_SIGNING_KEY
const EnvPrefix = "STOCKFX"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Verification VerificationConfig `mapstructure:"verification"`
	Login        LoginConfig        `mapstructure:"login"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Debug           bool          `mapstructure:"debug"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Debug        bool   `mapstructure:"debug"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// AuthConfig holds the bearer token settings, it satisfies auth.Config
type AuthConfig struct {
	SigningKey      string   `mapstructure:"signing_key"`
	PreviousKeys    []string `mapstructure:"previous_signing_keys"`
	Issuer          string   `mapstructure:"issuer"`
	Audience        []string `mapstructure:"audience"`
	TokenExpiration int      `mapstructure:"token_expiration_hours"`
	BcryptCost      int      `mapstructure:"bcrypt_cost"`
}

var _ auth.Config = AuthConfig{}

func (a AuthConfig) GetSigningKey() string   { return a.SigningKey }
func (a AuthConfig) GetTokenExpiration() int { return a.TokenExpiration }
func (a AuthConfig) GetIssuer() string       { return a.Issuer }
func (a AuthConfig) GetAudience() []string   { return a.Audience }

type VerificationConfig struct {
	Mode           string        `mapstructure:"mode"`
	CodeLength     int           `mapstructure:"code_length"`
	TTL            time.Duration `mapstructure:"ttl"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	URL            string        `mapstructure:"url"`
	LogSecrets     bool          `mapstructure:"log_secrets"`
	UseHashID      bool          `mapstructure:"use_hashid"`
}

type LoginConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	LockoutWindow time.Duration `mapstructure:"lockout_window"`
}

// SMTPConfig configures outgoing mail, an empty host logs notifications
// instead of sending them.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.debug", false)

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.dsn", "file:stockfx.db?cache=shared")
	v.SetDefault("database.debug", false)
	v.SetDefault("database.max_open_conns", 0)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.previous_signing_keys", []string{})
	v.SetDefault("auth.issuer", "stockfx")
	v.SetDefault("auth.audience", []string{"stockfx"})
	v.SetDefault("auth.token_expiration_hours", 24)
	v.SetDefault("auth.bcrypt_cost", 0)

	v.SetDefault("verification.mode", string(auth.SecretCode))
	v.SetDefault("verification.code_length", auth.DefaultCodeLength)
	v.SetDefault("verification.ttl", auth.DefaultVerificationTTL.String())
	v.SetDefault("verification.resend_cooldown", auth.DefaultResendCooldown.String())
	v.SetDefault("verification.max_attempts", auth.DefaultMaxSecretAttempts)
	v.SetDefault("verification.url", "")
	v.SetDefault("verification.log_secrets", false)
	v.SetDefault("verification.use_hashid", false)

	v.SetDefault("login.max_attempts", auth.DefaultMaxLoginAttempts)
	v.SetDefault("login.lockout_window", auth.DefaultLockoutWindow.String())

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@stockfx.local")
	v.SetDefault("smtp.from_name", "StockFx")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads path when given, otherwise looks for stockfx.yaml in the
// working directory and ./config. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("stockfx")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	fields := map[string]any{}

	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		fields["auth.signing_key"] = "required"
	}

	switch strings.ToLower(c.Database.Driver) {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		fields["database.driver"] = "must be sqlite or postgres"
	}

	switch auth.SecretKind(c.Verification.Mode) {
	case auth.SecretCode:
	case auth.SecretLink:
		if c.Verification.URL == "" {
			fields["verification.url"] = "required when mode is link"
		}
	default:
		fields["verification.mode"] = "must be code or link"
	}

	if len(fields) == 0 {
		return nil
	}

	return goerrors.New("invalid configuration", goerrors.CategoryValidation).
		WithTextCode("INVALID_CONFIG").
		WithMetadata(fields)
}

// Policy converts the verification and login sections
func (c *Config) Policy() auth.Policy {
	return auth.Policy{
		Mode:             auth.SecretKind(c.Verification.Mode),
		CodeLength:       c.Verification.CodeLength,
		TTL:              c.Verification.TTL,
		ResendCooldown:   c.Verification.ResendCooldown,
		MaxAttempts:      c.Verification.MaxAttempts,
		VerificationURL:  c.Verification.URL,
		LogSecrets:       c.Verification.LogSecrets,
		UseHashID:        c.Verification.UseHashID,
		MaxLoginAttempts: c.Login.MaxAttempts,
		LockoutWindow:    c.Login.LockoutWindow,
	}
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		Debug:        c.Database.Debug,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

func (c *Config) MailerConfig() mailer.Config {
	return mailer.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		FromName: c.SMTP.FromName,
	}
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() Config {
	out := *c
	if out.Auth.SigningKey != "" {
		out.Auth.SigningKey = "****"
	}
	if len(out.Auth.PreviousKeys) > 0 {
		out.Auth.PreviousKeys = make([]string, len(c.Auth.PreviousKeys))
		for i := range out.Auth.PreviousKeys {
			out.Auth.PreviousKeys[i] = "****"
		}
	}
	if out.SMTP.Password != "" {
		out.SMTP.Password = "****"
	}
	return out
}

// BuildLogger returns a zap logger for the log section
func (l LogConfig) BuildLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}

	if l.Level != "" {
		level, err := zap.ParseAtomicLevel(l.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", l.Level, err)
		}
		zc.Level = level
	}

	return zc.Build()
}
