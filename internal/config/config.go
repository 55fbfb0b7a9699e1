// internal/config/config.go
//
// Server configuration.
// Sources, lowest precedence first:
//   - built-in defaults (setDefaults)
//   - an optional config.yaml in the given directory, "." or ./config
//   - environment variables, dots replaced by underscores
//     (e.g. SERVER_PORT, AUTH_JWT_SECRET, SESSION_BACKEND)
//
// The result is validated before it is returned.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/robalobadob/cardle/internal/ads"
	"github.com/robalobadob/cardle/internal/play"
	"github.com/robalobadob/cardle/internal/scryfall"
)

// DevJWTSecret is the default signing secret. It is rejected in production.
const DevJWTSecret = "dev_secret_change_me"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Session   SessionConfig   `mapstructure:"session" validate:"required"`
	Scryfall  scryfall.Config `mapstructure:"scryfall" validate:"required"`
	Daily     DailyConfig     `mapstructure:"daily" validate:"required"`
	Game      play.Config     `mapstructure:"game" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" validate:"required"`
	Ads       ads.Config      `mapstructure:"ads" validate:"required"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	Env            string        `mapstructure:"env" validate:"oneof=development production test"`
	ClientOrigin   string        `mapstructure:"client_origin"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	// TrustProxy takes the client address from X-Real-IP/X-Forwarded-For.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

// Production reports whether the server runs with production settings.
func (s ServerConfig) Production() bool { return s.Env == "production" }

// Addr is the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
}

type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret" validate:"required,min=8"`
	JWTExpiresDays int    `mapstructure:"jwt_expires_days" validate:"min=1,max=365"`
	CookieName     string `mapstructure:"cookie_name" validate:"required"`
	AnonCookieName string `mapstructure:"anon_cookie_name" validate:"required,nefield=CookieName"`
}

// TokenTTL is the lifetime of issued tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.JWTExpiresDays) * 24 * time.Hour
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=memory redis"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"min=0"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
}

type DailyConfig struct {
	Salt     string `mapstructure:"salt" validate:"required"`
	PoolFile string `mapstructure:"pool_file"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" validate:"gt=0"`
	Burst int     `mapstructure:"burst" validate:"min=1"`
}

// Load reads configuration from dir (optional), the working directory and
// the environment.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field ranges and the rules spanning several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.Production() && c.Auth.JWTSecret == DevJWTSecret {
		return errors.New("invalid config: auth.jwt_secret must be set in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5175)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.client_origin", "http://localhost:5173")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("log.level", "info")

	v.SetDefault("auth.jwt_secret", DevJWTSecret)
	v.SetDefault("auth.jwt_expires_days", 14)
	v.SetDefault("auth.cookie_name", "cardle_token")
	v.SetDefault("auth.anon_cookie_name", "cardle_anon")

	v.SetDefault("database.path", "./data/app.db")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.sweep_interval", "5m")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("session.redis_prefix", "cardle:")

	v.SetDefault("scryfall.base_url", "https://api.scryfall.com")
	v.SetDefault("scryfall.timeout", "8s")
	v.SetDefault("scryfall.random_query", "game:paper -is:funny")
	v.SetDefault("scryfall.user_agent", "cardle/1.0")
	v.SetDefault("scryfall.cache_size", 2048)
	v.SetDefault("scryfall.cache_ttl", "6h")

	v.SetDefault("daily.salt", "local_dev_salt")
	v.SetDefault("daily.pool_file", "")

	v.SetDefault("game.blur.initial", 40)
	v.SetDefault("game.blur.step", 5)
	v.SetDefault("game.blur.min", 2)
	v.SetDefault("game.rewards.normal", 10)
	v.SetDefault("game.rewards.daily", 25)
	v.SetDefault("game.rewards.text", 15)
	v.SetDefault("game.rewards.blur", 15)
	v.SetDefault("game.hints.oracle", 5)
	v.SetDefault("game.hints.set", 3)
	v.SetDefault("game.hints.artist", 3)
	v.SetDefault("game.hints.first_letter", 8)

	v.SetDefault("ratelimit.rps", 2)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("ads.global_cooldown", "30s")
	v.SetDefault("ads.hourly_cap", 6)
	v.SetDefault("ads.types", map[string]any{
		"rewarded": map[string]any{"cooldown": "5m", "daily_cap": 5, "reward": 20},
		"bonus":    map[string]any{"cooldown": "30m", "daily_cap": 2, "reward": 50},
	})
}
