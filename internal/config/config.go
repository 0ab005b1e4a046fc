package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "GM"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Project     ProjectConfig     `mapstructure:"project"`
	Cast        CastConfig        `mapstructure:"cast"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	GinMode     string `mapstructure:"gin_mode"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

// ProjectConfig identifies the dApp towards the notification service.
type ProjectConfig struct {
	ID     string `mapstructure:"id"`
	Secret string `mapstructure:"secret"`
}

// CastConfig points at the relay that performs notification delivery.
type CastConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenExpiry  time.Duration `mapstructure:"token_expiry"`
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
	// ChallengeRate is the number of challenges one client IP may request per minute.
	ChallengeRate int `mapstructure:"challenge_rate"`
	// IdentitiesFile snapshots registered identities across restarts. Empty
	// keeps them in memory only.
	IdentitiesFile string `mapstructure:"identities_file"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Path     string         `mapstructure:"path"`
	DSN      string         `mapstructure:"dsn"`
	Postgres DBHostSettings `mapstructure:"postgres"`
	MySQL    DBHostSettings `mapstructure:"mysql"`
}

type DBHostSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type NotifyConfig struct {
	// RequireSubscriber short-circuits sends to accounts without a subscriber row.
	RequireSubscriber bool `mapstructure:"require_subscriber"`
}

type MonitoringConfig struct {
	MetricsEnabled  bool   `mapstructure:"metrics_enabled"`
	MetricsEndpoint string `mapstructure:"metrics_endpoint"`
}

type MaintenanceConfig struct {
	ChallengeSweep string `mapstructure:"challenge_sweep"`
}

// Load reads config.yaml from ./config or any of paths, then GM_* environment
// variables. A missing project id is an error.
func Load(paths ...string) (*Config, error) {
	v := NewViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, DecodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewViper returns a viper instance reading GM_* variables. PROJECT_ID,
// CAST_PROJECT_SECRET, PORT and RELAY_URL are accepted as aliases.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("project.id", "GM_PROJECT_ID", "PROJECT_ID")
	_ = v.BindEnv("project.secret", "GM_PROJECT_SECRET", "CAST_PROJECT_SECRET")
	_ = v.BindEnv("server.port", "GM_SERVER_PORT", "PORT")
	_ = v.BindEnv("cast.url", "GM_CAST_URL", "GM_RELAY_URL", "RELAY_URL")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	v.SetDefault("project.id", "")
	v.SetDefault("project.secret", "")

	v.SetDefault("cast.url", "https://cast.walletconnect.com")
	v.SetDefault("cast.timeout", "10s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_expiry", "168h")
	v.SetDefault("auth.challenge_ttl", "5m")
	v.SetDefault("auth.challenge_rate", 10)
	v.SetDefault("auth.identities_file", "./data/identities.json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/gm.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.username", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")

	v.SetDefault("notify.require_subscriber", true)

	v.SetDefault("monitoring.metrics_enabled", true)
	v.SetDefault("monitoring.metrics_endpoint", "/metrics")

	v.SetDefault("maintenance.challenge_sweep", "@every 5m")
}

// DecodeHook is shared with gmctl so durations decode the same way everywhere.
func DecodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) Validate() error {
	c.Project.ID = strings.TrimSpace(c.Project.ID)
	if c.Project.ID == "" {
		return errors.New("project.id is required (set GM_PROJECT_ID)")
	}
	c.Project.Secret = strings.TrimSpace(c.Project.Secret)
	if c.Project.Secret == "" {
		return errors.New("project.secret is required to call the cast relay (set GM_PROJECT_SECRET)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Auth.TokenExpiry <= 0 {
		return errors.New("invalid auth.token_expiry")
	}
	if c.Auth.ChallengeTTL <= 0 {
		return errors.New("invalid auth.challenge_ttl")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// ApplyRuntimeDefaults fills secrets that may be generated per process and
// returns the names of the generated keys.
func ApplyRuntimeDefaults(c *Config) ([]string, error) {
	var generated []string
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		c.Auth.JWTSecret = hex.EncodeToString(buf)
		generated = append(generated, "auth.jwt_secret")
	}
	return generated, nil
}
