package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/charlesng35/policyhub/internal/database"
	"github.com/charlesng35/policyhub/internal/permissions"
)

// Config represents the runtime configuration for the policyhub service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	LogFormat       string          `mapstructure:"log_format"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds how often a caller may hit the evaluate endpoints.
type RateLimitConfig struct {
	Backend  string        `mapstructure:"backend"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Postgres        DBAuthConfig  `mapstructure:"postgres"`
	MySQL           DBAuthConfig  `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// AuthConfig captures the bearer token settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// PermissionsConfig selects the decision model and bootstrap behaviour.
type PermissionsConfig struct {
	Mode            string           `mapstructure:"mode"`
	SeedDefaults    bool             `mapstructure:"seed_defaults"`
	BootstrapAdmins []string         `mapstructure:"bootstrap_admins"`
	Conditions      ConditionsConfig `mapstructure:"conditions"`
}

// ConditionsConfig selects the statement condition engine.
type ConditionsConfig struct {
	Engine string `mapstructure:"engine"`
}

// MaintenanceConfig schedules background housekeeping.
type MaintenanceConfig struct {
	SweepSchedule      string `mapstructure:"sweep_schedule"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
	RatePruneSchedule  string `mapstructure:"rate_prune_schedule"`
}

// MonitoringConfig enables metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("POLICYHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("config: server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
		errs = multierr.Append(errs, errors.New("config: auth.jwt.secret is required"))
	}
	if _, err := permissions.ParseMode(c.Permissions.Mode); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("config: permissions.mode: %w", err))
	}
	if _, err := permissions.NewConditionEvaluator(c.Permissions.Conditions.Engine); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("config: permissions.conditions.engine: %w", err))
	}
	if c.Server.RateLimit.Requests < 0 {
		errs = multierr.Append(errs, errors.New("config: server.rate_limit.requests must not be negative"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Server.RateLimit.Backend)) {
	case "", "memory", "database":
	default:
		errs = multierr.Append(errs, fmt.Errorf("config: server.rate_limit.backend %q is not memory or database", c.Server.RateLimit.Backend))
	}
	return errs
}

// ConnectionConfig maps the database section onto the driver options.
func (d DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver:          d.Driver,
		Path:            d.Path,
		DSN:             d.DSN,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}

	var host DBAuthConfig
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "postgres", "postgresql":
		host = d.Postgres
	case "mysql", "mariadb":
		host = d.MySQL
	default:
		return cfg
	}
	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password
	cfg.Options = host.Options
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit.backend", "memory")
	v.SetDefault("server.rate_limit.requests", 120)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/policyhub.sqlite")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("auth.jwt.issuer", "policyhub")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("permissions.mode", string(permissions.ModePolicy))
	v.SetDefault("permissions.seed_defaults", true)
	v.SetDefault("permissions.bootstrap_admins", []string{})
	v.SetDefault("permissions.conditions.engine", "none")

	v.SetDefault("maintenance.sweep_schedule", "@every 5m")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.audit_retention_days", 90)
	v.SetDefault("maintenance.rate_prune_schedule", "@every 10m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
