package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Places    PlacesConfig    `mapstructure:"places"`
	Search    SearchConfig    `mapstructure:"search"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// PlacesConfig configures the upstream places API.
type PlacesConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	IncludedTypes     []string      `mapstructure:"included_types"`
	MaxResultCount    int           `mapstructure:"max_result_count"`
	PageDelay         time.Duration `mapstructure:"page_delay"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// SearchConfig holds area search defaults and limits.
type SearchConfig struct {
	DefaultStep   float64       `mapstructure:"default_step"`
	DefaultRadius float64       `mapstructure:"default_radius"`
	MaxAreaKm2    float64       `mapstructure:"max_area_km2"`
	Concurrency   int           `mapstructure:"concurrency"`
	CellTimeout   time.Duration `mapstructure:"cell_timeout"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

type AuthConfig struct {
	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
	InitialCredits    int    `mapstructure:"initial_credits"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	TaskQueue string `mapstructure:"task_queue"`
	Enabled   bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from .env, an optional config file and environment variables.
func Load(service string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: PHARMACOVER_PLACES_API_KEY → places.api_key
	v.SetEnvPrefix("PHARMACOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// LOG_LEVEL is honoured unprefixed as well.
	_ = v.BindEnv("log.level", "PHARMACOVER_LOG_LEVEL", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pharmacover")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "pharmacover")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)

	v.SetDefault("places.api_key", "")
	v.SetDefault("places.base_url", "https://places.googleapis.com")
	v.SetDefault("places.included_types", []string{"pharmacy"})
	v.SetDefault("places.max_result_count", 20)
	v.SetDefault("places.page_delay", 2*time.Second)
	v.SetDefault("places.timeout", 30*time.Second)
	v.SetDefault("places.requests_per_second", 10.0)

	v.SetDefault("search.default_step", 0.01)
	v.SetDefault("search.default_radius", 1000.0)
	v.SetDefault("search.max_area_km2", 4.0)
	v.SetDefault("search.concurrency", 1)
	v.SetDefault("search.cell_timeout", 60*time.Second)
	v.SetDefault("search.search_timeout", 30*time.Minute)
	v.SetDefault("search.cache_ttl", 24*time.Hour)

	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.admin_password_hash", "")
	v.SetDefault("auth.initial_credits", 10)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.task_queue", "area-search")
	v.SetDefault("temporal.enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Places.BaseURL == "" {
		errs = append(errs, "places.base_url is required")
	}
	if len(c.Places.IncludedTypes) == 0 {
		errs = append(errs, "places.included_types must not be empty")
	}
	if c.Places.MaxResultCount <= 0 || c.Places.MaxResultCount > 20 {
		errs = append(errs, fmt.Sprintf("places.max_result_count must be 1-20, got %d", c.Places.MaxResultCount))
	}
	if c.Places.PageDelay < 0 {
		errs = append(errs, "places.page_delay must not be negative")
	}
	if c.Places.Timeout <= 0 {
		errs = append(errs, "places.timeout must be positive")
	}
	if c.Places.RequestsPerSecond <= 0 {
		errs = append(errs, "places.requests_per_second must be positive")
	}
	if !(c.Search.DefaultStep > 0) {
		errs = append(errs, "search.default_step must be positive")
	}
	if !(c.Search.DefaultRadius > 0) {
		errs = append(errs, "search.default_radius must be positive")
	}
	if !(c.Search.MaxAreaKm2 > 0) {
		errs = append(errs, "search.max_area_km2 must be positive")
	}
	if c.Search.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("search.concurrency must be at least 1, got %d", c.Search.Concurrency))
	}
	if c.Search.CellTimeout <= 0 {
		errs = append(errs, "search.cell_timeout must be positive")
	}
	if c.Auth.AdminUser == "" {
		errs = append(errs, "auth.admin_user is required")
	}
	if c.Auth.InitialCredits < 0 {
		errs = append(errs, "auth.initial_credits must not be negative")
	}
	if c.Temporal.Enabled && c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required when temporal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
