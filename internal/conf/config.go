package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/pkg/redis"
	"github.com/lk2023060901/chunkjson/internal/reassembly"
)

// EnvPrefix prefixes every environment override, e.g. CHUNKJSON_DATABASE_DRIVER.
const EnvPrefix = "CHUNKJSON"

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database database.Config `mapstructure:"database"`
	Redis    redis.Config    `mapstructure:"redis"`
	Log      logger.Config   `mapstructure:"log"`
	Export   ExportConfig    `mapstructure:"export"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CORSOrigins enables CORS for these origins; empty disables it.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ExportConfig struct {
	FragmentLength int           `mapstructure:"fragment_length"`
	TerminalPolicy string        `mapstructure:"terminal_policy"` // keep, drop, drop_blank
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Default returns the configuration used when neither file nor environment
// set a key.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: *database.DefaultConfig(),
		Redis:    *redis.DefaultConfig(),
		Log:      *logger.DefaultConfig(),
		Export: ExportConfig{
			FragmentLength: reassembly.DefaultFragmentLength,
			TerminalPolicy: "keep",
			CacheTTL:       5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "chunkjson",
			Path:      "/metrics",
		},
	}
}

// LoadConfig reads path (optional) and applies CHUNKJSON_* environment
// overrides on top of Default.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv exports the variables of the given .env files (default ".env")
// without overriding ones already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]interface{}{
		"server.host":             d.Server.Host,
		"server.port":             d.Server.Port,
		"server.mode":             d.Server.Mode,
		"server.read_timeout":     d.Server.ReadTimeout,
		"server.write_timeout":    d.Server.WriteTimeout,
		"server.shutdown_timeout": d.Server.ShutdownTimeout,

		"database.driver":          d.Database.Driver,
		"database.host":            d.Database.Host,
		"database.port":            d.Database.Port,
		"database.user":            d.Database.User,
		"database.password":        d.Database.Password,
		"database.dbname":          d.Database.DBName,
		"database.sslmode":         d.Database.SSLMode,
		"database.path":            d.Database.Path,
		"database.maxidleconns":    d.Database.MaxIdleConns,
		"database.maxopenconns":    d.Database.MaxOpenConns,
		"database.connmaxlifetime": d.Database.ConnMaxLifetime,
		"database.connmaxidletime": d.Database.ConnMaxIdleTime,
		"database.loglevel":        d.Database.LogLevel,
		"database.slowthreshold":   d.Database.SlowThreshold,
		"database.preparestmt":     d.Database.PrepareStmt,
		"database.timezone":        d.Database.Timezone,
		"database.automigrate":     d.Database.AutoMigrate,

		"redis.enabled":    d.Redis.Enabled,
		"redis.addr":       d.Redis.Addr,
		"redis.username":   d.Redis.Username,
		"redis.password":   d.Redis.Password,
		"redis.db":         d.Redis.DB,
		"redis.key_prefix": d.Redis.KeyPrefix,
		"redis.pool_size":  d.Redis.PoolSize,

		"log.level":         d.Log.Level,
		"log.format":        d.Log.Format,
		"log.output":        d.Log.Output,
		"log.file.filename": d.Log.File.Filename,

		"export.fragment_length": d.Export.FragmentLength,
		"export.terminal_policy": d.Export.TerminalPolicy,
		"export.cache_ttl":       d.Export.CacheTTL,

		"metrics.enabled":   d.Metrics.Enabled,
		"metrics.namespace": d.Metrics.Namespace,
		"metrics.path":      d.Metrics.Path,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Redis.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Export.FragmentLength <= 0 || c.Export.FragmentLength > reassembly.MaxFragmentLength {
		return fmt.Errorf("export.fragment_length must be between 1 and %d", reassembly.MaxFragmentLength)
	}
	if _, err := reassembly.ParsePolicy(c.Export.TerminalPolicy); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if c.Export.CacheTTL < 0 {
		return errors.New("export.cache_ttl must not be negative")
	}
	return nil
}
