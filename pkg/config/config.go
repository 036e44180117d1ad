// Package config loads the immutable runtime configuration for table-masker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database authentication modes.
const (
	AuthIAM      = "iam"
	AuthPassword = "password"
)

// Template store sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// DefaultProfile is used when no profile is named on the command line or in the environment.
const DefaultProfile = "default"

// profileEnvVars are consulted in order when resolving the active profile.
var profileEnvVars = []string{"MASKER_PROFILE", "SPRING_PROFILES_ACTIVE"}

// Config holds the complete configuration. It is resolved once at startup
// and must not be mutated afterwards.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Templates TemplatesConfig `yaml:"templates"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Export    ExportConfig    `yaml:"export"`
}

// DatabaseConfig configures the target PostgreSQL database.
type DatabaseConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Name           string        `yaml:"name"`
	Password       string        `yaml:"password"` // only used when auth is "password"
	Auth           string        `yaml:"auth"`     // "iam", "password"
	Region         string        `yaml:"region"`   // AWS region for IAM tokens
	SSLMode        string        `yaml:"sslmode"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TemplatesConfig configures the template store.
type TemplatesConfig struct {
	Source string `yaml:"source"` // "file", "postgres"
	Root   string `yaml:"root"`
}

// ServerConfig configures the HTTP server started by "serve".
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json", "text"
}

// MetricsConfig configures the metric push job.
type MetricsConfig struct {
	Namespace string        `yaml:"namespace"`
	Region    string        `yaml:"region"`
	Queries   []MetricQuery `yaml:"queries"`
}

// MetricQuery is a single-row query whose columns become metric data points.
type MetricQuery struct {
	Name    string   `yaml:"name"`
	SQL     string   `yaml:"sql"`
	Columns []string `yaml:"columns"`
	Unit    string   `yaml:"unit"`
}

// ExportConfig configures the query export job.
type ExportConfig struct {
	Bucket       string        `yaml:"bucket"`
	Region       string        `yaml:"region"`
	Endpoint     string        `yaml:"endpoint"`
	UsePathStyle bool          `yaml:"use_path_style"`
	Prefix       string        `yaml:"prefix"`
	Queries      []ExportQuery `yaml:"queries"`
}

// ExportQuery is a query whose full result set is exported as CSV.
type ExportQuery struct {
	Name string `yaml:"name"`
	SQL  string `yaml:"sql"`
}

// ResolveProfile returns the explicit profile if set, else the first
// non-empty profile environment variable, else DefaultProfile.
func ResolveProfile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range profileEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return DefaultProfile
}

// ProfilePath returns the config file for a profile inside dir.
func ProfilePath(dir, profile string) string {
	return filepath.Join(dir, "application-"+profile+".yaml")
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references and applying defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
// Template placeholders such as $(schema_name_from_json_input) use parentheses and are left alone.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.Auth == "" {
		cfg.Database.Auth = AuthIAM
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "require"
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}
	if cfg.Templates.Source == "" {
		cfg.Templates.Source = SourceFile
	}
	if cfg.Templates.Root == "" {
		cfg.Templates.Root = "resources"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "MyApp/DBMetrics"
	}
	for i := range cfg.Metrics.Queries {
		if cfg.Metrics.Queries[i].Unit == "" {
			cfg.Metrics.Queries[i].Unit = "None"
		}
	}
}

// Validate validates the configuration needed by every command.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.Name == "" {
		errs = append(errs, "database.name is required")
	}

	switch c.Database.Auth {
	case AuthIAM:
	case AuthPassword:
		if c.Database.Password == "" {
			errs = append(errs, "database.password is required when database.auth is password")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.auth must be %q or %q, got %q", AuthIAM, AuthPassword, c.Database.Auth))
	}

	switch c.Templates.Source {
	case SourceFile, SourcePostgres:
	default:
		errs = append(errs, fmt.Sprintf("templates.source must be %q or %q, got %q", SourceFile, SourcePostgres, c.Templates.Source))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
