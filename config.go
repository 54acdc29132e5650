// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes the environment variables overriding configuration
	// keys, as in SQLEXPR_DRIVER.
	EnvPrefix    = "SQLEXPR"
	maxWalkDepth = 25
)

var configNames = []string{"sqlexpr.yaml", "sqlexpr.yml"}

// Config holds the settings of the databases data access objects run on.
type Config struct {
	// Driver is the database/sql driver name connections are opened with.
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Connections maps connection names to DSNs. Names are case
	// insensitive. ${VAR} references in DSNs are expanded from the
	// environment.
	Connections        map[string]string `mapstructure:"connections" yaml:"connections"`
	MaxStringLength    int               `mapstructure:"max_string_length" yaml:"max_string_length"`
	NoLock             bool              `mapstructure:"nolock" yaml:"nolock"`
	StatementCacheSize int               `mapstructure:"statement_cache_size" yaml:"statement_cache_size"`
	LogLevel           string            `mapstructure:"log_level" yaml:"log_level"`
	// Schema is the path of a YAML schema file describing entities.
	Schema string `mapstructure:"schema" yaml:"schema,omitempty"`

	path string

	mu     sync.Mutex
	dbs    map[string]*DB
	logger *zerolog.Logger
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("internal error: cannot unmarshal defaults: %s", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver", "sqlserver")
	v.SetDefault("connections", map[string]string{})
	v.SetDefault("max_string_length", 4000)
	v.SetDefault("nolock", true)
	v.SetDefault("statement_cache_size", DefaultStatementCacheSize)
	v.SetDefault("log_level", "info")
	v.SetDefault("schema", "")
}

// LoadConfig loads the configuration with the precedence environment, then
// config file, then defaults. When explicitPath is empty, sqlexpr.yaml or
// sqlexpr.yml is looked for from the working directory up to the repository
// root. A .env file in the working directory, or next to the config file, is
// loaded into the environment first.
func LoadConfig(explicitPath string) (*Config, error) {
	configPath, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, err
	}

	dotenvs := []string{".env"}
	if configPath != "" {
		dotenvs = append(dotenvs, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, path := range dotenvs {
		if err := loadDotEnv(path); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}
	}

	cfg := &Config{path: configPath}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot load %s: %w", path, err)
	}
	return nil
}

// findConfigFile returns explicitPath when given, checking it exists, and
// otherwise walks up from the working directory looking for a config file,
// stopping at a .git entry or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot get working directory: %w", err)
	}
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

func (c *Config) validate() error {
	if c.Driver == "" {
		return fmt.Errorf("%w: no driver", ErrConfiguration)
	}
	if c.MaxStringLength < 0 {
		return fmt.Errorf("%w: negative max_string_length %d", ErrConfiguration, c.MaxStringLength)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %s", ErrConfiguration, err)
	}
	for name, dsn := range c.Connections {
		if strings.TrimSpace(dsn) == "" {
			return fmt.Errorf("%w: connection %q has no DSN", ErrConfiguration, name)
		}
	}
	return nil
}

// Path returns the config file the configuration was read from, if any.
func (c *Config) Path() string {
	return c.path
}

// ConnectionNames returns the configured connection names, sorted.
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DSN returns the data source of the named connection with environment
// references expanded.
func (c *Config) DSN(name string) (string, bool) {
	for n, dsn := range c.Connections {
		if strings.EqualFold(n, name) {
			return os.ExpandEnv(dsn), true
		}
	}
	return "", false
}

// SetLogger replaces the logger built from LogLevel.
func (c *Config) SetLogger(logger zerolog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = &logger
}

// Logger returns the logger of the configuration. Unless one was set, it
// writes to standard error at LogLevel.
func (c *Config) Logger() zerolog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger == nil {
		level, err := zerolog.ParseLevel(c.LogLevel)
		if err != nil || c.LogLevel == "" {
			level = zerolog.InfoLevel
		}
		logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
		c.logger = &logger
	}
	return *c.logger
}

// TableOptions returns the statement builder options of the configuration.
func (c *Config) TableOptions() []TableOption {
	opts := []TableOption{WithNoLock(c.NoLock)}
	if c.MaxStringLength > 0 {
		opts = append(opts, WithMaxStringLength(c.MaxStringLength))
	}
	return opts
}

// DBOptions returns the database options of the configuration.
func (c *Config) DBOptions() []DBOption {
	opts := []DBOption{WithLogger(c.Logger())}
	if c.StatementCacheSize > 0 {
		opts = append(opts, WithStatementCacheSize(c.StatementCacheSize))
	}
	return opts
}

// DB returns the database of the named connection, opening it on first use.
// Later calls return the same [DB].
func (c *Config) DB(name string) (*DB, error) {
	dsn, ok := c.DSN(name)
	if !ok {
		return nil, fmt.Errorf("%w: connection %q is not configured", ErrConfiguration, name)
	}
	key := strings.ToLower(name)
	opts := c.DBOptions()

	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.dbs[key]; ok {
		return db, nil
	}
	sqldb, err := sql.Open(c.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open connection %q: %w", name, err)
	}
	if c.dbs == nil {
		c.dbs = map[string]*DB{}
	}
	db := NewDB(sqldb, opts...)
	c.dbs[key] = db
	return db, nil
}

// Close closes every database opened through the configuration.
func (c *Config) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for key, db := range c.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cannot close connection %q: %w", key, err))
		}
		delete(c.dbs, key)
	}
	return errors.Join(errs...)
}
