package serv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dosco/fxquery/core"
	"github.com/dosco/fxquery/serv/internal/util"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Environment variables with this prefix override config values.
// FXQ_DATABASE_HOST sets database.host
const envPrefix = "FXQ_"

type Core = core.Config

// Configuration for the query service
type Config struct {
	// Configuration for the query compiler core
	Core `mapstructure:",squash" jsonschema:"title=Compiler Configuration"`

	// Configuration for the service
	Serv `mapstructure:",squash" jsonschema:"title=Service Configuration"`

	viper *viper.Viper
}

// Configuration for the service
type Serv struct {
	// Application name is used in log messages and as the postgres
	// application_name
	AppName string `mapstructure:"app_name" jsonschema:"title=Application Name"`

	// When enabled the environment file is not watched
	Production bool `jsonschema:"title=Production Mode,default=false"`

	// The default path to find all configuration files
	ConfigPath string `mapstructure:"config_path" jsonschema:"title=Config Path"`

	// Logging level must be one of debug, error, warn, info
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug error warn info" jsonschema:"title=Log Level,enum=debug,enum=error,enum=warn,enum=info"`

	// Logging Format: "auto" (console in dev, JSON in production),
	// "json" or "simple"
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=auto json simple" jsonschema:"title=Logging Format,enum=auto,enum=json,enum=simple"`

	// YAML file describing types, properties and assignments. Relative
	// paths are resolved against the config path
	EnvironmentFile string `mapstructure:"environment_file" jsonschema:"title=Environment File"`

	// Reload the environment file when it changes. Ignored in production
	WatchEnvironment bool `mapstructure:"watch_environment" jsonschema:"title=Watch Environment File,default=true"`

	// Database configuration
	DB Database `mapstructure:"database" jsonschema:"title=Database"`
}

// Database configuration
type Database struct {
	ConnString string `mapstructure:"connection_string" jsonschema:"title=Connection String"`
	Type       string `validate:"omitempty,oneof=mysql mariadb postgres sqlite" jsonschema:"title=Type,enum=mysql,enum=mariadb,enum=postgres,enum=sqlite"`
	Host       string `jsonschema:"title=Host"`
	Port       uint16 `jsonschema:"title=Port"`
	DBName     string `jsonschema:"title=Database Name"`
	User       string `jsonschema:"title=User"`
	Password   string `jsonschema:"title=Password"`

	// Database file for sqlite
	Path string `jsonschema:"title=SQLite Path"`

	// Postgres schema added to the search path
	Schema string `jsonschema:"title=Postgres Schema"`

	// Size of database connection pool
	PoolSize int `mapstructure:"pool_size" validate:"gte=0" jsonschema:"title=Connection Pool Size"`

	// Max number of active database connections allowed
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" jsonschema:"title=Maximum Connections"`

	// Max time after which idle database connections are closed
	MaxConnIdleTime time.Duration `mapstructure:"max_connection_idle_time" jsonschema:"title=Connection Idle Time"`

	// Max time after which database connections are not reused
	MaxConnLifeTime time.Duration `mapstructure:"max_connection_life_time" jsonschema:"title=Connection Life Time"`

	// Database ping timeout used when opening the pool
	PingTimeout time.Duration `mapstructure:"ping_timeout" jsonschema:"title=Ping Timeout"`
}

// ReadInConfig reads the config file for the environment named by GO_ENV.
// configFile is a path like ./config/dev.yml, the extension may be left out.
func ReadInConfig(configFile string) (*Config, error) {
	return readInConfig(configFile, nil)
}

// ReadInConfigFS is the same as ReadInConfig but reads through fs
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	return readInConfig(configFile, fs)
}

func readInConfig(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile))

	if fs != nil {
		vi.SetFs(fs)
	}

	if err := vi.ReadInConfig(); err != nil {
		return nil, err
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)
		if fs != nil {
			vi.SetFs(fs)
		}

		if err := vi.ReadInConfig(); err != nil {
			return nil, err
		}

		if value := vi.GetString("inherits"); value != "" {
			return nil, errors.Errorf("inherited config '%s' cannot itself inherit '%s'", pcf, value)
		}

		vi.SetConfigFile(cf)

		if err := vi.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	setEnvOverrides(vi)

	c := &Config{viper: vi}
	if err := vi.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if c.ConfigPath == "" {
		c.ConfigPath = cp
	}
	return c, c.init()
}

// NewConfig creates a configuration from the provided config text
func NewConfig(config, format string) (*Config, error) {
	if format == "" {
		format = "yaml"
	}

	vi := newViperWithDefaults()
	vi.SetConfigType(format)

	if err := vi.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, err
	}

	setEnvOverrides(vi)

	c := &Config{viper: vi}
	if err := vi.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return c, c.init()
}

func setEnvOverrides(vi *viper.Viper) {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, envPrefix) {
			kv := strings.SplitN(e, "=", 2)
			util.SetKeyValue(vi, strings.TrimPrefix(kv[0], envPrefix), kv[1])
		}
	}
}

var validate = validator.New()

// init copies database.type over to db_type and validates the config
func (c *Config) init() error {
	if c.DBType == "" {
		c.DBType = c.DB.Type
	}
	if err := c.Core.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// JSONSchema returns the JSON schema of the config file
func JSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:   "mapstructure",
		DoNotReference: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "fxquery config"
	return json.MarshalIndent(s, "", "  ")
}

// newViperWithDefaults returns a new viper instance with the default settings
func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("app_name", "fxquery")
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")

	vi.SetDefault("environment_file", "environment.yml")
	vi.SetDefault("watch_environment", true)

	vi.SetDefault("database.type", "mysql")
	vi.SetDefault("database.host", "localhost")
	vi.SetDefault("database.pool_size", 10)
	vi.SetDefault("database.ping_timeout", "10s")

	vi.SetDefault("env", "development")
	vi.BindEnv("env", "GO_ENV") //nolint:errcheck

	return vi
}

// newViper returns a new viper instance with the default settings
func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))

	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}

	return vi
}

// AbsolutePath returns p relative to the config path
func (c *Config) AbsolutePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ConfigPath, p)
}

// ShouldUseJSONLogs returns true if log_format is "json" or if it is
// "auto" and production mode is enabled
func (c *Config) ShouldUseJSONLogs() bool {
	if c.LogFormat == "json" {
		return true
	}
	return c.LogFormat == "auto" && c.Production
}

// GetConfigName returns the name of the configuration
func GetConfigName() string {
	goEnv := strings.TrimSpace(strings.ToLower(os.Getenv("GO_ENV")))

	switch goEnv {
	case "production", "prod":
		return "prod"

	case "staging", "stage":
		return "stage"

	case "testing", "test":
		return "test"

	case "development", "dev", "":
		return "dev"

	default:
		return goEnv
	}
}
