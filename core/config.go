package core

import (
	"fmt"
	"strings"
	"time"
)

// SupportedDBTypes lists the database types a dialect exists for
var SupportedDBTypes = []string{"mysql", "mariadb", "postgres", "sqlite", "generic"}

const (
	DefaultQueryTimeout       = 30 * time.Second
	DefaultStatementCacheSize = 5000
)

// ValidateDBType checks if the given database type is supported
func ValidateDBType(dbType string) error {
	if dbType == "" {
		return nil // Empty defaults to mysql, which is valid
	}
	for _, t := range SupportedDBTypes {
		if strings.EqualFold(dbType, t) {
			return nil
		}
	}
	return fmt.Errorf("unsupported database type %q: supported types are %s",
		dbType, strings.Join(SupportedDBTypes, ", "))
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := ValidateDBType(c.DBType); err != nil {
		return err
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout must not be negative: %s", c.QueryTimeout)
	}
	if c.StatementCacheSize < 0 {
		return fmt.Errorf("statement_cache_size must not be negative: %d", c.StatementCacheSize)
	}
	return nil
}

// Configuration for the query engine
type Config struct {
	// The database type: mysql, mariadb, postgres, sqlite or generic.
	// Defaults to mysql
	DBType string `mapstructure:"db_type" json:"db_type" yaml:"db_type" jsonschema:"title=Database Type,enum=mysql,enum=mariadb,enum=postgres,enum=sqlite,enum=generic"`

	// Statements running longer are cancelled and fail with
	// ErrQueryTimeout. Zero uses the default of 30 seconds
	QueryTimeout time.Duration `mapstructure:"query_timeout" json:"query_timeout" yaml:"query_timeout" jsonschema:"title=Query Timeout,type=string"`

	// Rows returned when a query sets no maximum. Zero or negative
	// returns all rows
	DefaultMaxRows int `mapstructure:"default_max_rows" json:"default_max_rows" yaml:"default_max_rows" jsonschema:"title=Default Max Rows"`

	// Maximum rows of every legacy search condition subquery. Zero
	// uses 10000, negative disables it
	SubqueryLimit int `mapstructure:"subquery_limit" json:"subquery_limit" yaml:"subquery_limit" jsonschema:"title=Subquery Limit"`

	// Number of compiled statements kept in memory
	StatementCacheSize int `mapstructure:"statement_cache_size" json:"statement_cache_size" yaml:"statement_cache_size" jsonschema:"title=Statement Cache Size,default=5000"`

	// Tree node lookups are cached for this long. Zero disables the cache
	TreeCacheTTL time.Duration `mapstructure:"tree_cache_ttl" json:"tree_cache_ttl" yaml:"tree_cache_ttl" jsonschema:"title=Tree Cache TTL,type=string"`

	// Enable debug logging of generated SQL
	Debug bool `mapstructure:"debug" json:"debug" yaml:"debug" jsonschema:"title=Debug,default=false"`
}

func (c *Config) dbType() string {
	if c.DBType == "" {
		return "mysql"
	}
	return strings.ToLower(c.DBType)
}

func (c *Config) queryTimeout() time.Duration {
	if c.QueryTimeout == 0 {
		return DefaultQueryTimeout
	}
	return c.QueryTimeout
}

func (c *Config) cacheSize() int {
	if c.StatementCacheSize == 0 {
		return DefaultStatementCacheSize
	}
	return c.StatementCacheSize
}
