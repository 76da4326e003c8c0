package serv

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

const connectAttempts = 20

type dbConf struct {
	driverName string
	connString string
}

// NewDB opens the configured database and pings it, retrying for a
// while when the database is not up yet
func NewDB(conf *Config, log *zap.Logger) (*sql.DB, error) {
	dc, err := initDBDriver(conf)
	if err != nil {
		return nil, err
	}

	var db *sql.DB

	err = retry.Do(
		func() (err error) {
			db, err = openDB(conf, dc)
			return err
		},
		retry.Attempts(connectAttempts),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("database connect", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func openDB(conf *Config, dc *dbConf) (*sql.DB, error) {
	db, err := sql.Open(dc.driverName, dc.connString)
	if err != nil {
		return nil, errors.Wrap(err, "database open")
	}

	db.SetMaxIdleConns(conf.DB.PoolSize)
	db.SetMaxOpenConns(conf.DB.MaxConnections)
	db.SetConnMaxIdleTime(conf.DB.MaxConnIdleTime)
	db.SetConnMaxLifetime(conf.DB.MaxConnLifeTime)

	c := context.Background()
	if conf.DB.PingTimeout > 0 {
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, conf.DB.PingTimeout)
		defer cancel()
	}

	if err := db.PingContext(c); err != nil {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "database ping")
	}
	return db, nil
}

// detectDBType detects the database type from the connection string
func detectDBType(conf *Config) {
	cs := conf.DB.ConnString

	switch {
	case strings.HasPrefix(cs, "postgres://"), strings.HasPrefix(cs, "postgresql://"):
		conf.DBType = "postgres"
	case strings.HasPrefix(cs, "mysql://"):
		conf.DBType = "mysql"
		conf.DB.ConnString = strings.TrimPrefix(cs, "mysql://")
	case strings.HasPrefix(cs, "file:"):
		conf.DBType = "sqlite"
	}
}

// initDBDriver picks the driver and connection string for the database type
func initDBDriver(conf *Config) (*dbConf, error) {
	if conf.DBType == "" && conf.DB.Type != "" {
		conf.DBType = strings.ToLower(conf.DB.Type)
	}

	detectDBType(conf)

	var dc *dbConf
	var err error

	switch conf.DBType {
	case "", "mysql", "mariadb":
		dc, err = initMysql(conf)
	case "postgres":
		dc, err = initPostgres(conf)
	case "sqlite":
		dc, err = initSqlite(conf)
	default:
		return nil, fmt.Errorf("unsupported database type %q: supported types are mysql, mariadb, postgres, sqlite", conf.DBType)
	}

	if err != nil {
		return nil, errors.WithMessage(err, "database init")
	}
	return dc, nil
}

func initMysql(conf *Config) (*dbConf, error) {
	c := conf.DB

	if c.ConnString != "" {
		mc, err := mysql.ParseDSN(c.ConnString)
		if err != nil {
			return nil, err
		}
		if mc.DBName == "" {
			mc.DBName = c.DBName
		}
		return &dbConf{driverName: "mysql", connString: mc.FormatDSN()}, nil
	}

	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	port := c.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(int(port)))
	mc.DBName = c.DBName

	return &dbConf{driverName: "mysql", connString: mc.FormatDSN()}, nil
}

func initPostgres(conf *Config) (*dbConf, error) {
	c := conf.DB

	config, err := pgx.ParseConfig(c.ConnString)
	if err != nil {
		return nil, err
	}

	if c.ConnString == "" {
		if c.Host != "" {
			config.Host = c.Host
		}
		if c.Port != 0 {
			config.Port = c.Port
		}
		if c.User != "" {
			config.User = c.User
		}
		if c.Password != "" {
			config.Password = c.Password
		}
		if c.DBName != "" {
			config.Database = c.DBName
		}
	}

	if config.RuntimeParams == nil {
		config.RuntimeParams = map[string]string{}
	}

	if c.Schema != "" {
		config.RuntimeParams["search_path"] = c.Schema
	}

	if conf.AppName != "" {
		config.RuntimeParams["application_name"] = conf.AppName
	}

	return &dbConf{driverName: "pgx", connString: stdlib.RegisterConnConfig(config)}, nil
}

func initSqlite(conf *Config) (*dbConf, error) {
	connString := conf.DB.ConnString
	if connString == "" && conf.DB.Path != "" {
		connString = conf.AbsolutePath(conf.DB.Path)
	}
	if connString == "" {
		return nil, errors.New("sqlite requires a connection string or path")
	}

	return &dbConf{driverName: "sqlite3", connString: connString}, nil
}
