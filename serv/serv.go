// Package serv wires configuration, database, logging and the environment
// file into a ready to use query engine.
package serv

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync/atomic"

	"github.com/dosco/fxquery/core"
	"github.com/dosco/fxquery/serv/internal/util"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type service struct {
	conf    *Config
	log     *zap.Logger
	fs      afero.Fs
	db      *sql.DB
	ownDB   bool
	noDB    bool
	gj      *core.Engine
	envPath string
}

// Service holds the query engine built from a configuration. It is safe
// for concurrent use, the engine is swapped when the environment reloads.
type Service struct {
	atomic.Value
	reloads atomic.Int64
}

type Option func(*service) error

// OptionSetDB sets a database to use instead of opening the configured one
func OptionSetDB(db *sql.DB) Option {
	return func(s *service) error {
		s.db = db
		return nil
	}
}

// OptionCompileOnly builds the engine without a database. Queries can
// only be compiled.
func OptionCompileOnly() Option {
	return func(s *service) error {
		s.noDB = true
		return nil
	}
}

// OptionSetFS sets the filesystem the environment file is read from
func OptionSetFS(fs afero.Fs) Option {
	return func(s *service) error {
		if fs == nil {
			return errors.New("serv: filesystem is nil")
		}
		s.fs = fs
		return nil
	}
}

// OptionSetLogger sets the logger
func OptionSetLogger(log *zap.Logger) Option {
	return func(s *service) error {
		if log == nil {
			return errors.New("serv: logger is nil")
		}
		s.log = log
		return nil
	}
}

// NewService opens the database, loads the environment file and builds
// the query engine
func NewService(conf *Config, options ...Option) (*Service, error) {
	s, err := newService(conf, options...)
	if err != nil {
		return nil, err
	}

	s1 := &Service{}
	s1.Store(s)
	return s1, nil
}

func newService(conf *Config, options ...Option) (s *service, err error) {
	if conf == nil {
		return nil, errors.New("serv: config is required")
	}

	s = &service{conf: conf, fs: afero.NewOsFs()}

	for _, op := range options {
		if err = op(s); err != nil {
			return nil, err
		}
	}

	if s.log == nil {
		log := util.NewLogger(conf.ShouldUseJSONLogs())
		s.log = log.WithOptions(zap.IncreaseLevel(util.LogLevel(conf.LogLevel)))
	}
	if conf.AppName != "" {
		s.log = s.log.Named(conf.AppName)
	}

	// ordering of these initializer matter, do not re-order!

	if err = s.initDB(); err != nil {
		return nil, err
	}

	schema, err := s.loadEnvironment()
	if err != nil {
		s.closeDB()
		return nil, err
	}

	s.gj, err = core.NewEngine(&conf.Core, s.db, schema,
		core.OptionSetLogger(s.log),
		core.OptionSetTrace(core.NewOtelTracer()))
	if err != nil {
		s.closeDB()
		return nil, err
	}
	return s, nil
}

// isDatabaseConfigured checks if a database connection is configured
func (s *service) isDatabaseConfigured() bool {
	c := s.conf.DB
	return c.ConnString != "" || c.Path != "" || c.DBName != ""
}

func (s *service) initDB() (err error) {
	if s.db != nil || s.noDB {
		return nil
	}

	if !s.isDatabaseConfigured() {
		s.log.Warn("no database configured, queries can only be compiled")
		return nil
	}

	if s.db, err = NewDB(s.conf, s.log); err != nil {
		return err
	}
	s.ownDB = true
	return nil
}

func (s *service) closeDB() {
	if s.ownDB && s.db != nil {
		s.db.Close() //nolint:errcheck
	}
}

func (s *service) loadEnvironment() (*core.Schema, error) {
	if s.conf.EnvironmentFile == "" {
		return nil, errors.New("serv: environment_file is required")
	}
	s.envPath = s.conf.AbsolutePath(s.conf.EnvironmentFile)

	f, err := s.fs.Open(s.envPath)
	if err != nil {
		return nil, errors.Wrap(err, "environment file")
	}
	defer f.Close() //nolint:errcheck

	return core.LoadSchema(f)
}

func (s1 *Service) load() *service {
	return s1.Load().(*service)
}

// Engine returns the query engine
func (s1 *Service) Engine() *core.Engine {
	return s1.load().gj
}

// DB returns the database, nil when none is configured
func (s1 *Service) DB() *sql.DB {
	return s1.load().db
}

// Logger returns the service logger
func (s1 *Service) Logger() *zap.Logger {
	return s1.load().log
}

// Config returns the service configuration
func (s1 *Service) Config() *Config {
	return s1.load().conf
}

// Reloads returns the number of successful environment reloads
func (s1 *Service) Reloads() int64 {
	return s1.reloads.Load()
}

// ReloadEnvironment reads the environment file again and swaps it into
// the engine. On error the previous environment stays active.
func (s1 *Service) ReloadEnvironment() error {
	s := s1.load()

	schema, err := s.loadEnvironment()
	if err != nil {
		return err
	}
	if err := s.gj.Reload(schema); err != nil {
		return err
	}

	s1.reloads.Add(1)
	s.log.Info("environment reloaded", zap.String("file", s.envPath))
	return nil
}

// Watch reloads the environment each time its file changes, until c is
// done. It returns at once in production or when watching is disabled.
func (s1 *Service) Watch(c context.Context) error {
	s := s1.load()
	if s.conf.Production || !s.conf.WatchEnvironment {
		return nil
	}
	return startEnvironmentWatcher(c, s1, s.envPath)
}

func startEnvironmentWatcher(c context.Context, s1 *Service, envPath string) error {
	s := s1.load()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close() //nolint:errcheck

	// editors replace files on save so the directory is watched
	if err := watcher.Add(filepath.Dir(envPath)); err != nil {
		return errors.Wrap(err, "watch environment")
	}

	for {
		select {
		case <-c.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(envPath) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := s1.ReloadEnvironment(); err != nil {
				s.log.Error("environment reload", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("environment watcher", zap.Error(err))
		}
	}
}

// Close releases the database opened by the service
func (s1 *Service) Close() error {
	s := s1.load()
	if s.ownDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}
