package main

import (
	"os"
	"path"
	"path/filepath"

	"github.com/dosco/fxquery/serv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log   *zap.SugaredLogger
	conf  *serv.Config
	cpath string
)

// Cmd is the entry point for the CLI
func Cmd() {
	log = newLogger(false).Sugar()

	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

func newRootCmd() *cobra.Command {
	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:           "fxquery",
		Short:         BuildDetails(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cpath,
		"path", "./config", "path to config files")

	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// setup reads the config file for the current GO_ENV
func setup(cpath string) error {
	if conf != nil {
		return nil
	}

	cp, err := filepath.Abs(cpath)
	if err != nil {
		return err
	}

	conf, err = serv.ReadInConfig(path.Join(cp, serv.GetConfigName()))
	return err
}

// newService builds the query service, compileOnly skips the database
func newService(compileOnly bool) (*serv.Service, error) {
	if err := setup(cpath); err != nil {
		return nil, err
	}

	opts := []serv.Option{serv.OptionSetLogger(newLogger(conf.ShouldUseJSONLogs()).
		WithOptions(zap.IncreaseLevel(logLevel(conf.LogLevel))))}
	if compileOnly {
		opts = append(opts, serv.OptionCompileOnly())
	}
	return serv.NewService(conf, opts...)
}

func logLevel(level string) zapcore.Level {
	if l, err := zapcore.ParseLevel(level); err == nil {
		return l
	}
	return zapcore.WarnLevel
}

// newLogger creates a new logger writing to stderr, stdout carries
// command output
func newLogger(json bool) *zap.Logger {
	return newLoggerWithOutput(json, os.Stderr)
}

// newLoggerWithOutput creates a new logger with a custom output
func newLoggerWithOutput(json bool, output zapcore.WriteSyncer) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var core zapcore.Core

	if json {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), output, zap.DebugLevel)
	} else {
		econf.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(econf), output, zap.DebugLevel)
	}
	return zap.New(core)
}
