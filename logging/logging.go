// Package logging configures the zap loggers used across the framework. A
// plain console logger is available before any suite starts; once a suite
// directory exists, NewSuiteLogger tees console output into a console.log
// file inside it, with ANSI escape sequences stripped so the file stays
// readable in editors and diff tools.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/acarl005/stripansi"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const consoleLogFilename = "console.log"

// ParseLevel maps the CLI verbosity string onto a zap level, defaulting to
// info for anything unrecognized.
func ParseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// New returns a console-only sugared logger at the given level.
func New(level zapcore.Level) *zap.SugaredLogger {
	return zap.New(consoleCore(level)).Sugar()
}

// NewSuiteLogger returns a sugared logger that writes to the console and to
// <dir>/console.log. The returned close function flushes and closes the file;
// the directory must already exist.
func NewSuiteLogger(level zapcore.Level, dir string) (*zap.SugaredLogger, func() error, error) {
	path := filepath.Join(dir, consoleLogFilename)
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(fileEncoderConfig()),
		&ansiStrippingSyncer{file: f},
		level,
	)
	log := zap.New(zapcore.NewTee(consoleCore(level), fileCore)).Sugar()

	closer := func() error {
		_ = log.Sync()
		return f.Close()
	}
	return log, closer, nil
}

func consoleCore(level zapcore.Level) zapcore.Core {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stdout), level)
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	return cfg
}

// ansiStrippingSyncer removes ANSI escape sequences before writing. Console
// output may carry color codes from table rendering or collaborator output
// that would otherwise litter the log file.
type ansiStrippingSyncer struct {
	file *os.File
}

func (s *ansiStrippingSyncer) Write(p []byte) (int, error) {
	if _, err := s.file.WriteString(stripansi.Strip(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *ansiStrippingSyncer) Sync() error {
	return s.file.Sync()
}
