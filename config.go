package nvmetest

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nvmetools/nvmetest/flags"
	"github.com/nvmetools/nvmetest/logging"
)

// Config holds the application configuration
type Config struct {
	Device        int    // NVMe device number under test
	Volume        string // Mount point of a filesystem on the device
	SuiteID       string // Suite to run
	SuiteFile     string // Optional YAML file with extra suite definitions
	RunID         string // Unique id for the run, generated when empty
	OutputDir     string // Directory suite results land in
	NvmecmdBinary string // Path to the admin-command reader
	FioBinary     string // Path to the I/O-load generator
	LogLevel      zapcore.Level
	Monitor       bool // Serve /healthz and /metrics during the run
	Log           *zap.SugaredLogger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *zap.SugaredLogger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	volume := ctx.String(flags.Volume.Name)
	if volume == "" {
		return nil, errors.New("volume is required")
	}
	absVolume, err := filepath.Abs(volume)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for volume '%s': %w", volume, err)
	}

	outputDir, err := filepath.Abs(ctx.String(flags.OutputDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for output directory: %w", err)
	}

	var suiteFile string
	if path := ctx.String(flags.SuiteFile.Name); path != "" {
		suiteFile, err = filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for suite file '%s': %w", path, err)
		}
	}

	runID := ctx.String(flags.RunID.Name)
	if runID == "" {
		runID = uuid.New().String()
	}

	return &Config{
		Device:        ctx.Int(flags.Device.Name),
		Volume:        absVolume,
		SuiteID:       ctx.String(flags.Suite.Name),
		SuiteFile:     suiteFile,
		RunID:         runID,
		OutputDir:     outputDir,
		NvmecmdBinary: ctx.String(flags.NvmecmdBinary.Name),
		FioBinary:     ctx.String(flags.FioBinary.Name),
		LogLevel:      logging.ParseLevel(ctx.String(flags.LogLevel.Name)),
		Monitor:       ctx.Bool(flags.Monitor.Name),
		Log:           log,
	}, nil
}
