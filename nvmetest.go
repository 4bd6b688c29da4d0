// Package nvmetest wires the pieces together: it resolves the requested
// suite from the registry, runs it through the framework, renders the
// results table and records metrics. Exit-code mapping follows the typed
// errors in errors.go.
package nvmetest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nvmetools/nvmetest/cases"
	"github.com/nvmetools/nvmetest/fio"
	"github.com/nvmetools/nvmetest/framework"
	"github.com/nvmetools/nvmetest/metrics"
	"github.com/nvmetools/nvmetest/nvmecmd"
	"github.com/nvmetools/nvmetest/registry"
	"github.com/nvmetools/nvmetest/reporting"
	"github.com/nvmetools/nvmetest/snapshot"
	"github.com/nvmetools/nvmetest/types"
)

// Tester runs one test suite against one NVMe device.
type Tester struct {
	config   *Config
	version  string
	registry *registry.Registry
	result   *types.SuiteResult
}

func New(config *Config, version string) (*Tester, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debugw("Creating tester",
		"device", config.Device,
		"volume", config.Volume,
		"suite", config.SuiteID,
		"outputDir", config.OutputDir)

	reg, err := registry.New(registry.Config{Log: config.Log})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	caseCfg := cases.Config{
		Nvmecmd: nvmecmd.Config{
			Binary: config.NvmecmdBinary,
			Device: config.Device,
			Log:    config.Log,
		},
		Fio: fio.Config{
			Binary: config.FioBinary,
			Log:    config.Log,
		},
		Volume: config.Volume,
	}
	if err := cases.RegisterAll(reg, caseCfg); err != nil {
		return nil, fmt.Errorf("failed to register cases: %w", err)
	}
	for _, def := range cases.BuiltinSuites() {
		if err := reg.AddSuite(def); err != nil {
			return nil, fmt.Errorf("failed to add built-in suite: %w", err)
		}
	}
	if config.SuiteFile != "" {
		if err := reg.LoadSuiteFile(config.SuiteFile); err != nil {
			return nil, fmt.Errorf("failed to load suite file: %w", err)
		}
	}

	return &Tester{
		config:   config,
		version:  version,
		registry: reg,
	}, nil
}

// Run resolves and executes the configured suite once. It returns nil when
// every verification passed, a TestFailureError when verifications failed,
// and a RuntimeError for anything operational.
func (t *Tester) Run(ctx context.Context) error {
	log := t.config.Log

	suite, err := t.registry.Resolve(t.config.SuiteID)
	if err != nil {
		return NewRuntimeError(err)
	}
	if err := nvmecmd.CheckPermissions(t.config.NvmecmdBinary); err != nil {
		return NewRuntimeError(err)
	}

	hostname, _ := os.Hostname()
	log.Infow("Running suite", "suite", suite.ID, "title", suite.Title, "run_id", t.config.RunID)

	result, err := framework.RunSuite(ctx, framework.Config{
		Title:               suite.Title,
		Description:         suite.Description,
		UID:                 t.config.RunID,
		OutputDir:           t.config.OutputDir,
		Version:             t.version,
		System:              hostname,
		AbortOnFail:         suite.AbortOnFail,
		ContinueOnException: suite.ContinueOnException,
		LogLevel:            t.config.LogLevel,
		Reporter:            reporting.NewTextSummarySink(true),
	}, func(s *framework.Suite) error {
		for _, run := range suite.Runs {
			if err := run.Run(s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Errorw("Runtime error running suite", "error", err)
		return NewRuntimeError(err)
	}
	t.result = result
	fillModel(result)

	reporting.RenderTable(os.Stdout, result)
	metrics.RecordSuite(result)
	log.Infow("Suite run completed",
		"run_id", result.ID,
		"outcome", result.Outcome,
		"complete", result.Complete,
		"directory", result.Directory)

	if !result.Complete {
		return NewRuntimeError(fmt.Errorf("suite %s did not complete, see %s", suite.ID, result.Directory))
	}
	if result.Outcome.CountsAsFailure() {
		failed := result.FailedVerifications()
		return NewTestFailureError(fmt.Sprintf("%d verification(s) failed, see %s",
			len(failed), result.Directory))
	}
	return nil
}

// Result returns the last finished suite result.
func (t *Tester) Result() *types.SuiteResult {
	return t.result
}

// fillModel copies the drive model out of the start-info snapshot so the
// metrics labels carry it.
func fillModel(result *types.SuiteResult) {
	info, ok := result.Data[cases.StartInfoKey].(*snapshot.Snapshot)
	if !ok {
		return
	}
	if model, ok := info.Get("Model Number"); ok {
		result.Model = model
	}
}
