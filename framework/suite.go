package framework

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nvmetools/nvmetest/logging"
	"github.com/nvmetools/nvmetest/types"
)

// Reporter receives the finished suite result exactly once, after the suite
// closes. Reporting failures are logged, never escalated.
type Reporter interface {
	Complete(result *types.SuiteResult) error
}

// Config describes one suite run.
type Config struct {
	Title       string
	Description string
	// UID names the run directory under <OutputDir>/<suite slug>. A
	// timestamp is generated when empty.
	UID       string
	OutputDir string

	Version  string
	Model    string
	System   string
	Location string

	// AbortOnFail raises a suite-level stop as soon as a case closes FAILED.
	AbortOnFail bool
	// ContinueOnException keeps the suite running after a case aborts on an
	// unhandled error. The default escalates the abort to the suite.
	ContinueOnException bool

	LogLevel zapcore.Level
	// Log overrides the per-suite logger. When nil the suite tees console
	// output into console.log inside its run directory.
	Log      *zap.SugaredLogger
	Reporter Reporter
	Data     map[string]any
}

// Suite is the open root scope handed to the suite body. Cases are started
// with RunCase; Data is free-form state shared between cases (drive info,
// snapshots) that ends up in the persisted result.
type Suite struct {
	ctx    context.Context
	cfg    Config
	log    *zap.SugaredLogger
	tracer trace.Tracer
	result *types.SuiteResult
	Data   map[string]any

	caseNumber int
	seq        int
}

// RunSuite opens a suite scope, runs the body, and closes the scope no matter
// how the body ends. The returned error covers only failures to open the
// scope (bad config, directory conflict); once the suite starts, everything
// that happens is captured in the result.
func RunSuite(ctx context.Context, cfg Config, body func(*Suite) error) (*types.SuiteResult, error) {
	if cfg.Title == "" {
		return nil, errors.New("suite title is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("suite output directory is required")
	}
	if body == nil {
		return nil, errors.New("suite body is required")
	}

	uid := cfg.UID
	if uid == "" {
		uid = time.Now().Format("20060102_150405")
	}
	dir := filepath.Join(cfg.OutputDir, slug(cfg.Title), uid)
	if _, err := os.Stat(dir); err == nil {
		return nil, &DirectoryConflictError{Path: dir}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create suite directory: %w", err)
	}

	log := cfg.Log
	closeLog := func() error { return nil }
	if log == nil {
		var err error
		log, closeLog, err = logging.NewSuiteLogger(cfg.LogLevel, dir)
		if err != nil {
			return nil, err
		}
	}

	data := cfg.Data
	if data == nil {
		data = make(map[string]any)
	}

	s := &Suite{
		ctx:    ctx,
		cfg:    cfg,
		log:    log,
		tracer: otel.Tracer("nvmetest/framework"),
		Data:   data,
		result: &types.SuiteResult{
			Title:       cfg.Title,
			Description: cfg.Description,
			ID:          uid,
			Directory:   dir,
			Outcome:     types.OutcomeAborted,
			Flow:        types.FlowAborted,
			StartTime:   time.Now(),
			Version:     cfg.Version,
			Model:       cfg.Model,
			System:      cfg.System,
			Location:    cfg.Location,
			Data:        data,
		},
	}

	// The initial persisted state is ABORTED so a hard crash leaves an
	// honest file behind.
	s.result.Rollup()
	if err := s.persist(); err != nil {
		_ = closeLog()
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "suite "+cfg.Title)
	s.ctx = ctx
	log.Infow("suite started", "title", cfg.Title, "id", uid, "directory", dir)

	err := runScope(func() error { return body(s) })
	s.close(err)
	span.End()

	if cfg.Reporter != nil {
		if rerr := cfg.Reporter.Complete(s.result); rerr != nil {
			log.Errorw("reporter failed", "error", rerr)
		}
	}

	log.Infow("suite finished",
		"outcome", s.result.Outcome,
		"flow", s.result.Flow,
		"cases", len(s.result.Cases),
		"verifications", s.result.Summary.Verifications.Total)
	_ = closeLog()
	return s.result, nil
}

// Stop returns a signal that ends the suite after finalizing every open
// scope from what has already run.
func (s *Suite) Stop(msg string) error {
	return &Signal{Kind: SignalStop, Target: ScopeSuite, Message: msg}
}

// Abort returns a signal that ends the suite marking every scope it closes
// ABORTED.
func (s *Suite) Abort(msg string) error {
	return &Signal{Kind: SignalAbort, Target: ScopeSuite, Message: msg}
}

func (s *Suite) Log() *zap.SugaredLogger    { return s.log }
func (s *Suite) Directory() string          { return s.result.Directory }
func (s *Suite) ID() string                 { return s.result.ID }
func (s *Suite) Result() *types.SuiteResult { return s.result }

func (s *Suite) close(err error) {
	res := s.result
	res.EndTime = time.Now()

	switch {
	case err == nil:
		res.Flow = types.FlowCompleted
		res.Outcome = s.outcomeFromCases()
	default:
		if sig, ok := AsSignal(err); ok && sig.Target == ScopeSuite {
			switch sig.Kind {
			case SignalStop:
				res.Flow = types.FlowStopped
				res.Outcome = s.outcomeFromCases()
				s.log.Infow("suite stopped", "reason", sig.Message)
			case SignalAbort:
				res.Flow = types.FlowAborted
				res.Outcome = types.OutcomeAborted
				s.log.Errorw("suite aborted", "reason", sig.Message)
			default:
				res.Flow = types.FlowSkipped
				res.Outcome = types.OutcomeSkipped
			}
		} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Flow = types.FlowStopped
			res.Outcome = s.outcomeFromCases()
			s.log.Warnw("suite interrupted", "error", err)
		} else {
			// Includes signals that never reached their target scope, which
			// is a programmer error.
			res.Flow = types.FlowAborted
			res.Outcome = types.OutcomeAborted
			s.log.Errorw("suite aborted on unhandled error", "error", err)
		}
	}

	res.Complete = res.Flow != types.FlowAborted && s.abortedCases() == 0
	res.Rollup()
	if perr := s.persist(); perr != nil {
		s.log.Errorw("failed to persist suite result", "error", perr)
	}
}

func (s *Suite) outcomeFromCases() types.Outcome {
	for _, tc := range s.result.Cases {
		if tc.Outcome.CountsAsFailure() {
			return types.OutcomeFailed
		}
	}
	return types.OutcomePassed
}

func (s *Suite) abortedCases() int {
	n := 0
	for _, tc := range s.result.Cases {
		if tc.Outcome == types.OutcomeAborted {
			n++
		}
	}
	return n
}

func (s *Suite) persist() error {
	return writeResultJSON(filepath.Join(s.result.Directory, resultFilename), s.result)
}
