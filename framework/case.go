package framework

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nvmetools/nvmetest/types"
)

// CaseOption configures a single case run.
type CaseOption func(*Case)

// WithAbortOnFail makes the first failed verification abort the case
// immediately instead of letting the remaining steps run.
func WithAbortOnFail() CaseOption {
	return func(c *Case) { c.abortOnFail = true }
}

// Case is an open test-case scope. Steps are started with Step; Data is
// free-form state that ends up in the persisted case result.
type Case struct {
	suite  *Suite
	ctx    context.Context
	result *types.CaseResult
	Data   map[string]any

	abortOnFail bool
	stepNumber  int
}

// RunCase opens a case scope, runs the body, and closes the scope no matter
// how the body ends. The returned error is either nil or a suite-targeted
// signal the suite body must propagate with `return`.
func (s *Suite) RunCase(title, description string, body func(*Case) error, opts ...CaseOption) error {
	s.caseNumber++
	dirName := fmt.Sprintf("%d_%s", s.caseNumber, slug(title))
	dir := filepath.Join(s.result.Directory, dirName)

	c := &Case{
		suite: s,
		ctx:   s.ctx,
		result: &types.CaseResult{
			Number:        s.caseNumber,
			Title:         title,
			Description:   description,
			Directory:     dir,
			DirectoryName: dirName,
			Outcome:       types.OutcomeAborted,
			Flow:          types.FlowAborted,
			StartTime:     time.Now(),
			Data:          make(map[string]any),
		},
	}
	c.Data = c.result.Data
	for _, opt := range opts {
		opt(c)
	}
	s.result.Cases = append(s.result.Cases, c.result)

	if err := s.ctx.Err(); err != nil {
		return s.closeCase(c, err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			err = &DirectoryConflictError{Path: dir}
		}
		return s.closeCase(c, fmt.Errorf("failed to open case directory: %w", err))
	}

	ctx, span := s.tracer.Start(s.ctx, "case "+title)
	c.ctx = ctx
	s.log.Infow("case started", "number", c.result.Number, "title", title)

	err := runScope(func() error { return body(c) })
	span.End()
	return s.closeCase(c, err)
}

// Skip returns a signal that ends this case with outcome SKIPPED. Prior
// cases keep their results and the suite continues with the next case.
func (c *Case) Skip(msg string) error {
	return &Signal{Kind: SignalSkip, Target: ScopeCase, Message: msg}
}

// Stop returns a signal that ends this case, finalizing it from the steps
// that already ran.
func (c *Case) Stop(msg string) error {
	return &Signal{Kind: SignalStop, Target: ScopeCase, Message: msg}
}

// Abort returns a signal that ends this case with outcome ABORTED.
func (c *Case) Abort(msg string) error {
	return &Signal{Kind: SignalAbort, Target: ScopeCase, Message: msg}
}

func (c *Case) Log() *zap.SugaredLogger  { return c.suite.log }
func (c *Case) Context() context.Context { return c.ctx }
func (c *Case) Directory() string        { return c.result.Directory }
func (c *Case) Suite() *Suite            { return c.suite }

func (s *Suite) closeCase(c *Case, err error) error {
	res := c.result
	res.EndTime = time.Now()
	var forward error

	switch {
	case err == nil:
		res.Flow = types.FlowCompleted
		res.Outcome = c.outcomeFromSteps()
	default:
		if sig, ok := AsSignal(err); ok {
			switch {
			case sig.Target == ScopeCase && sig.Kind == SignalSkip:
				res.Flow = types.FlowSkipped
				res.Outcome = types.OutcomeSkipped
				s.log.Infow("case skipped", "title", res.Title, "reason", sig.Message)
			case sig.Target == ScopeCase && sig.Kind == SignalStop:
				res.Flow = types.FlowStopped
				res.Outcome = c.outcomeFromSteps()
			case sig.Target == ScopeCase && sig.Kind == SignalAbort:
				res.Flow = types.FlowAborted
				res.Outcome = types.OutcomeAborted
				res.Error = sig.Message
			case sig.Target == ScopeSuite && sig.Kind == SignalAbort:
				res.Flow = types.FlowAborted
				res.Outcome = types.OutcomeAborted
				res.Error = sig.Message
				forward = sig
			case sig.Target == ScopeSuite:
				// A stop bound for the suite finalizes this case in passing.
				res.Flow = types.FlowStopped
				res.Outcome = c.outcomeFromSteps()
				forward = sig
			default:
				// A step signal leaked past its scope.
				res.Flow = types.FlowAborted
				res.Outcome = types.OutcomeAborted
				res.Error = fmt.Sprintf("unresolved signal: %v", sig)
				forward = s.Abort(res.Error)
			}
		} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Flow = types.FlowAborted
			res.Outcome = types.OutcomeAborted
			res.Error = "interrupted: " + err.Error()
			forward = s.Stop("operator interrupt")
		} else {
			res.Flow = types.FlowAborted
			res.Outcome = types.OutcomeAborted
			res.Error = err.Error()
			s.log.Errorw("case aborted", "title", res.Title, "error", err)
			if !s.cfg.ContinueOnException {
				forward = s.Abort(fmt.Sprintf("case %q aborted: %s", res.Title, firstLine(err.Error())))
			}
		}
	}

	res.Rollup()
	s.result.Rollup()

	if perr := writeResultJSON(filepath.Join(res.Directory, resultFilename), res); perr != nil {
		s.log.Errorw("failed to persist case result", "title", res.Title, "error", perr)
	}
	if perr := s.persist(); perr != nil {
		s.log.Errorw("failed to persist suite result", "error", perr)
	}

	s.log.Infow("case finished",
		"number", res.Number,
		"title", res.Title,
		"outcome", res.Outcome,
		"flow", res.Flow,
		"verifications", res.Summary.Verifications.Total)

	if forward == nil && s.cfg.AbortOnFail && res.Outcome == types.OutcomeFailed {
		forward = s.Stop(fmt.Sprintf("case %q failed", res.Title))
	}
	return forward
}

func (c *Case) outcomeFromSteps() types.Outcome {
	for _, step := range c.result.Steps {
		if step.Outcome.CountsAsFailure() {
			return types.OutcomeFailed
		}
	}
	return types.OutcomePassed
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
