package framework

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nvmetools/nvmetest/types"
)

// Step is an open test-step scope; verifications are recorded against it.
type Step struct {
	kase   *Case
	ctx    context.Context
	result *types.StepResult
}

// Step opens a step scope, runs the body, and closes the scope no matter how
// the body ends. The returned error is either nil or a signal bound for the
// case or suite, which the case body must propagate with `return`.
func (c *Case) Step(title, description string, body func(*Step) error) error {
	c.stepNumber++
	dirName := fmt.Sprintf("%d_%s", c.stepNumber, slug(title))
	dir := filepath.Join(c.result.Directory, dirName)

	st := &Step{
		kase: c,
		ctx:  c.ctx,
		result: &types.StepResult{
			Number:        c.stepNumber,
			Title:         title,
			Description:   description,
			Directory:     dir,
			DirectoryName: dirName,
			Outcome:       types.OutcomeAborted,
			Flow:          types.FlowAborted,
			StartTime:     time.Now(),
		},
	}
	c.result.Steps = append(c.result.Steps, st.result)

	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			err = &DirectoryConflictError{Path: dir}
		}
		return c.closeStep(st, fmt.Errorf("failed to open step directory: %w", err))
	}

	ctx, span := c.suite.tracer.Start(c.ctx, "step "+title)
	st.ctx = ctx
	c.suite.log.Debugw("step started", "case", c.result.Title, "number", st.result.Number, "title", title)

	err := runScope(func() error { return body(st) })
	span.End()
	return c.closeStep(st, err)
}

// Skip returns a signal that ends this step with outcome SKIPPED. The case
// continues with the next step.
func (st *Step) Skip(msg string) error {
	return &Signal{Kind: SignalSkip, Target: ScopeStep, Message: msg}
}

// Stop returns a signal that ends this step, finalizing it from the
// verifications recorded so far.
func (st *Step) Stop(msg string) error {
	return &Signal{Kind: SignalStop, Target: ScopeStep, Message: msg}
}

// Abort returns a signal that ends this step with outcome ABORTED.
func (st *Step) Abort(msg string) error {
	return &Signal{Kind: SignalAbort, Target: ScopeStep, Message: msg}
}

func (st *Step) Log() *zap.SugaredLogger  { return st.kase.suite.log }
func (st *Step) Context() context.Context { return st.ctx }
func (st *Step) Directory() string        { return st.result.Directory }
func (st *Step) Case() *Case              { return st.kase }

// Verify records one judgment against a requirement. The verification gets
// the next suite-global sequence number and feeds the case rollup right
// away. When the case runs with WithAbortOnFail, a failed verification
// returns a case-targeted abort the step body must propagate.
func (st *Step) Verify(rqmtID int, title string, verified bool, value any) error {
	suite := st.kase.suite
	suite.seq++

	outcome := types.OutcomePassed
	if !verified {
		outcome = types.OutcomeFailed
	}
	v := &types.Verification{
		Number:     suite.seq,
		RqmtID:     rqmtID,
		Title:      title,
		Outcome:    outcome,
		Value:      value,
		Time:       time.Now(),
		CaseTitle:  st.kase.result.Title,
		CaseNumber: st.kase.result.Number,
		StepTitle:  st.result.Title,
	}
	st.result.Verifications = append(st.result.Verifications, v)
	st.kase.result.Rollup()

	if verified {
		suite.log.Debugw("verification passed", "number", v.Number, "rqmt", rqmtID, "title", title, "value", value)
		return nil
	}
	suite.log.Warnw("verification failed", "number", v.Number, "rqmt", rqmtID, "title", title, "value", value)
	if st.kase.abortOnFail {
		return st.kase.Abort(fmt.Sprintf("verification %d failed: %s", v.Number, title))
	}
	return nil
}

// VerifyManual records a verification that needs human review, for checks
// the framework cannot judge on its own (waveforms, vendor logs). It counts
// against the requirement until a reviewer edits the persisted result.
func (st *Step) VerifyManual(rqmtID int, title string, value any) {
	suite := st.kase.suite
	suite.seq++
	st.result.Verifications = append(st.result.Verifications, &types.Verification{
		Number:     suite.seq,
		RqmtID:     rqmtID,
		Title:      title,
		Outcome:    types.OutcomeSkipped,
		Value:      value,
		Time:       time.Now(),
		CaseTitle:  st.kase.result.Title,
		CaseNumber: st.kase.result.Number,
		StepTitle:  st.result.Title,
	})
	st.kase.result.Rollup()
	suite.log.Infow("verification deferred to manual review", "rqmt", rqmtID, "title", title)
}

func (c *Case) closeStep(st *Step, err error) error {
	res := st.result
	res.EndTime = time.Now()
	var forward error

	switch {
	case err == nil:
		res.Flow = types.FlowCompleted
		res.Outcome = st.outcomeFromVerifications()
	default:
		if sig, ok := AsSignal(err); ok {
			switch {
			case sig.Target == ScopeStep && sig.Kind == SignalSkip:
				res.Flow = types.FlowSkipped
				res.Outcome = types.OutcomeSkipped
				c.suite.log.Infow("step skipped", "title", res.Title, "reason", sig.Message)
			case sig.Target == ScopeStep && sig.Kind == SignalStop:
				res.Flow = types.FlowStopped
				res.Outcome = st.outcomeFromVerifications()
			case sig.Target == ScopeStep && sig.Kind == SignalAbort:
				res.Flow = types.FlowAborted
				res.Outcome = types.OutcomeAborted
			case sig.Kind == SignalAbort:
				// Bound for the case or suite; this step dies with it.
				res.Flow = types.FlowAborted
				res.Outcome = types.OutcomeAborted
				forward = sig
			default:
				// A skip or stop bound for an enclosing scope finalizes this
				// step in passing.
				res.Flow = types.FlowStopped
				res.Outcome = st.outcomeFromVerifications()
				forward = sig
			}
		} else {
			res.Flow = types.FlowAborted
			res.Outcome = types.OutcomeAborted
			forward = err
		}
	}

	c.result.Rollup()
	c.suite.result.Rollup()
	if perr := writeResultJSON(filepath.Join(c.result.Directory, resultFilename), c.result); perr != nil {
		c.suite.log.Errorw("failed to persist case result", "title", c.result.Title, "error", perr)
	}
	if perr := c.suite.persist(); perr != nil {
		c.suite.log.Errorw("failed to persist suite result", "error", perr)
	}

	c.suite.log.Debugw("step finished",
		"case", c.result.Title,
		"number", res.Number,
		"title", res.Title,
		"outcome", res.Outcome,
		"flow", res.Flow)
	return forward
}

func (st *Step) outcomeFromVerifications() types.Outcome {
	for _, v := range st.result.Verifications {
		if v.Outcome != types.OutcomePassed {
			return types.OutcomeFailed
		}
	}
	return types.OutcomePassed
}
