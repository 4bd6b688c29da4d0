// Package types defines the result data model shared across the framework:
// outcomes, flows, verifications and the Suite/Case/Step result tree that is
// persisted to disk and consumed by reporting.
package types

// Outcome represents the pass/fail state of a verification, step, case or suite.
type Outcome string

const (
	OutcomePassed  Outcome = "PASSED"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
	OutcomeAborted Outcome = "ABORTED"
)

// CountsAsFailure reports whether the outcome makes the enclosing scope fail.
// SKIPPED is orthogonal: it is counted separately and never fails a parent.
func (o Outcome) CountsAsFailure() bool {
	return o == OutcomeFailed || o == OutcomeAborted
}

// Flow records how a scope ended, independent of its outcome. A stopped step
// can still be PASSED if everything that ran before the stop succeeded.
type Flow string

const (
	FlowCompleted Flow = "COMPLETED"
	FlowStopped   Flow = "STOPPED"
	FlowSkipped   Flow = "SKIPPED"
	FlowAborted   Flow = "ABORTED"
)

// Counts tracks child totals at one level of the result tree.
type Counts struct {
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
	Skip  int `json:"skip,omitempty"`
}

// RqmtCounts tracks how often a requirement was verified and with what result.
// A requirement is passing at a given scope iff Fail is zero.
type RqmtCounts struct {
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
}

// Summary holds the derived per-scope counters. Cases carry Steps, suites
// carry Tests; the other pointer stays nil and is omitted from JSON.
type Summary struct {
	Tests         *Counts    `json:"tests,omitempty"`
	Steps         *Counts    `json:"steps,omitempty"`
	Rqmts         RqmtCounts `json:"rqmts"`
	Verifications Counts     `json:"verifications"`
}
