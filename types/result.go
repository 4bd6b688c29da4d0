package types

import "time"

// Verification is one pass/fail judgment against a named requirement,
// produced inside a step. Created exactly once and never mutated by the
// framework; the Reviewer and Note fields exist for out-of-band manual edits.
type Verification struct {
	Number     int       `json:"number"`
	RqmtID     int       `json:"id"`
	Title      string    `json:"title"`
	Outcome    Outcome   `json:"outcome"`
	Value      any       `json:"value"`
	Time       time.Time `json:"time"`
	Reviewer   string    `json:"reviewer,omitempty"`
	Note       string    `json:"note,omitempty"`
	CaseTitle  string    `json:"case"`
	CaseNumber int       `json:"case_number"`
	StepTitle  string    `json:"step"`
}

// StepResult captures one finished test step and its verifications.
type StepResult struct {
	Number        int             `json:"number"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Directory     string          `json:"directory"`
	DirectoryName string          `json:"directory_name"`
	Outcome       Outcome         `json:"outcome"`
	Flow          Flow            `json:"flow"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Verifications []*Verification `json:"verifications"`
}

// CaseResult captures one finished test case: its steps, the flattened
// verification list, the per-requirement rollup and arbitrary reporting data.
type CaseResult struct {
	Number        int                 `json:"number"`
	Title         string              `json:"title"`
	Description   string              `json:"description,omitempty"`
	Directory     string              `json:"directory"`
	DirectoryName string              `json:"directory_name"`
	Outcome       Outcome             `json:"outcome"`
	Flow          Flow                `json:"flow"`
	StartTime     time.Time           `json:"start_time"`
	EndTime       time.Time           `json:"end_time"`
	Error         string              `json:"error,omitempty"`
	Summary       Summary             `json:"summary"`
	Steps         []*StepResult       `json:"steps"`
	Verifications []*Verification     `json:"verifications"`
	Rqmts         map[int]*RqmtCounts `json:"rqmts"`
	Data          map[string]any      `json:"data,omitempty"`
}

// SuiteResult is the root of the persisted result tree, one per run.
type SuiteResult struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ID          string    `json:"id"`
	Directory   string    `json:"directory"`
	Outcome     Outcome   `json:"outcome"`
	Flow        Flow      `json:"flow"`
	Complete    bool      `json:"complete"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Version     string    `json:"script_version,omitempty"`
	System      string    `json:"system,omitempty"`
	Model       string    `json:"model,omitempty"`
	Location    string    `json:"location,omitempty"`

	Summary       Summary             `json:"summary"`
	Cases         []*CaseResult       `json:"cases"`
	Verifications []*Verification     `json:"verifications"`
	Rqmts         map[int]*RqmtCounts `json:"rqmts"`
	Data          map[string]any      `json:"data,omitempty"`
}

// Rollup recomputes the case summary from its steps' already-computed
// verification lists. Single pass over direct children; called every time a
// step closes and again when the case closes.
//
// A verification counts as passing only when its outcome is PASSED; a
// verification deferred to manual review (SKIPPED) counts against the
// requirement until it is resolved, which keeps total == pass + fail.
func (c *CaseResult) Rollup() {
	steps := Counts{}
	vers := Counts{}
	rqmts := make(map[int]*RqmtCounts)
	flat := make([]*Verification, 0, len(c.Verifications))

	for _, step := range c.Steps {
		steps.Total++
		switch {
		case step.Outcome == OutcomePassed:
			steps.Pass++
		case step.Outcome == OutcomeSkipped:
			steps.Skip++
		default:
			steps.Fail++
		}

		for _, v := range step.Verifications {
			flat = append(flat, v)
			vers.Total++
			rqmt := rqmts[v.RqmtID]
			if rqmt == nil {
				rqmt = &RqmtCounts{}
				rqmts[v.RqmtID] = rqmt
			}
			rqmt.Total++
			if v.Outcome == OutcomePassed {
				vers.Pass++
				rqmt.Pass++
			} else {
				vers.Fail++
				rqmt.Fail++
			}
		}
	}

	c.Verifications = flat
	c.Rqmts = rqmts
	c.Summary = Summary{
		Steps:         &steps,
		Rqmts:         rqmtSummary(rqmts),
		Verifications: vers,
	}
}

// Rollup recomputes the suite summary from its cases' already-computed
// flattened verification lists. Skipped cases appear in the skip count only.
func (s *SuiteResult) Rollup() {
	tests := Counts{}
	vers := Counts{}
	rqmts := make(map[int]*RqmtCounts)
	flat := make([]*Verification, 0, len(s.Verifications))

	for _, tc := range s.Cases {
		tests.Total++
		switch {
		case tc.Outcome == OutcomePassed:
			tests.Pass++
		case tc.Outcome == OutcomeSkipped:
			tests.Skip++
		default:
			tests.Fail++
		}

		for _, v := range tc.Verifications {
			flat = append(flat, v)
			vers.Total++
			rqmt := rqmts[v.RqmtID]
			if rqmt == nil {
				rqmt = &RqmtCounts{}
				rqmts[v.RqmtID] = rqmt
			}
			rqmt.Total++
			if v.Outcome == OutcomePassed {
				vers.Pass++
				rqmt.Pass++
			} else {
				vers.Fail++
				rqmt.Fail++
			}
		}
	}

	s.Verifications = flat
	s.Rqmts = rqmts
	s.Summary = Summary{
		Tests:         &tests,
		Rqmts:         rqmtSummary(rqmts),
		Verifications: vers,
	}
}

// FailedVerifications returns the verifications that did not pass, in
// sequence order. Used by reporting to point at the cause of a failure.
func (s *SuiteResult) FailedVerifications() []*Verification {
	var failed []*Verification
	for _, v := range s.Verifications {
		if v.Outcome != OutcomePassed {
			failed = append(failed, v)
		}
	}
	return failed
}

func rqmtSummary(rqmts map[int]*RqmtCounts) RqmtCounts {
	out := RqmtCounts{Total: len(rqmts)}
	for _, rqmt := range rqmts {
		if rqmt.Fail == 0 {
			out.Pass++
		} else {
			out.Fail++
		}
	}
	return out
}
