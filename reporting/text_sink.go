package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvmetools/nvmetest/types"
)

// SummaryFilename is the text summary written next to the result JSON.
const SummaryFilename = "summary.log"

// TextSummarySink writes a plain-text summary of a finished suite into the
// suite's run directory. It implements the framework's Reporter hook.
type TextSummarySink struct {
	includeDetails bool
}

// NewTextSummarySink creates a text summary sink. With includeDetails the
// summary carries the full case/step/verification tree.
func NewTextSummarySink(includeDetails bool) *TextSummarySink {
	return &TextSummarySink{includeDetails: includeDetails}
}

// Complete writes summary.log for the finished suite.
func (s *TextSummarySink) Complete(result *types.SuiteResult) error {
	content := s.format(result)
	path := filepath.Join(result.Directory, SummaryFilename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

func (s *TextSummarySink) format(result *types.SuiteResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "SUITE SUMMARY\n")
	fmt.Fprintf(&b, "=============\n")
	fmt.Fprintf(&b, "Suite: %s\n", result.Title)
	fmt.Fprintf(&b, "Run ID: %s\n", result.ID)
	fmt.Fprintf(&b, "Time: %s\n", result.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(result.EndTime.Sub(result.StartTime)))
	fmt.Fprintf(&b, "Outcome: %s (%s)\n\n", result.Outcome, result.Flow)

	if !result.Complete {
		fmt.Fprintf(&b, "WARNING: the run did not complete, results are partial.\n\n")
	}

	tests := result.Summary.Tests
	if tests == nil {
		tests = &types.Counts{}
	}
	fmt.Fprintf(&b, "Results:\n")
	fmt.Fprintf(&b, "  Cases:         %d total, %d passed, %d failed, %d skipped\n",
		tests.Total, tests.Pass, tests.Fail, tests.Skip)
	fmt.Fprintf(&b, "  Requirements:  %d total, %d passed, %d failed\n",
		result.Summary.Rqmts.Total, result.Summary.Rqmts.Pass, result.Summary.Rqmts.Fail)
	fmt.Fprintf(&b, "  Verifications: %d total, %d passed, %d failed (%s)\n\n",
		result.Summary.Verifications.Total, result.Summary.Verifications.Pass,
		result.Summary.Verifications.Fail, passRate(result.Summary.Verifications))

	if failed := result.FailedVerifications(); len(failed) > 0 {
		fmt.Fprintf(&b, "Failed verifications:\n")
		for _, v := range failed {
			fmt.Fprintf(&b, "  - [%d] %s = %v (%s / %s)\n",
				v.RqmtID, v.Title, v.Value, v.CaseTitle, v.StepTitle)
		}
		fmt.Fprintf(&b, "\n")
	}

	if s.includeDetails {
		fmt.Fprintf(&b, "DETAILED RESULTS:\n")
		fmt.Fprintf(&b, "=================\n")
		for _, tc := range result.Cases {
			duration := tc.EndTime.Sub(tc.StartTime)
			fmt.Fprintf(&b, "Case %d: %s (%s) [%s]\n", tc.Number, tc.Title, formatDuration(duration), tc.Outcome)
			if tc.Error != "" {
				fmt.Fprintf(&b, "  error: %s\n", tc.Error)
			}
			for _, step := range tc.Steps {
				fmt.Fprintf(&b, "  ├── Step %d: %s [%s]\n", step.Number, step.Title, step.Outcome)
				for _, v := range step.Verifications {
					fmt.Fprintf(&b, "  │   ├── [%d] %s = %v [%s]\n", v.RqmtID, v.Title, v.Value, v.Outcome)
				}
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	return b.String()
}
