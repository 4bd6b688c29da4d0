package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nvmetools/nvmetest/types"
)

// RenderTable writes the end-of-run results table to w. The table is styled
// by the overall outcome: green when everything passed, yellow when cases
// were skipped, red on any failure.
func RenderTable(w io.Writer, result *types.SuiteResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s (%s)", result.Title,
		formatDuration(result.EndTime.Sub(result.StartTime))))

	t.AppendHeader(table.Row{
		"Type", "Title", "Duration", "Rqmts", "Passed", "Failed", "Outcome", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Title", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Rqmts", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	skipped := 0
	for _, tc := range result.Cases {
		if tc.Outcome == types.OutcomeSkipped {
			skipped++
		}
		t.AppendRow(table.Row{
			"Case",
			tc.Title,
			formatDuration(tc.EndTime.Sub(tc.StartTime)),
			tc.Summary.Rqmts.Total,
			tc.Summary.Verifications.Pass,
			tc.Summary.Verifications.Fail,
			string(tc.Outcome),
			tc.Error,
		})
		for i, step := range tc.Steps {
			prefix := "├──"
			if i == len(tc.Steps)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"Step",
				fmt.Sprintf("%s %s", prefix, step.Title),
				formatDuration(step.EndTime.Sub(step.StartTime)),
				"-",
				stepCount(step, types.OutcomePassed),
				stepFailCount(step),
				string(step.Outcome),
				"",
			})
		}
		t.AppendSeparator()
	}

	switch {
	case result.Outcome.CountsAsFailure():
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case skipped > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.EndTime.Sub(result.StartTime)),
		result.Summary.Rqmts.Total,
		result.Summary.Verifications.Pass,
		result.Summary.Verifications.Fail,
		strings.ToUpper(string(result.Outcome)),
		"",
	})

	t.Render()
}

func stepCount(step *types.StepResult, outcome types.Outcome) int {
	n := 0
	for _, v := range step.Verifications {
		if v.Outcome == outcome {
			n++
		}
	}
	return n
}

func stepFailCount(step *types.StepResult) int {
	n := 0
	for _, v := range step.Verifications {
		if v.Outcome != types.OutcomePassed {
			n++
		}
	}
	return n
}
