package reporting

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvmetools/nvmetest/types"
)

func sampleResult(dir string) *types.SuiteResult {
	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	passing := &types.Verification{
		Number: 1, RqmtID: 11, Title: "Critical warnings shall be 0",
		Outcome: types.OutcomePassed, Value: 0,
		CaseTitle: "Suite Start Info", StepTitle: "Verify info",
	}
	failing := &types.Verification{
		Number: 2, RqmtID: 13, Title: "Media and integrity errors shall be 0",
		Outcome: types.OutcomeFailed, Value: 12,
		CaseTitle: "Suite Start Info", StepTitle: "Verify info",
	}
	result := &types.SuiteResult{
		Title:     "Drive Health Check",
		ID:        "run1",
		Directory: dir,
		Outcome:   types.OutcomeFailed,
		Flow:      types.FlowCompleted,
		Complete:  true,
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Cases: []*types.CaseResult{
			{
				Number:    1,
				Title:     "Suite Start Info",
				Outcome:   types.OutcomeFailed,
				Flow:      types.FlowCompleted,
				StartTime: start,
				EndTime:   start.Add(time.Minute),
				Steps: []*types.StepResult{
					{
						Number: 1, Title: "Verify info",
						Outcome:       types.OutcomeFailed,
						Flow:          types.FlowCompleted,
						Verifications: []*types.Verification{passing, failing},
					},
				},
			},
		},
	}
	for _, tc := range result.Cases {
		tc.Rollup()
	}
	result.Rollup()
	return result
}

func TestTextSummarySink_Complete(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult(dir)

	sink := NewTextSummarySink(true)
	require.NoError(t, sink.Complete(result))

	data, err := os.ReadFile(filepath.Join(dir, SummaryFilename))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "Suite: Drive Health Check")
	assert.Contains(t, content, "Run ID: run1")
	assert.Contains(t, content, "Outcome: FAILED")
	assert.Contains(t, content, "Verifications: 2 total, 1 passed, 1 failed (50.0%)")
	assert.Contains(t, content, "[13] Media and integrity errors shall be 0 = 12")
	assert.Contains(t, content, "Case 1: Suite Start Info")
	assert.Contains(t, content, "Step 1: Verify info")
}

func TestTextSummarySink_IncompleteWarning(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult(dir)
	result.Complete = false
	result.Flow = types.FlowAborted

	require.NoError(t, NewTextSummarySink(false).Complete(result))

	data, err := os.ReadFile(filepath.Join(dir, SummaryFilename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "did not complete")
	assert.NotContains(t, string(data), "DETAILED RESULTS")
}

func TestRenderTable(t *testing.T) {
	result := sampleResult(t.TempDir())

	var buf bytes.Buffer
	RenderTable(&buf, result)
	out := buf.String()

	assert.Contains(t, out, "Drive Health Check")
	assert.Contains(t, out, "Suite Start Info")
	assert.Contains(t, out, "Verify info")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "TOTAL")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1m30s", formatDuration(90*time.Second))
}

func TestPassRate(t *testing.T) {
	assert.Equal(t, "-", passRate(types.Counts{}))
	assert.Equal(t, "75.0%", passRate(types.Counts{Total: 4, Pass: 3}))
}
