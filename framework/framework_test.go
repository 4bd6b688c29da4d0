package framework

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nvmetools/nvmetest/types"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Title:     "Demo Suite",
		UID:       "run1",
		OutputDir: t.TempDir(),
		Log:       zap.NewNop().Sugar(),
	}
}

func TestRunSuite_AllPassing(t *testing.T) {
	cfg := testConfig(t)
	result, err := RunSuite(context.Background(), cfg, func(s *Suite) error {
		for _, title := range []string{"First Case", "Second Case"} {
			err := s.RunCase(title, "", func(c *Case) error {
				return c.Step("Check Things", "", func(st *Step) error {
					require.NoError(t, st.Verify(1, "thing one", true, 1))
					require.NoError(t, st.Verify(2, "thing two", true, "ok"))
					return nil
				})
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomePassed, result.Outcome)
	assert.Equal(t, types.FlowCompleted, result.Flow)
	assert.True(t, result.Complete)
	require.NotNil(t, result.Summary.Tests)
	assert.Equal(t, types.Counts{Total: 2, Pass: 2}, *result.Summary.Tests)
	assert.Equal(t, types.Counts{Total: 4, Pass: 4}, result.Summary.Verifications)
	assert.Equal(t, types.RqmtCounts{Total: 2, Pass: 2}, result.Summary.Rqmts)

	// Sequence numbers are suite-global and strictly increasing.
	for i, v := range result.Verifications {
		assert.Equal(t, i+1, v.Number)
	}

	// Every scope left a result.json behind.
	assert.FileExists(t, filepath.Join(result.Directory, "result.json"))
	for _, tc := range result.Cases {
		assert.FileExists(t, filepath.Join(tc.Directory, "result.json"))
	}
}

func TestRunSuite_FailedVerification(t *testing.T) {
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		return s.RunCase("Failing Case", "", func(c *Case) error {
			return c.Step("Check Limit", "", func(st *Step) error {
				require.NoError(t, st.Verify(7, "value below limit", false, 99))
				return nil
			})
		})
	})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeFailed, result.Outcome)
	assert.Equal(t, types.FlowCompleted, result.Flow)
	assert.True(t, result.Complete, "a plain failure still completes the suite")

	tc := result.Cases[0]
	assert.Equal(t, types.OutcomeFailed, tc.Outcome)
	assert.Equal(t, types.OutcomeFailed, tc.Steps[0].Outcome)
	assert.Equal(t, &types.RqmtCounts{Total: 1, Fail: 1}, result.Rqmts[7])

	failed := result.FailedVerifications()
	require.Len(t, failed, 1)
	assert.Equal(t, "value below limit", failed[0].Title)
}

func TestStepSkip_IsIsolated(t *testing.T) {
	var thirdRan bool
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		return s.RunCase("Case", "", func(c *Case) error {
			if err := c.Step("One", "", func(st *Step) error {
				return st.Verify(1, "ok", true, nil)
			}); err != nil {
				return err
			}
			if err := c.Step("Two", "", func(st *Step) error {
				return st.Skip("feature not present")
			}); err != nil {
				return err
			}
			return c.Step("Three", "", func(st *Step) error {
				thirdRan = true
				return st.Verify(2, "ok", true, nil)
			})
		})
	})
	require.NoError(t, err)

	assert.True(t, thirdRan, "a step skip must not end the case")
	tc := result.Cases[0]
	assert.Equal(t, types.OutcomePassed, tc.Outcome)
	assert.Equal(t, types.OutcomeSkipped, tc.Steps[1].Outcome)
	assert.Equal(t, types.FlowSkipped, tc.Steps[1].Flow)
	assert.Equal(t, types.Counts{Total: 3, Pass: 2, Skip: 1}, *tc.Summary.Steps)
}

func TestCaseSkip_FromInsideStep(t *testing.T) {
	var secondRan bool
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		if err := s.RunCase("Skipped Case", "", func(c *Case) error {
			return c.Step("Probe", "", func(st *Step) error {
				return st.Case().Skip("unsupported drive")
			})
		}); err != nil {
			return err
		}
		return s.RunCase("Next Case", "", func(c *Case) error {
			secondRan = true
			return c.Step("Check", "", func(st *Step) error {
				return st.Verify(1, "ok", true, nil)
			})
		})
	})
	require.NoError(t, err)

	assert.True(t, secondRan, "a case skip must not end the suite")
	first := result.Cases[0]
	assert.Equal(t, types.OutcomeSkipped, first.Outcome)
	assert.Equal(t, types.FlowSkipped, first.Flow)
	// The step the skip passed through is finalized, not skipped.
	assert.Equal(t, types.FlowStopped, first.Steps[0].Flow)
	assert.Equal(t, types.OutcomePassed, result.Outcome)
	assert.Equal(t, 1, result.Summary.Tests.Skip)
}

func TestCaseStop_IsLocal(t *testing.T) {
	var secondRan bool
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		if err := s.RunCase("Stopped Case", "", func(c *Case) error {
			if err := c.Step("Works", "", func(st *Step) error {
				return st.Verify(1, "ok", true, nil)
			}); err != nil {
				return err
			}
			return c.Stop("nothing left to do")
		}); err != nil {
			return err
		}
		return s.RunCase("Next Case", "", func(c *Case) error {
			secondRan = true
			return nil
		})
	})
	require.NoError(t, err)

	assert.True(t, secondRan, "a case stop must not end the suite")
	first := result.Cases[0]
	assert.Equal(t, types.FlowStopped, first.Flow)
	assert.Equal(t, types.OutcomePassed, first.Outcome, "stopped case is judged from what ran")
	assert.Equal(t, types.OutcomePassed, result.Outcome)
}

func TestSuiteStop_FromInsideStep(t *testing.T) {
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		if err := s.RunCase("First", "", func(c *Case) error {
			return c.Step("Trip", "", func(st *Step) error {
				if err := st.Verify(1, "ok", true, nil); err != nil {
					return err
				}
				return s.Stop("drive too hot")
			})
		}); err != nil {
			return err
		}
		t.Fatal("suite body must not reach the second case")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, types.FlowStopped, result.Flow)
	assert.Equal(t, types.OutcomePassed, result.Outcome)
	assert.True(t, result.Complete)
	require.Len(t, result.Cases, 1)
	assert.Equal(t, types.FlowStopped, result.Cases[0].Flow)
	assert.Equal(t, types.OutcomePassed, result.Cases[0].Outcome)
	assert.Equal(t, types.FlowStopped, result.Cases[0].Steps[0].Flow)
}

func TestSuiteAbort_MarksEveryScopeAborted(t *testing.T) {
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		return s.RunCase("First", "", func(c *Case) error {
			return c.Step("Trip", "", func(st *Step) error {
				return s.Abort("device disappeared")
			})
		})
	})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeAborted, result.Outcome)
	assert.Equal(t, types.FlowAborted, result.Flow)
	assert.False(t, result.Complete)
	assert.Equal(t, types.OutcomeAborted, result.Cases[0].Outcome)
	assert.Equal(t, types.OutcomeAborted, result.Cases[0].Steps[0].Outcome)
}

func TestUnhandledError_AbortsSuiteByDefault(t *testing.T) {
	var secondRan bool
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		if err := s.RunCase("Broken", "", func(c *Case) error {
			return errors.New("collaborator exploded")
		}); err != nil {
			return err
		}
		secondRan = true
		return nil
	})
	require.NoError(t, err)

	assert.False(t, secondRan)
	assert.Equal(t, types.OutcomeAborted, result.Outcome)
	assert.Contains(t, result.Cases[0].Error, "collaborator exploded")
}

func TestUnhandledError_ContinueOnException(t *testing.T) {
	cfg := testConfig(t)
	cfg.ContinueOnException = true

	var secondRan bool
	result, err := RunSuite(context.Background(), cfg, func(s *Suite) error {
		if err := s.RunCase("Broken", "", func(c *Case) error {
			return errors.New("collaborator exploded")
		}); err != nil {
			return err
		}
		return s.RunCase("Survivor", "", func(c *Case) error {
			secondRan = true
			return c.Step("Check", "", func(st *Step) error {
				return st.Verify(1, "ok", true, nil)
			})
		})
	})
	require.NoError(t, err)

	assert.True(t, secondRan)
	assert.Equal(t, types.OutcomeAborted, result.Cases[0].Outcome)
	assert.Equal(t, types.OutcomePassed, result.Cases[1].Outcome)
	assert.Equal(t, types.FlowCompleted, result.Flow)
	assert.Equal(t, types.OutcomeFailed, result.Outcome, "an aborted case fails the suite")
	assert.False(t, result.Complete)
}

func TestPanicInStep_AbortsCase(t *testing.T) {
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		return s.RunCase("Panicky", "", func(c *Case) error {
			return c.Step("Boom", "", func(st *Step) error {
				panic("nil map write")
			})
		})
	})
	require.NoError(t, err)

	tc := result.Cases[0]
	assert.Equal(t, types.OutcomeAborted, tc.Outcome)
	assert.Equal(t, types.OutcomeAborted, tc.Steps[0].Outcome)
	assert.Contains(t, tc.Error, "nil map write")
	assert.Contains(t, tc.Error, "panic")
}

func TestSuiteAbortOnFail_StopsAfterFailedCase(t *testing.T) {
	cfg := testConfig(t)
	cfg.AbortOnFail = true

	var secondRan bool
	result, err := RunSuite(context.Background(), cfg, func(s *Suite) error {
		if err := s.RunCase("Fails", "", func(c *Case) error {
			return c.Step("Check", "", func(st *Step) error {
				return st.Verify(1, "too slow", false, 4200)
			})
		}); err != nil {
			return err
		}
		secondRan = true
		return nil
	})
	require.NoError(t, err)

	assert.False(t, secondRan)
	assert.Equal(t, types.FlowStopped, result.Flow)
	assert.Equal(t, types.OutcomeFailed, result.Outcome)
	assert.True(t, result.Complete, "abort-on-fail stops cleanly, nothing aborted")
}

func TestCaseWithAbortOnFail(t *testing.T) {
	var laterStepRan, secondCaseRan bool
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		if err := s.RunCase("Strict", "", func(c *Case) error {
			if err := c.Step("Check", "", func(st *Step) error {
				return st.Verify(1, "must hold", false, nil)
			}); err != nil {
				return err
			}
			laterStepRan = true
			return nil
		}, WithAbortOnFail()); err != nil {
			return err
		}
		return s.RunCase("Next", "", func(c *Case) error {
			secondCaseRan = true
			return nil
		})
	})
	require.NoError(t, err)

	assert.False(t, laterStepRan, "failed verification must end the strict case")
	assert.True(t, secondCaseRan, "a case abort is local to the case")
	assert.Equal(t, types.OutcomeAborted, result.Cases[0].Outcome)
	assert.Equal(t, types.OutcomeFailed, result.Outcome)
}

func TestContextCancellation_StopsSuite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	result, err := RunSuite(ctx, testConfig(t), func(s *Suite) error {
		if err := s.RunCase("First", "", func(c *Case) error {
			return c.Step("Check", "", func(st *Step) error {
				return st.Verify(1, "ok", true, nil)
			})
		}); err != nil {
			return err
		}
		cancel()
		if err := s.RunCase("Interrupted", "", func(c *Case) error {
			t.Fatal("case body must not run after cancellation")
			return nil
		}); err != nil {
			return err
		}
		t.Fatal("suite body must not continue after the interrupt")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, types.FlowStopped, result.Flow)
	assert.Equal(t, types.OutcomePassed, result.Cases[0].Outcome, "prior cases keep their outcomes")
	assert.Equal(t, types.OutcomeAborted, result.Cases[1].Outcome)
	assert.Contains(t, result.Cases[1].Error, "interrupted")
}

func TestRunSuite_DirectoryConflict(t *testing.T) {
	cfg := testConfig(t)
	_, err := RunSuite(context.Background(), cfg, func(s *Suite) error { return nil })
	require.NoError(t, err)

	_, err = RunSuite(context.Background(), cfg, func(s *Suite) error { return nil })
	var conflict *DirectoryConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Path, "run1")
}

func TestPersistedResult_RoundTrips(t *testing.T) {
	result, err := RunSuite(context.Background(), testConfig(t), func(s *Suite) error {
		return s.RunCase("Case", "", func(c *Case) error {
			return c.Step("Step", "", func(st *Step) error {
				return st.Verify(3, "ok", true, "1,024 GB")
			})
		})
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(result.Directory, "result.json"))
	require.NoError(t, err)

	var loaded types.SuiteResult
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, result.Outcome, loaded.Outcome)
	assert.Equal(t, result.Summary.Verifications, loaded.Summary.Verifications)
	require.Len(t, loaded.Cases, 1)
	assert.Equal(t, "1_case", loaded.Cases[0].DirectoryName)
	assert.Equal(t, "1_step", loaded.Cases[0].Steps[0].DirectoryName)
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Short Burst Performance", "short_burst_performance"},
		{"Admin Commands", "admin_commands"},
		{"weird/:*chars", "weirdchars"},
		{"", "untitled"},
		{"___", "untitled"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slug(tt.in), tt.in)
	}
}
